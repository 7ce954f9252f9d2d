package organization

import (
	"github.com/yunzhijiao/bridge/internal/organization/repository"
	"github.com/yunzhijiao/bridge/internal/organization/service"
	"go.uber.org/fx"
)

var Module = fx.Module("organization.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
