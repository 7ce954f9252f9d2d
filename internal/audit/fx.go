package audit

import (
	"github.com/yunzhijiao/bridge/internal/audit/repository"
	"github.com/yunzhijiao/bridge/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
