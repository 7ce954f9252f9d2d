package verification

import (
	"github.com/yunzhijiao/bridge/internal/verification/repository"
	"github.com/yunzhijiao/bridge/internal/verification/service"
	"go.uber.org/fx"
)

var Module = fx.Module("verification.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
