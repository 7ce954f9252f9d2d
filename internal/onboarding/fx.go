package onboarding

import (
	"github.com/yunzhijiao/bridge/internal/onboarding/repository"
	"github.com/yunzhijiao/bridge/internal/onboarding/service"
	"go.uber.org/fx"
)

var Module = fx.Module("onboarding.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
