package auth

import (
	"github.com/yunzhijiao/bridge/internal/auth/repository"
	"github.com/yunzhijiao/bridge/internal/auth/service"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.service",
	fx.Provide(repository.New),
	fx.Provide(service.New),
)
