package notification

import (
	"github.com/yunzhijiao/bridge/internal/notification/outbox"
	"github.com/yunzhijiao/bridge/internal/notification/repository"
	"github.com/yunzhijiao/bridge/internal/notification/service"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
	fx.Provide(outbox.NewDispatcher),
	fx.Provide(NewRelay),
	fx.Invoke(RunRelay),
)
