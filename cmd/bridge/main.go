package main

import (
	"github.com/yunzhijiao/bridge/internal/clock"
	"github.com/yunzhijiao/bridge/internal/migration"
	"github.com/yunzhijiao/bridge/internal/observability"
	"github.com/yunzhijiao/bridge/internal/server"
	"github.com/yunzhijiao/bridge/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		observability.Module,
		db.Module,
		clock.Module,

		migration.Module,
		server.Module,
	)
	app.Run()
}
