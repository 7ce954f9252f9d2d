package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/yunzhijiao/bridge/internal/config"
	"github.com/yunzhijiao/bridge/internal/seed"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			if err := AutoMigrate(conn); err != nil {
				return err
			}
		}

		if cfg.SeedDemoData {
			return seed.Run(conn)
		}
		return nil
	}),
)
