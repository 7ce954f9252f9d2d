package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"

	authdomain "github.com/yunzhijiao/bridge/internal/auth/domain"
	auditdomain "github.com/yunzhijiao/bridge/internal/audit/domain"
	notificationdomain "github.com/yunzhijiao/bridge/internal/notification/domain"
	onboardingdomain "github.com/yunzhijiao/bridge/internal/onboarding/domain"
	organizationdomain "github.com/yunzhijiao/bridge/internal/organization/domain"
	verificationdomain "github.com/yunzhijiao/bridge/internal/verification/domain"
)

// This migration package ensures the service is fully usable
// out of the box for local and self-hosted environments.
// All review and directory tables are created automatically on startup.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// AutoMigrate creates the schema from the gorm models. The SQL files above
// are the source of truth for postgres; sqlite and mysql development setups
// use this path because the partial indexes are expressed in the model tags.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}
	return db.AutoMigrate(
		&authdomain.User{},
		&authdomain.Session{},
		&organizationdomain.Organization{},
		&organizationdomain.AdminBinding{},
		&verificationdomain.Request{},
		&verificationdomain.Claim{},
		&verificationdomain.TeacherPoolEntry{},
		&onboardingdomain.Request{},
		&notificationdomain.Notification{},
		&notificationdomain.OutboxEvent{},
		&auditdomain.AuditLog{},
	)
}
