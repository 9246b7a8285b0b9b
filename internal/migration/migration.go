package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/packhub/internal/audit/domain"
	authdomain "github.com/smallbiznis/packhub/internal/auth/domain"
	orgdomain "github.com/smallbiznis/packhub/internal/organization/domain"
	packdomain "github.com/smallbiznis/packhub/internal/pack/domain"
	versiondomain "github.com/smallbiznis/packhub/internal/version/domain"
	webhookdomain "github.com/smallbiznis/packhub/internal/webhook/domain"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Models lists every table owned by the registry. The casbin_rule table is
// created by the policy adapter.
func Models() []any {
	return []any{
		&packdomain.Pack{},
		&versiondomain.PackVersion{},
		&orgdomain.Organization{},
		&orgdomain.OrganizationMember{},
		&webhookdomain.Webhook{},
		&webhookdomain.Delivery{},
		&authdomain.APIToken{},
		&auditdomain.AuditLog{},
	}
}

// Apply brings the schema up to date. Postgres runs the embedded SQL
// migrations; other dialects fall back to AutoMigrate.
func Apply(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if conn.Dialector.Name() != "postgres" {
		if err := conn.AutoMigrate(Models()...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}

// RunMigrations applies the embedded postgres migrations.
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
