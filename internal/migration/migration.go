// Package migration creates the schema on startup. Postgres runs the
// embedded SQL migrations; other dialects are migrated from the models.
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
	allocationdomain "github.com/smallbiznis/verdant/internal/allocation/domain"
	emissiondomain "github.com/smallbiznis/verdant/internal/emission/domain"
	organizationdomain "github.com/smallbiznis/verdant/internal/organization/domain"
	regiondomain "github.com/smallbiznis/verdant/internal/region/domain"
	relationdomain "github.com/smallbiznis/verdant/internal/relation/domain"
	sitedomain "github.com/smallbiznis/verdant/internal/site/domain"
	"gorm.io/gorm"
)

const migrationsDir = "sql"

//go:embed sql/*.sql
var embeddedMigrations embed.FS

// Models lists every persisted model in dependency order.
func Models() []any {
	return []any{
		&regiondomain.Region{},
		&organizationdomain.Organization{},
		&sitedomain.Site{},
		&emissiondomain.Record{},
		&relationdomain.Relation{},
		&allocationdomain.Run{},
	}
}

// Migrate brings the schema of conn up to date.
func Migrate(conn *gorm.DB) error {
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
	// closing the migrator would close the shared *sql.DB

	return nil
}
