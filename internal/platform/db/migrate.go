package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migration directions accepted by Migrate.
const (
	MigrateUp   = "up"
	MigrateDown = "down"
)

// MigrationStatus reports the schema version after a migration run.
type MigrationStatus struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
	Changed bool `json:"changed"`
}

// Migrate applies the embedded ledger schema migrations in direction. A run
// with nothing to apply is not an error.
func Migrate(dsn, direction string) (MigrationStatus, error) {
	if direction != MigrateUp && direction != MigrateDown {
		return MigrationStatus{}, fmt.Errorf("platform/db: unknown migration direction %q", direction)
	}
	m, closeFn, err := newMigrator(dsn)
	if err != nil {
		return MigrationStatus{}, err
	}
	defer closeFn()

	switch direction {
	case MigrateUp:
		err = m.Up()
	case MigrateDown:
		err = m.Down()
	}
	status := MigrationStatus{Changed: err == nil}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return status, fmt.Errorf("platform/db: migrate %s: %w", direction, err)
	}
	return readVersion(m, status)
}

// MigrationVersion returns the currently applied schema version.
func MigrationVersion(dsn string) (MigrationStatus, error) {
	m, closeFn, err := newMigrator(dsn)
	if err != nil {
		return MigrationStatus{}, err
	}
	defer closeFn()
	return readVersion(m, MigrationStatus{})
}

func readVersion(m *migrate.Migrate, status MigrationStatus) (MigrationStatus, error) {
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return status, fmt.Errorf("platform/db: migration version: %w", err)
	}
	status.Version, status.Dirty = version, dirty
	return status, nil
}

func newMigrator(dsn string) (*migrate.Migrate, func(), error) {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("platform/db: open migration connection: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("platform/db: ping migration connection: %w", err)
	}
	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: "ledger_schema_migrations"})
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("platform/db: migration driver: %w", err)
	}
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("platform/db: migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("platform/db: migrator: %w", err)
	}
	return m, func() { _, _ = m.Close() }, nil
}
