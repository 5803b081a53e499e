package store

import (
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

// OpenForMigration opens a database/sql connection for running migrations.
// golang-migrate's postgres driver wraps database/sql, separate from the
// pgxpool.Pool the Store uses for queries.
func OpenForMigration(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open migration connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping migration connection: %w", err)
	}
	return db, nil
}

// MigrationConfig holds configuration for schema migrations.
type MigrationConfig struct {
	MigrationsPath string
	DatabaseName   string
}

// RunMigrations applies every pending migration under config.MigrationsPath.
func RunMigrations(db *sql.DB, config MigrationConfig) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{DatabaseName: config.DatabaseName})
	if err != nil {
		return fmt.Errorf("store: create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+config.MigrationsPath, config.DatabaseName, driver)
	if err != nil {
		return fmt.Errorf("store: create migration instance: %w", err)
	}

	if err := m.Up(); err != nil {
		if err == migrate.ErrNoChange {
			return nil
		}
		return fmt.Errorf("store: run migrations: %w", err)
	}
	return nil
}

// MigrationVersion returns the current schema version, or (0, false, nil)
// if no migrations have run yet.
func MigrationVersion(db *sql.DB, config MigrationConfig) (uint, bool, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{DatabaseName: config.DatabaseName})
	if err != nil {
		return 0, false, fmt.Errorf("store: create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+config.MigrationsPath, config.DatabaseName, driver)
	if err != nil {
		return 0, false, fmt.Errorf("store: create migration instance: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		if err == migrate.ErrNilVersion {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("store: get migration version: %w", err)
	}
	return version, dirty, nil
}
