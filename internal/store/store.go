// Package store selects and opens the persistence backend.
package store

import (
	"context"
	"fmt"

	"classattend/internal/attendance"
	"classattend/internal/identity"
	"classattend/internal/registry"
	"classattend/internal/session"
	"classattend/internal/store/postgres"
	"classattend/internal/store/sqlite"
)

// Backend is everything the service needs from a database.
type Backend interface {
	identity.Repository
	session.Repository
	attendance.Ledger
	attendance.EventLog
	registry.Lister

	Migrate(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Backend = (*postgres.Store)(nil)
	_ Backend = (*sqlite.Store)(nil)
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open connects to the configured backend. Postgres schemas are migrated
// only when migrate is set; SQLite always applies its schema on open.
func Open(ctx context.Context, driver, databaseURL, sqlitePath string, migrate bool) (Backend, error) {
	switch driver {
	case DriverPostgres, "":
		pg, err := postgres.Open(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		if migrate {
			if _, err := pg.Migrate(ctx); err != nil {
				pg.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		return pg, nil
	case DriverSQLite:
		lite, err := sqlite.Open(ctx, sqlitePath)
		if err != nil {
			return nil, err
		}
		return lite, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}
