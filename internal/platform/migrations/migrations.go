// Package migrations applies the platform's embedded golang-migrate SQL
// schema on startup and from the cmd/migrate binary.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed *.sql
var files embed.FS

// migrator builds a *migrate.Migrate bound to db's current connection and
// the embedded SQL source, the shape both Apply and cmd/migrate share.
func migrator(db *sql.DB) (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(files, ".")
	if err != nil {
		return nil, fmt.Errorf("open embedded migration source: %w", err)
	}
	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("open postgres migration driver: %w", err)
	}
	return migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
}

// Apply runs every pending up migration. ctx is accepted for call-site
// symmetry with the rest of the platform's context-carrying operations;
// golang-migrate's own Up() is not itself context-aware.
func Apply(ctx context.Context, db *sql.DB) error {
	m, err := migrator(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Down rolls back every applied migration, used by cmd/migrate's -down flag
// and by integration test teardown.
func Down(ctx context.Context, db *sql.DB) error {
	m, err := migrator(db)
	if err != nil {
		return err
	}
	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("rollback migrations: %w", err)
	}
	return nil
}
