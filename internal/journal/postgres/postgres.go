// Package postgres implements journal.Journal backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/crossing/internal/journal"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Journal is a journal.Journal backed by a PostgreSQL database.
type Journal struct {
	db *sql.DB
}

var _ journal.Journal = (*Journal)(nil)

// New opens the database at databaseURL, configures the pool and applies
// pending migrations.
func New(databaseURL string) (*Journal, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Journal{db: db}, nil
}

// NewWithDB wraps an already-open database. Migrations are not run.
func NewWithDB(db *sql.DB) *Journal {
	return &Journal{db: db}
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (j *Journal) Append(ctx context.Context, rec *journal.Record) error {
	return queryAppend(ctx, j.db, rec)
}

func (j *Journal) List(ctx context.Context, filter journal.Filter) ([]*journal.Record, error) {
	return queryList(ctx, j.db, filter)
}

// Prune deletes records older than before and returns how many were removed.
func (j *Journal) Prune(ctx context.Context, before time.Time) (int64, error) {
	return queryPrune(ctx, j.db, before)
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}
