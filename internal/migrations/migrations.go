// Package migrations applies the embedded PostgreSQL schema with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"

	// Registers the "postgres" database/sql driver.
	_ "github.com/lib/pq"
)

//go:embed sql/*.sql
var embedded embed.FS

// Runner applies and rolls back schema migrations.
type Runner struct {
	provider *goose.Provider
	logger   *slog.Logger
}

// Open opens a database/sql handle suitable for Runner.
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// NewRunner creates a Runner over the embedded migrations.
func NewRunner(db *sql.DB, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}

	fsys, err := fs.Sub(embedded, "sql")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("failed to create goose provider: %w", err)
	}

	return &Runner{provider: provider, logger: logger}, nil
}

// Up applies all pending migrations.
func (r *Runner) Up(ctx context.Context) error {
	results, err := r.provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	for _, result := range results {
		r.logResult("migrated", result)
	}
	return nil
}

// Down rolls back every applied migration.
func (r *Runner) Down(ctx context.Context) error {
	results, err := r.provider.DownTo(ctx, 0)
	if err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	for _, result := range results {
		r.logResult("rolled back", result)
	}
	return nil
}

// Status logs the state of every known migration.
func (r *Runner) Status(ctx context.Context) error {
	statuses, err := r.provider.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to read migration status: %w", err)
	}
	for _, s := range statuses {
		r.logger.Info("migration status",
			"version", s.Source.Version,
			"path", s.Source.Path,
			"state", string(s.State),
		)
	}
	return nil
}

func (r *Runner) logResult(action string, result *goose.MigrationResult) {
	r.logger.Info(action,
		"path", result.Source.Path,
		"duration", result.Duration,
	)
}
