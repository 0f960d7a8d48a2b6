// Package migrator runs a service's schema migrations natively with
// golang-migrate instead of in a container.
package migrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/artpar/stackup/internal/core/domain"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Runner applies pending migrations.
type Runner struct {
	logger *slog.Logger
}

// NewRunner creates a migration runner.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger.With("component", "migrator")}
}

// DatabaseURL returns the connection URL named by spec from env, rewritten
// for the pgx driver.
//
// Example:
//
//	DatabaseURL(domain.MigrationSpec{DatabaseURLEnv: "DATABASE_URL"},
//	    map[string]string{"DATABASE_URL": "postgres://u:p@localhost/app"})
//	// returns "pgx5://u:p@localhost/app"
func DatabaseURL(spec domain.MigrationSpec, env map[string]string) (string, error) {
	raw := env[spec.DatabaseURLEnv]
	if raw == "" {
		return "", domain.NewConfigError("x-migrate.database_url_env",
			fmt.Sprintf("environment variable %s is not set", spec.DatabaseURLEnv),
			domain.ErrMalformedDescriptor)
	}
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(raw, scheme) {
			return "pgx5://" + strings.TrimPrefix(raw, scheme), nil
		}
	}
	return raw, nil
}

// SourceURL turns a migrations directory into a file:// source URL. Values
// that already carry a scheme are returned unchanged.
func SourceURL(source string) (string, error) {
	if strings.Contains(source, "://") {
		return source, nil
	}
	abs, err := filepath.Abs(source)
	if err != nil {
		return "", err
	}
	return "file://" + filepath.ToSlash(abs), nil
}

// Run applies every pending up migration. Having nothing to apply is success.
// Cancelling ctx stops after the migration in flight.
func (r *Runner) Run(ctx context.Context, service string, spec domain.MigrationSpec, env map[string]string) error {
	dbURL, err := DatabaseURL(spec, env)
	if err != nil {
		return err
	}
	sourceURL, err := SourceURL(spec.Source)
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	logger := r.logger.With("service", service, "source", sourceURL)

	m, err := migrate.New(sourceURL, dbURL)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Warn("failed to close migrator", "source_error", srcErr, "database_error", dbErr)
		}
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			m.GracefulStop <- true
		case <-done:
		}
	}()

	logger.Info("running migrations")
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("migrations up to date")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("run migrations: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	version, dirty, err := m.Version()
	if err == nil {
		logger.Info("migrations applied", "version", version, "dirty", dirty)
	}
	return nil
}
