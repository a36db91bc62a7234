package database

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/telemetra/device-event-svc/internal/config"
)

// RunMigrations applies all pending migrations from db/migrations.
// Safe to run on every startup; an up-to-date schema is not an error.
func RunMigrations(cfg *config.DatabaseConfig, logger *zap.Logger) error {
	m, err := migrate.New("file://db/migrations", cfg.MigrationURL())
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if logger != nil {
		logger.Info("Database migrations applied successfully")
	}
	return nil
}
