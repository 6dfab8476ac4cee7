package database

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// ErrDirtySchema means a previous migration failed halfway. It needs manual
// repair (migrate force) before the service can start.
var ErrDirtySchema = errors.New("database schema is dirty")

// RunMigrations applies pending migrations from migrationsPath. Safe to run
// on every start; an up-to-date schema is a no-op.
func RunMigrations(db *DB, migrationsPath string, logger *zap.Logger) error {
	stdDB := db.StdDB()
	defer func() { _ = stdDB.Close() }()

	driver, err := postgres.WithInstance(stdDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	defer func() {
		if srcErr, _ := m.Close(); srcErr != nil {
			logger.Warn("Failed to close migration source", zap.Error(srcErr))
		}
	}()

	from, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("%w at version %d", ErrDirtySchema, from)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("Database schema up to date", zap.Uint("version", from))
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	to, _, _ := m.Version()
	logger.Info("Applied migrations",
		zap.Uint("from_version", from),
		zap.Uint("to_version", to))
	return nil
}
