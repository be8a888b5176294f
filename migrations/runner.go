package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/lib/pq" // PostgreSQL driver
)

type (
	// Runner applies embedded schema migrations against PostgreSQL.
	Runner struct {
		config  *Config
		migrate *migrate.Migrate
		db      *sql.DB
		schema  *SchemaSet
		logger  *slog.Logger
	}

	// migrateLogger bridges golang-migrate's logger onto slog.
	migrateLogger struct {
		logger *slog.Logger
	}
)

var _ migrate.Logger = (*migrateLogger)(nil)

// NewRunner opens the database, validates the embedded schema set, and
// prepares a migrate instance backed by the embedded files.
func NewRunner(cfg *Config, logger *slog.Logger) (*Runner, error) {
	logger.Info("initializing migration runner", "config", cfg.String())

	schema := NewSchemaSet(nil)
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("embedded migration validation failed: %w", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable: cfg.MigrationTable,
	})
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	source, err := iofs.New(schema.FS(), ".")
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to create embedded migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	m.Log = &migrateLogger{logger: logger}

	return &Runner{
		config:  cfg,
		migrate: m,
		db:      db,
		schema:  schema,
		logger:  logger,
	}, nil
}

// Up applies all pending migrations.
func (r *Runner) Up() error {
	r.logger.Info("applying pending migrations")

	err := r.migrate.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		r.logger.Info("no new migrations to apply")
	} else {
		r.logger.Info("all migrations applied")
	}

	return nil
}

// Down rolls back the most recent migration.
func (r *Runner) Down() error {
	r.logger.Info("rolling back last migration")

	err := r.migrate.Steps(-1)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		r.logger.Info("no migrations to roll back")
	} else {
		r.logger.Info("last migration rolled back")
	}

	return nil
}

// Status logs the current schema version and whether newer migrations exist.
func (r *Runner) Status() error {
	version, dirty, err := r.migrate.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			r.logger.Info("migration status",
				"database_version", 0,
				"latest_version", r.schema.LatestVersion(),
				"state", "no migrations applied")

			return nil
		}

		return fmt.Errorf("failed to get migration version: %w", err)
	}

	state := "clean"
	if dirty {
		state = "dirty (needs manual intervention)"
	}

	r.logger.Info("migration status",
		"database_version", version,
		"latest_version", r.schema.LatestVersion(),
		"state", state)

	return nil
}

// Version logs the schema version currently recorded in the database.
func (r *Runner) Version() error {
	version, dirty, err := r.migrate.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			r.logger.Info("current version", "version", "none")

			return nil
		}

		return fmt.Errorf("failed to get migration version: %w", err)
	}

	r.logger.Info("current version", "version", version, "dirty", dirty)

	return nil
}

// Drop removes every table in the database.
func (r *Runner) Drop() error {
	r.logger.Warn("dropping all tables")

	if err := r.migrate.Drop(); err != nil {
		return fmt.Errorf("drop operation failed: %w", err)
	}

	r.logger.Info("all tables dropped")

	return nil
}

// Close releases the migrate source and database connections.
func (r *Runner) Close() error {
	var errs []error

	if r.migrate != nil {
		sourceErr, dbErr := r.migrate.Close()
		if sourceErr != nil {
			errs = append(errs, fmt.Errorf("source close error: %w", sourceErr))
		}

		if dbErr != nil {
			errs = append(errs, fmt.Errorf("database close error: %w", dbErr))
		}
	}

	if r.db != nil {
		if err := r.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("connection close error: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, v...), "component", "migrate")
}

func (l *migrateLogger) Verbose() bool {
	return true
}
