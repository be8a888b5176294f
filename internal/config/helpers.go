// Package config provides configuration and shared test utilities for the eventcanon application.
package config

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file" // file:// migration source
)

const (
	postgresImage      = "postgres:16-alpine"
	readyLogOccurrence = 2
	containerTimeout   = 120 * time.Second

	// testMigrationsPath is relative to the calling package. It resolves
	// correctly from internal/config, internal/storage, and internal/api
	// because all three sit at the same depth below the project root.
	testMigrationsPath = "file://../../migrations"
)

// TestDatabase bundles the container and connection an integration test needs
// to clean up. Callers terminate both via t.Cleanup.
type TestDatabase struct {
	Container  *postgres.PostgresContainer
	Connection *sql.DB
}

// SetupTestDatabase starts a disposable PostgreSQL container, applies the
// project migrations, and returns an open connection to the migrated schema.
//
// Usage:
//
//	func TestMyFeature(t *testing.T) {
//		if testing.Short() {
//			t.Skip("skipping integration test in short mode")
//		}
//		ctx := context.Background()
//		testDB := config.SetupTestDatabase(ctx, t)
//		t.Cleanup(func() {
//			_ = testDB.Connection.Close()
//			_ = testcontainers.TerminateContainer(testDB.Container)
//		})
//		// ... your test code
//	}
func SetupTestDatabase(ctx context.Context, t *testing.T) *TestDatabase {
	t.Helper()

	container, err := postgres.Run(ctx,
		postgresImage,
		postgres.WithDatabase("eventcanon_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(readyLogOccurrence).
				WithStartupTimeout(containerTimeout),
		),
	)
	require.NoError(t, err, "Failed to start postgres container")
	require.NotNil(t, container, "postgres container is nil")

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get connection string")

	conn, err := sql.Open("postgres", connStr)
	require.NoError(t, err, "Failed to open database")

	if err := RunTestMigrations(conn); err != nil {
		_ = conn.Close()
		_ = testcontainers.TerminateContainer(container)

		t.Fatalf("Failed to run migrations: %v", err)
	}

	return &TestDatabase{
		Container:  container,
		Connection: conn,
	}
}

// RunTestMigrations applies every migration from the migrations/ directory
// against the given connection. An already-migrated schema is not an error.
func RunTestMigrations(db *sql.DB) error {
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithDatabaseInstance(testMigrationsPath, "postgres", driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}
