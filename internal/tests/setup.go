// Package tests holds the Postgres-backed integration harness.
package tests

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/finboard/server/internal/db"
)

// IntegrationEnv enables container-backed tests when DATABASE_URL is not set.
const IntegrationEnv = "FINBOARD_INTEGRATION"

var (
	containerOnce sync.Once
	containerDSN  string
	containerErr  error
)

// StartPostgres runs a throwaway Postgres container and returns its connection string.
func StartPostgres(ctx context.Context) (testcontainers.Container, string, error) {
	pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("finboard_test"),
		postgres.WithUsername("finboard"),
		postgres.WithPassword("finboard"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, "", err
	}
	return pgContainer, connStr, nil
}

// DatabaseURL returns DATABASE_URL when set. Otherwise, with FINBOARD_INTEGRATION set, it
// starts one container shared by the test binary. Without either the test is skipped.
func DatabaseURL(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}
	if os.Getenv(IntegrationEnv) == "" {
		t.Skipf("neither DATABASE_URL nor %s set; skipping integration test", IntegrationEnv)
	}

	// The container lives until the test binary exits; Ryuk reaps it.
	containerOnce.Do(func() {
		_, containerDSN, containerErr = StartPostgres(context.Background())
	})
	require.NoError(t, containerErr, "postgres container must start")
	return containerDSN
}

// OpenMigrated opens the test database, applies migrations and truncates the auth tables.
func OpenMigrated(t *testing.T) *sql.DB {
	t.Helper()
	dsn := DatabaseURL(t)

	database, err := db.Open(t.Context(), dsn)
	require.NoError(t, err, "database open must succeed; check DATABASE_URL")
	t.Cleanup(func() { database.Close() })

	require.NoError(t, db.Migrate(database, "up"), "migrations must run successfully")
	require.NoError(t, TruncateAuthTables(t.Context(), database), "truncate auth tables")
	return database
}

// TruncateAuthTables truncates auth-related tables for a clean test state.
func TruncateAuthTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, "TRUNCATE TABLE refresh_tokens, password_resets, users RESTART IDENTITY CASCADE")
	if err != nil {
		return fmt.Errorf("truncate auth tables: %w", err)
	}
	return nil
}
