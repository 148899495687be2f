package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/dsforge/internal/config"
	"github.com/xxxsen/dsforge/internal/db"
)

// OpenDB returns a migrated in-memory SQLite database that is closed with the test.
func OpenDB(t *testing.T) *db.DB {
	t.Helper()
	conn, err := db.Open(config.DatabaseConfig{Driver: db.DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, db.ApplyMigrations(context.Background(), conn))
	return conn
}
