// Package dbtest opens migrated SQLite databases for tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/db"
	"github.com/Ramsey-B/clover/pkg/database"
)

// Logger discards everything.
func Logger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

// Config returns a SQLite config pointing at a fresh file in t.TempDir().
func Config(t *testing.T) database.Config {
	t.Helper()
	return database.Config{
		Driver: database.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "clover.db"),
	}
}

// Open returns a migrated SQLite database that is closed when the test ends.
func Open(t *testing.T) database.DB {
	t.Helper()
	cfg := Config(t)
	logger := Logger()

	ms := database.NewMigrationService(logger, &database.MigrationConfig{
		FS:   db.Migrations,
		Root: db.MigrationsRoot,
	})
	require.NoError(t, ms.Migrate(cfg))

	conn, err := database.Open(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}
