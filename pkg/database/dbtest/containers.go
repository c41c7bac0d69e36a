//go:build integration

package dbtest

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Ramsey-B/clover/db"
	"github.com/Ramsey-B/clover/pkg/database"
)

// OpenPostgres starts a throwaway PostgreSQL container, migrates it and
// returns a connection. The container is terminated when the test ends.
func OpenPostgres(t *testing.T) database.DB {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:15-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "clover",
				"POSTGRES_PASSWORD": "clover",
				"POSTGRES_DB":       "clover",
			},
			// the server restarts once after init
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := database.Config{
		Driver: database.DriverPostgres,
		DSN:    fmt.Sprintf("postgres://clover:clover@%s:%s/clover?sslmode=disable", host, port.Port()),
	}

	logger := Logger()
	ms := database.NewMigrationService(logger, &database.MigrationConfig{
		FS:   db.Migrations,
		Root: db.MigrationsRoot,
	})
	require.NoError(t, ms.Migrate(cfg))

	conn, err := database.Open(ctx, cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

// StartMemgraph starts a Memgraph container without auth and returns its
// bolt host and port.
func StartMemgraph(t *testing.T) (string, int) {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "memgraph/memgraph:2.18.1",
			ExposedPorts: []string{"7687/tcp"},
			WaitingFor: wait.ForLog("Server is fully armed and operational").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "7687")
	require.NoError(t, err)

	p, err := strconv.Atoi(port.Port())
	require.NoError(t, err)
	return host, p
}
