package database_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/db"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/database/dbtest"
)

func insertBatch(ctx context.Context, t *testing.T, conn database.DB, id string) error {
	t.Helper()
	now := time.Now().UTC()
	ib := database.NewInsertBuilder().InsertInto("batches").
		Cols("batch_id", "state", "created_at", "updated_at").
		Values(id, "ingesting", now, now)
	query, args := database.Build(conn, ib)
	_, err := database.Conn(ctx, conn).ExecContext(ctx, query, args...)
	return err
}

func countBatches(ctx context.Context, t *testing.T, conn database.DB) int {
	t.Helper()
	var n int
	require.NoError(t, conn.GetContext(ctx, &n, "SELECT COUNT(*) FROM batches"))
	return n
}

func TestOpen_SQLiteFlavor(t *testing.T) {
	conn := dbtest.Open(t)
	assert.Equal(t, sqlbuilder.SQLite, conn.Flavor())
	assert.Nil(t, conn.SnapshotTxOptions())
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := database.Open(context.Background(), database.Config{Driver: "oracle"}, dbtest.Logger())
	assert.Error(t, err)
}

func TestSQLiteDSN(t *testing.T) {
	assert.Contains(t, database.SQLiteDSN("/tmp/x.db"), "file:/tmp/x.db?_pragma=busy_timeout(5000)")
	assert.Contains(t, database.SQLiteDSN("file:/tmp/x.db"), "file:/tmp/x.db?")
	assert.Equal(t, "file:x.db?mode=memory", database.SQLiteDSN("file:x.db?mode=memory"))
}

func TestMigrate_IsIdempotent(t *testing.T) {
	cfg := dbtest.Config(t)
	ms := database.NewMigrationService(dbtest.Logger(), &database.MigrationConfig{
		FS:   db.Migrations,
		Root: db.MigrationsRoot,
	})
	require.NoError(t, ms.Migrate(cfg))
	require.NoError(t, ms.Migrate(cfg))
}

func TestMigrate_MissingFolder(t *testing.T) {
	ms := database.NewMigrationService(dbtest.Logger(), &database.MigrationConfig{
		FS:   db.Migrations,
		Root: "nope",
	})
	assert.Error(t, ms.Migrate(dbtest.Config(t)))
}

func TestWithTx_Commit(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.Open(t)

	err := database.WithTx(ctx, conn, nil, func(ctx context.Context) error {
		return insertBatch(ctx, t, conn, "b1")
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countBatches(ctx, t, conn))
}

func TestWithTx_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.Open(t)
	boom := errors.New("boom")

	err := database.WithTx(ctx, conn, nil, func(ctx context.Context) error {
		require.NoError(t, insertBatch(ctx, t, conn, "b1"))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, countBatches(ctx, t, conn))
}

func TestWithTx_RollbackOnPanic(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.Open(t)

	assert.Panics(t, func() {
		_ = database.WithTx(ctx, conn, nil, func(ctx context.Context) error {
			require.NoError(t, insertBatch(ctx, t, conn, "b1"))
			panic("kaboom")
		})
	})
	assert.Equal(t, 0, countBatches(ctx, t, conn))
}

func TestWithTx_NestedJoinsOuter(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.Open(t)
	boom := errors.New("boom")

	err := database.WithTx(ctx, conn, nil, func(ctx context.Context) error {
		inner := database.WithTx(ctx, conn, nil, func(ctx context.Context) error {
			return insertBatch(ctx, t, conn, "b1")
		})
		require.NoError(t, inner)
		// the inner commit was a no-op, so this rolls back both inserts
		require.NoError(t, insertBatch(ctx, t, conn, "b2"))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, countBatches(ctx, t, conn))
}

func TestJSONB(t *testing.T) {
	var j database.JSONB[[]int64]
	require.NoError(t, j.Scan([]byte(`[3,1,2]`)))
	assert.Equal(t, []int64{3, 1, 2}, j.GetValue())

	require.NoError(t, j.Scan(`[4]`))
	assert.Equal(t, []int64{4}, j.Data)

	require.NoError(t, j.Scan(nil))
	assert.Nil(t, j.Data)

	assert.Error(t, j.Scan(42))

	v, err := database.JSONB[[]string]{Data: []string{"a"}}.Value()
	require.NoError(t, err)
	assert.Equal(t, `["a"]`, v)
}

func TestIsUniqueViolation(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.Open(t)

	require.NoError(t, insertBatch(ctx, t, conn, "b1"))
	err := insertBatch(ctx, t, conn, "b1")
	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err))

	assert.True(t, database.IsUniqueViolation(fmt.Errorf("create: %w", &pq.Error{Code: "23505"})))
	assert.False(t, database.IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, database.IsUniqueViolation(errors.New("duplicate key value violates unique constraint")))
	assert.False(t, database.IsUniqueViolation(nil))
}
