package batch_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/internal/repositories/batch"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/database/dbtest"
	apperrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
)

func newRepo(t *testing.T) (*batch.Repository, database.DB) {
	t.Helper()
	db := dbtest.Open(t)
	return batch.NewRepository(db, dbtest.Logger()), db
}

func createBatch(t *testing.T, repo *batch.Repository, id, filename string) *models.Batch {
	t.Helper()
	b, err := repo.Create(context.Background(), &models.Batch{BatchID: id, Filename: filename})
	require.NoError(t, err)
	return b
}

func int64Ptr(v int64) *int64 { return &v }

func TestBatchRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)

	created := createBatch(t, repo, "b1", "contacts.csv")
	assert.Equal(t, models.BatchStateIngesting, created.State)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := repo.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "contacts.csv", got.Filename)
	assert.Equal(t, models.BatchStateIngesting, got.State)
	assert.Nil(t, got.ClustersBuiltAt)
	assert.WithinDuration(t, created.CreatedAt, got.CreatedAt, time.Millisecond)
}

func TestBatchRepository_CreateDuplicate(t *testing.T) {
	repo, _ := newRepo(t)
	createBatch(t, repo, "b1", "a.csv")

	_, err := repo.Create(context.Background(), &models.Batch{BatchID: "b1"})
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
}

func TestBatchRepository_GetMissing(t *testing.T) {
	repo, _ := newRepo(t)
	_, err := repo.Get(context.Background(), "nope")
	assert.True(t, apperrors.IsBatchNotFound(err))
}

func TestBatchRepository_Transitions(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)
	createBatch(t, repo, "b1", "a.csv")

	progress := models.BatchProgress{TotalRecords: 10, RecordCount: 7, DuplicateCount: 2, FailedCount: 1, Encoding: "utf-8", EmailColumn: "email"}
	require.NoError(t, repo.UpdateProgress(ctx, "b1", progress))
	require.NoError(t, repo.MarkReady(ctx, "b1", progress))

	got, err := repo.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, models.BatchStateReady, got.State)
	assert.Equal(t, int64(10), got.TotalRecords)
	assert.Equal(t, int64(7), got.RecordCount)
	assert.Equal(t, int64(2), got.DuplicateCount)
	assert.Equal(t, int64(1), got.FailedCount)
	assert.Equal(t, "email", got.EmailColumn)

	// ready never goes back
	err = repo.MarkFailed(ctx, "b1", progress, "late failure")
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))

	err = repo.UpdateProgress(ctx, "b1", progress)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))

	err = repo.MarkReady(ctx, "missing", progress)
	assert.True(t, apperrors.IsBatchNotFound(err))
}

func TestBatchRepository_MarkFailed(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)
	createBatch(t, repo, "b1", "a.csv")

	require.NoError(t, repo.MarkFailed(ctx, "b1", models.BatchProgress{RecordCount: 3}, "disk full"))

	got, err := repo.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, models.BatchStateFailed, got.State)
	assert.Equal(t, "disk full", got.ErrorMessage)
	assert.Equal(t, int64(3), got.RecordCount)
}

func TestBatchRepository_SetClustersBuiltAt(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)
	createBatch(t, repo, "b1", "a.csv")

	got, err := repo.SetClustersBuiltAt(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, got.ClustersBuiltAt)

	_, err = repo.SetClustersBuiltAt(ctx, "missing")
	assert.True(t, apperrors.IsBatchNotFound(err))
}

func TestBatchRepository_List(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)

	createBatch(t, repo, "b1", "January_contacts.csv")
	createBatch(t, repo, "b2", "february.xlsx")
	createBatch(t, repo, "b3", "100%_real.csv")
	require.NoError(t, repo.MarkReady(ctx, "b1", models.BatchProgress{TotalRecords: 100, DuplicateCount: 5}))
	require.NoError(t, repo.MarkReady(ctx, "b2", models.BatchProgress{TotalRecords: 10, DuplicateCount: 0}))

	t.Run("newest first", func(t *testing.T) {
		page, err := repo.List(ctx, models.BatchFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(3), page.TotalCount)
		require.Len(t, page.Items, 3)
		assert.Equal(t, "b3", page.Items[0].BatchID)
		assert.Equal(t, 1, page.Page)
	})

	t.Run("filename is case insensitive", func(t *testing.T) {
		page, err := repo.List(ctx, models.BatchFilter{Filename: "CONTACTS"})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "b1", page.Items[0].BatchID)
	})

	t.Run("like wildcards are literal", func(t *testing.T) {
		page, err := repo.List(ctx, models.BatchFilter{Filename: "100%"})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "b3", page.Items[0].BatchID)
	})

	t.Run("counters", func(t *testing.T) {
		page, err := repo.List(ctx, models.BatchFilter{MinTotal: int64Ptr(50), MaxDuplicate: int64Ptr(10)})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "b1", page.Items[0].BatchID)
	})

	t.Run("state", func(t *testing.T) {
		page, err := repo.List(ctx, models.BatchFilter{State: models.BatchStateIngesting})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "b3", page.Items[0].BatchID)
	})

	t.Run("created range", func(t *testing.T) {
		future := time.Now().Add(time.Hour)
		page, err := repo.List(ctx, models.BatchFilter{CreatedFrom: &future})
		require.NoError(t, err)
		assert.Empty(t, page.Items)
		assert.Equal(t, int64(0), page.TotalCount)
	})

	t.Run("paging", func(t *testing.T) {
		page, err := repo.List(ctx, models.BatchFilter{Page: 2, PageSize: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(3), page.TotalCount)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "b1", page.Items[0].BatchID)
	})
}

func TestBatchRepository_ListIDsByState(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)
	createBatch(t, repo, "b1", "a.csv")
	createBatch(t, repo, "b2", "b.csv")
	require.NoError(t, repo.MarkReady(ctx, "b2", models.BatchProgress{}))

	ids, err := repo.ListIDsByState(ctx, models.BatchStateReady)
	require.NoError(t, err)
	assert.Equal(t, []string{"b2"}, ids)
}

func TestBatchRepository_DeleteInTransaction(t *testing.T) {
	ctx := context.Background()
	repo, db := newRepo(t)
	createBatch(t, repo, "b1", "a.csv")

	err := database.WithTx(ctx, db, nil, func(ctx context.Context) error {
		if err := repo.Lock(ctx, "b1"); err != nil {
			return err
		}
		return repo.Delete(ctx, "b1")
	})
	require.NoError(t, err)

	_, err = repo.Get(ctx, "b1")
	assert.True(t, apperrors.IsBatchNotFound(err))
	assert.True(t, apperrors.IsBatchNotFound(repo.Delete(ctx, "b1")))
	assert.True(t, apperrors.IsBatchNotFound(repo.Lock(ctx, "b1")))
}
