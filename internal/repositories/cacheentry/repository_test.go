package cacheentry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/internal/repositories/batch"
	"github.com/Ramsey-B/clover/internal/repositories/cacheentry"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/database/dbtest"
	"github.com/Ramsey-B/clover/pkg/models"
)

func setup(t *testing.T) (*cacheentry.Repository, database.DB) {
	t.Helper()
	db := dbtest.Open(t)
	_, err := batch.NewRepository(db, dbtest.Logger()).Create(context.Background(), &models.Batch{BatchID: "b1"})
	require.NoError(t, err)
	return cacheentry.NewRepository(db, dbtest.Logger()), db
}

func sampleClusters() []models.Cluster {
	return []models.Cluster{
		{
			Key:  "email:a@x.com",
			Kind: models.ClusterKindMerged,
			Identifiers: []models.Identifier{
				{Kind: models.IdentifierEmail, Value: "a@x.com"},
				{Kind: models.IdentifierPhone, Value: "5551234"},
			},
			MemberIDs: []int64{1, 2, 5},
		},
		{
			Key:         "email:b@x.com",
			Kind:        models.ClusterKindEmail,
			Identifiers: []models.Identifier{{Kind: models.IdentifierEmail, Value: "b@x.com"}},
			MemberIDs:   []int64{3, 4},
		},
		{
			Key:         "phone:5550000",
			Kind:        models.ClusterKindPhone,
			Identifiers: []models.Identifier{{Kind: models.IdentifierPhone, Value: "5550000"}},
			MemberIDs:   []int64{6, 7},
		},
	}
}

func TestCacheEntryRepository_InsertAndRead(t *testing.T) {
	ctx := context.Background()
	repo, _ := setup(t)
	clusters := sampleClusters()

	require.NoError(t, repo.InsertRanked(ctx, "b1", clusters))

	all, err := repo.All(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, clusters, all)

	total, err := repo.Count(ctx, "b1", models.KindAll)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	emails, err := repo.Count(ctx, "b1", models.KindEmail)
	require.NoError(t, err)
	assert.Equal(t, int64(1), emails)

	page, err := repo.Page(ctx, "b1", models.KindAll, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "email:b@x.com", page[0].Key)

	phones, err := repo.Page(ctx, "b1", models.KindPhone, 0, 10)
	require.NoError(t, err)
	require.Len(t, phones, 1)
	assert.Equal(t, "phone:5550000", phones[0].Key)
}

func TestCacheEntryRepository_CountByKind(t *testing.T) {
	ctx := context.Background()
	repo, _ := setup(t)
	require.NoError(t, repo.InsertRanked(ctx, "b1", sampleClusters()))

	rows, err := repo.CountByKind(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	got := map[string][2]int64{}
	for _, row := range rows {
		got[row.Kind.String] = [2]int64{row.Groups.Int64, row.Members.Int64}
	}
	assert.Equal(t, map[string][2]int64{
		"email":  {1, 2},
		"merged": {1, 3},
		"phone":  {1, 2},
	}, got)
}

func TestCacheEntryRepository_ReplaceIsAtomic(t *testing.T) {
	ctx := context.Background()
	repo, db := setup(t)
	require.NoError(t, repo.InsertRanked(ctx, "b1", sampleClusters()))

	boom := errors.New("resolver exploded")
	err := database.WithTx(ctx, db, nil, func(ctx context.Context) error {
		if _, err := repo.DeleteByBatch(ctx, "b1"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	all, err := repo.All(ctx, "b1")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCacheEntryRepository_DuplicateKeyFails(t *testing.T) {
	ctx := context.Background()
	repo, _ := setup(t)
	clusters := sampleClusters()
	clusters[1].Key = clusters[0].Key

	err := repo.InsertRanked(ctx, "b1", clusters)
	assert.Error(t, err)
}

func TestCacheEntryRepository_DeleteByBatch(t *testing.T) {
	ctx := context.Background()
	repo, _ := setup(t)
	require.NoError(t, repo.InsertRanked(ctx, "b1", sampleClusters()))

	deleted, err := repo.DeleteByBatch(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	all, err := repo.All(ctx, "b1")
	require.NoError(t, err)
	assert.Empty(t, all)
}
