//go:build integration

package engine_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/clover/pkg/database/dbtest"
	"github.com/Ramsey-B/clover/pkg/engine"
	apperrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
)

func TestScenarios_Postgres(t *testing.T) {
	runScenarios(t, dbtest.OpenPostgres)
}

// Ingestions, rebuilds, queries and deletes of different batches run
// against one pool without deadlocking or seeing half-written caches.
func TestConcurrentOperations_Postgres(t *testing.T) {
	e := engine.New(dbtest.OpenPostgres(t), engine.Config{RebuildOnIngest: true, ChunkSize: 2}, dbtest.Logger())
	ctx := context.Background()

	g, gctx := errgroup.WithContext(ctx)
	for i := range 6 {
		g.Go(func() error {
			_, err := e.IngestBatch(gctx, engine.IngestRequest{
				BatchID:  fmt.Sprintf("b%d", i),
				Filename: "people.csv",
				Reader:   strings.NewReader(scenario),
			})
			return err
		})
	}
	require.NoError(t, g.Wait())

	var wg sync.WaitGroup
	var mu sync.Mutex
	var failures []error
	record := func(err error) {
		if err == nil || apperrors.IsRebuildInProgress(err) {
			return
		}
		mu.Lock()
		failures = append(failures, err)
		mu.Unlock()
	}
	for i := range 6 {
		id := fmt.Sprintf("b%d", i)
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, err := e.RebuildClusters(ctx, id)
			record(err)
		}()
		go func() {
			defer wg.Done()
			page, err := e.GetClusters(ctx, id, models.KindAll, 1, 10)
			if err == nil && len(page.Groups) != 2 {
				err = fmt.Errorf("batch %s returned %d clusters", id, len(page.Groups))
			}
			record(err)
		}()
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				record(e.DeleteBatch(ctx, fmt.Sprintf("b%d", i+1)))
			}
		}()
	}
	wg.Wait()

	for _, err := range failures {
		// a query may race the delete of its own batch
		assert.True(t, apperrors.IsBatchNotFound(err), err)
	}

	page, err := e.ListBatches(ctx, models.BatchFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.TotalCount)
}
