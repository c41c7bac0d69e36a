// Package clustercache materializes resolved clusters per batch so reads
// never recompute them. A rebuild replaces a batch's entries in one
// transaction; readers see either the old or the new set.
package clustercache

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/internal/repositories/cacheentry"
	"github.com/Ramsey-B/clover/pkg/database"
	apperrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const DefaultPageSize = 20

type BatchStore interface {
	Get(ctx context.Context, batchID string) (*models.Batch, error)
	Lock(ctx context.Context, batchID string) error
	SetClustersBuiltAt(ctx context.Context, batchID string) (*models.Batch, error)
}

type EntryStore interface {
	InsertRanked(ctx context.Context, batchID string, clusters []models.Cluster) error
	Page(ctx context.Context, batchID string, kind models.KindFilter, offset, limit int) ([]models.Cluster, error)
	Count(ctx context.Context, batchID string, kind models.KindFilter) (int64, error)
	CountByKind(ctx context.Context, batchID string) ([]cacheentry.KindCountRow, error)
	DeleteByBatch(ctx context.Context, batchID string) (int64, error)
}

type MemberStore interface {
	GetByIDs(ctx context.Context, batchID string, ids []int64) ([]models.Record, error)
}

type Resolver interface {
	Resolve(ctx context.Context, batchID string) ([]models.Cluster, error)
}

// Listener is told about every committed rebuild. Listener errors are
// logged and never undo the rebuild.
type Listener interface {
	ClustersRebuilt(ctx context.Context, batchID string, clusters []models.Cluster) error
}

type Cache struct {
	db        database.DB
	batches   BatchStore
	entries   EntryStore
	records   MemberStore
	resolver  Resolver
	locker    Locker
	listeners []Listener
	logger    ectologger.Logger
}

func NewCache(db database.DB, batches BatchStore, entries EntryStore, records MemberStore, resolver Resolver, locker Locker, logger ectologger.Logger, listeners ...Listener) *Cache {
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &Cache{
		db:        db,
		batches:   batches,
		entries:   entries,
		records:   records,
		resolver:  resolver,
		locker:    locker,
		listeners: listeners,
		logger:    logger,
	}
}

func rebuildKey(batchID string) string {
	return "rebuild:" + batchID
}

// Rebuild recomputes the clusters of a ready batch and swaps them in. A
// second rebuild of the same batch while one runs fails with
// RebuildInProgress. Any failure leaves the previous entries in place.
func (c *Cache) Rebuild(ctx context.Context, batchID string) (*models.RebuildResult, error) {
	ctx, span := tracing.StartSpan(ctx, "ClusterCache.Rebuild")
	defer span.End()

	log := c.logger.WithContext(ctx).WithField("batch_id", batchID)

	held, release, err := c.locker.TryLock(ctx, rebuildKey(batchID))
	if errors.Is(err, ErrLocked) {
		metrics.RecordRebuild("conflict", 0)
		log.Info("Cluster rebuild already running")
		return nil, apperrors.NewRebuildInProgress(batchID)
	}
	if err != nil {
		log.WithError(err).Error("Failed to acquire rebuild lock")
		return nil, apperrors.NewStorageError("acquire rebuild lock", err)
	}
	defer release()
	ctx = held

	metrics.RebuildsInFlight.Inc()
	defer metrics.RebuildsInFlight.Dec()

	start := time.Now()
	clusters, built, err := c.rebuild(ctx, batchID)
	if err != nil {
		if errors.Is(context.Cause(ctx), ErrLockLost) {
			err = apperrors.NewStorageError("hold rebuild lock", ErrLockLost)
		}
		metrics.RecordRebuild("error", time.Since(start).Seconds())
		log.WithError(err).Error("Cluster rebuild failed")
		return nil, err
	}
	duration := time.Since(start)
	metrics.RecordRebuild("success", duration.Seconds())

	result := &models.RebuildResult{
		BatchID:       batchID,
		Clusters:      len(clusters),
		LinkedRecords: linkedRecords(clusters),
		Duration:      duration,
		BuiltAt:       *built.ClustersBuiltAt,
	}

	log.WithFields(map[string]any{
		"clusters":       result.Clusters,
		"linked_records": result.LinkedRecords,
		"duration_ms":    duration.Milliseconds(),
	}).Info("Rebuilt cluster cache")

	for _, l := range c.listeners {
		if err := l.ClustersRebuilt(ctx, batchID, clusters); err != nil {
			log.WithError(err).Warn("Rebuild listener failed")
		}
	}

	return result, nil
}

func (c *Cache) rebuild(ctx context.Context, batchID string) ([]models.Cluster, *models.Batch, error) {
	b, err := c.batches.Get(ctx, batchID)
	if err != nil {
		return nil, nil, err
	}
	if b.State == models.BatchStateIngesting {
		return nil, nil, httperror.NewHTTPErrorf(http.StatusConflict, "batch %s is still ingesting", batchID)
	}

	clusters, err := c.resolver.Resolve(ctx, batchID)
	if err != nil {
		return nil, nil, err
	}

	var built *models.Batch
	err = database.WithTx(ctx, c.db, nil, func(ctx context.Context) error {
		// batch row first, matching DeleteBatch
		var err error
		if built, err = c.batches.SetClustersBuiltAt(ctx, batchID); err != nil {
			return err
		}
		if _, err := c.entries.DeleteByBatch(ctx, batchID); err != nil {
			return err
		}
		return c.entries.InsertRanked(ctx, batchID, clusters)
	})
	if err != nil {
		return nil, nil, err
	}
	return clusters, built, nil
}

// Query reads one page of cached clusters with their member records. It
// never rebuilds; a batch whose cache was never built reads as empty.
func (c *Cache) Query(ctx context.Context, batchID string, kind models.KindFilter, page, pageSize int) (*models.ClusterPage, error) {
	ctx, span := tracing.StartSpan(ctx, "ClusterCache.Query")
	defer span.End()

	if kind == "" {
		kind = models.KindAll
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	metrics.ClusterQueries.WithLabelValues(string(kind)).Inc()

	result := &models.ClusterPage{
		BatchID:  batchID,
		Kind:     kind,
		Page:     page,
		PageSize: pageSize,
		Groups:   []models.ClusterGroup{},
	}

	err := database.WithTx(ctx, c.db, c.db.SnapshotTxOptions(), func(ctx context.Context) error {
		b, err := c.batches.Get(ctx, batchID)
		if err != nil {
			return err
		}
		result.BuiltAt = b.ClustersBuiltAt

		if result.TotalGroups, err = c.entries.Count(ctx, batchID, kind); err != nil {
			return err
		}
		offset := (page - 1) * pageSize
		if int64(offset) >= result.TotalGroups {
			return nil
		}

		clusters, err := c.entries.Page(ctx, batchID, kind, offset, pageSize)
		if err != nil {
			return err
		}

		var ids []int64
		for _, cl := range clusters {
			ids = append(ids, cl.MemberIDs...)
		}
		members, err := c.records.GetByIDs(ctx, batchID, ids)
		if err != nil {
			return err
		}
		byID := make(map[int64]models.Record, len(members))
		for _, m := range members {
			byID[m.ID] = m
		}

		for _, cl := range clusters {
			group := models.ClusterGroup{
				Key:         cl.Key,
				Kind:        cl.Kind,
				Identifiers: cl.Identifiers,
				MemberCount: cl.MemberCount(),
				Members:     make([]models.Record, 0, len(cl.MemberIDs)),
			}
			for _, id := range cl.MemberIDs {
				rec, ok := byID[id]
				if !ok {
					return apperrors.NewStorageError("read cluster members", errors.New("cached member record is missing"))
				}
				group.Members = append(group.Members, rec)
			}
			result.Groups = append(result.Groups, group)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Stats counts cached clusters per kind.
func (c *Cache) Stats(ctx context.Context, batchID string) (*models.ClusterStats, error) {
	ctx, span := tracing.StartSpan(ctx, "ClusterCache.Stats")
	defer span.End()

	stats := &models.ClusterStats{BatchID: batchID}
	err := database.WithTx(ctx, c.db, c.db.SnapshotTxOptions(), func(ctx context.Context) error {
		b, err := c.batches.Get(ctx, batchID)
		if err != nil {
			return err
		}
		stats.BuiltAt = b.ClustersBuiltAt

		rows, err := c.entries.CountByKind(ctx, batchID)
		if err != nil {
			return err
		}
		for _, row := range rows {
			groups := row.Groups.Int64
			switch models.ClusterKind(row.Kind.String) {
			case models.ClusterKindEmail:
				stats.EmailGroups = groups
			case models.ClusterKindPhone:
				stats.PhoneGroups = groups
			case models.ClusterKindMerged:
				stats.MergedGroups = groups
			}
			stats.TotalGroups += groups
			stats.LinkedRecords += row.Members.Int64
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Invalidate drops every cached cluster of a batch.
func (c *Cache) Invalidate(ctx context.Context, batchID string) error {
	ctx, span := tracing.StartSpan(ctx, "ClusterCache.Invalidate")
	defer span.End()

	return database.WithTx(ctx, c.db, nil, func(ctx context.Context) error {
		if err := c.batches.Lock(ctx, batchID); err != nil {
			return err
		}
		n, err := c.entries.DeleteByBatch(ctx, batchID)
		if err != nil {
			return err
		}
		c.logger.WithContext(ctx).WithFields(map[string]any{
			"batch_id": batchID,
			"entries":  n,
		}).Debug("Invalidated cluster cache")
		return nil
	})
}

func linkedRecords(clusters []models.Cluster) int {
	n := 0
	for _, cl := range clusters {
		n += cl.MemberCount()
	}
	return n
}
