package cacheentry

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/database"
	apperrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// insertBatchSize keeps each multi-row INSERT under SQLite's bound parameter
// limit
const insertBatchSize = 500

// EntryRepository defines the interface for cluster cache rows
type EntryRepository interface {
	InsertRanked(ctx context.Context, batchID string, clusters []models.Cluster) error
	Page(ctx context.Context, batchID string, kind models.KindFilter, offset, limit int) ([]models.Cluster, error)
	Count(ctx context.Context, batchID string, kind models.KindFilter) (int64, error)
	CountByKind(ctx context.Context, batchID string) ([]KindCountRow, error)
	All(ctx context.Context, batchID string) ([]models.Cluster, error)
	DeleteByBatch(ctx context.Context, batchID string) (int64, error)
}

// Repository implements EntryRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new cluster cache repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) conn(ctx context.Context) database.Executor {
	return database.Conn(ctx, r.db)
}

// InsertRanked stores clusters with their position in the slice as rank.
// It must run in the same transaction as the DeleteByBatch it follows.
func (r *Repository) InsertRanked(ctx context.Context, batchID string, clusters []models.Cluster) error {
	ctx, span := tracing.StartSpan(ctx, "CacheEntryRepository.InsertRanked")
	defer span.End()

	for start := 0; start < len(clusters); start += insertBatchSize {
		end := min(start+insertBatchSize, len(clusters))

		rows := make([]any, 0, end-start)
		for i := start; i < end; i++ {
			rows = append(rows, FromCluster(batchID, i, &clusters[i]))
		}

		ib := entryStruct.InsertInto(cacheTable, rows...)
		query, args := database.Build(r.db, ib)

		if _, err := r.conn(ctx).ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithField("batch_id", batchID).Error("Failed to insert cluster cache entries")
			return apperrors.NewStorageError("write cluster cache", err)
		}
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id": batchID,
		"clusters": len(clusters),
	}).Debug("Inserted cluster cache entries")

	return nil
}

// Page returns cached clusters matching kind in rank order
func (r *Repository) Page(ctx context.Context, batchID string, kind models.KindFilter, offset, limit int) ([]models.Cluster, error) {
	ctx, span := tracing.StartSpan(ctx, "CacheEntryRepository.Page")
	defer span.End()

	sb := entryStruct.SelectFrom(cacheTable)
	sb.Where(sb.Equal("batch_id", batchID))
	if kind != models.KindAll && kind != "" {
		sb.Where(sb.Equal("kind", string(kind)))
	}
	sb.OrderBy("cluster_rank")
	sb.Limit(limit).Offset(offset)
	query, args := database.Build(r.db, sb)

	var rows []EntryRow
	if err := r.conn(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("batch_id", batchID).Error("Failed to read cluster cache")
		return nil, apperrors.NewStorageError("read cluster cache", err)
	}

	return ToClusters(rows), nil
}

// Count returns the number of cached clusters matching kind
func (r *Repository) Count(ctx context.Context, batchID string, kind models.KindFilter) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "CacheEntryRepository.Count")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)").From(cacheTable)
	sb.Where(sb.Equal("batch_id", batchID))
	if kind != models.KindAll && kind != "" {
		sb.Where(sb.Equal("kind", string(kind)))
	}
	query, args := database.Build(r.db, sb)

	var total int64
	if err := r.conn(ctx).GetContext(ctx, &total, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("batch_id", batchID).Error("Failed to count cluster cache")
		return 0, apperrors.NewStorageError("read cluster cache", err)
	}
	return total, nil
}

// CountByKind returns group and member totals per cluster kind
func (r *Repository) CountByKind(ctx context.Context, batchID string) ([]KindCountRow, error) {
	ctx, span := tracing.StartSpan(ctx, "CacheEntryRepository.CountByKind")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("kind", sb.As("COUNT(*)", "group_count"), sb.As("SUM(member_count)", "member_total")).From(cacheTable)
	sb.Where(sb.Equal("batch_id", batchID))
	sb.GroupBy("kind")
	sb.OrderBy("kind")
	query, args := database.Build(r.db, sb)

	var rows []KindCountRow
	if err := r.conn(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("batch_id", batchID).Error("Failed to aggregate cluster cache")
		return nil, apperrors.NewStorageError("read cluster cache", err)
	}
	return rows, nil
}

// All returns every cached cluster of a batch in rank order
func (r *Repository) All(ctx context.Context, batchID string) ([]models.Cluster, error) {
	ctx, span := tracing.StartSpan(ctx, "CacheEntryRepository.All")
	defer span.End()

	sb := entryStruct.SelectFrom(cacheTable)
	sb.Where(sb.Equal("batch_id", batchID))
	sb.OrderBy("cluster_rank")
	query, args := database.Build(r.db, sb)

	var rows []EntryRow
	if err := r.conn(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("batch_id", batchID).Error("Failed to read cluster cache")
		return nil, apperrors.NewStorageError("read cluster cache", err)
	}
	return ToClusters(rows), nil
}

// DeleteByBatch removes every cached cluster of a batch
func (r *Repository) DeleteByBatch(ctx context.Context, batchID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "CacheEntryRepository.DeleteByBatch")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom(cacheTable)
	db.Where(db.Equal("batch_id", batchID))
	query, args := database.Build(r.db, db)

	result, err := r.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("batch_id", batchID).Error("Failed to delete cluster cache")
		return 0, apperrors.NewStorageError("delete cluster cache", err)
	}
	deleted, _ := result.RowsAffected()
	return deleted, nil
}
