package record

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/database"
	apperrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	// insertBatchSize keeps each multi-row INSERT under SQLite's bound
	// parameter limit
	insertBatchSize = 500
	// inListSize caps the ids bound into one IN (...) list
	inListSize = 500
	// maxSearchResults bounds an identifier search
	maxSearchResults = 1000
)

// RecordRepository defines the interface for record data access
type RecordRepository interface {
	InsertChunk(ctx context.Context, records []models.Record) (int64, error)
	ListIdentifiers(ctx context.Context, batchID string, afterID int64, limit int) ([]models.RecordIdentifiers, error)
	GetByIDs(ctx context.Context, batchID string, ids []int64) ([]models.Record, error)
	Preview(ctx context.Context, batchID string, page, pageSize int) (*models.RecordPage, error)
	SearchByIdentifier(ctx context.Context, batchID, value string) ([]models.Record, error)
	Count(ctx context.Context, batchID string) (int64, error)
	DeleteByBatch(ctx context.Context, batchID string) (int64, error)
}

// Repository implements RecordRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new record repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) conn(ctx context.Context) database.Executor {
	return database.Conn(ctx, r.db)
}

// InsertChunk writes records with multi-row inserts. Callers wrap it in a
// transaction so a chunk lands whole or not at all.
func (r *Repository) InsertChunk(ctx context.Context, records []models.Record) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "RecordRepository.InsertChunk")
	defer span.End()

	var inserted int64
	for start := 0; start < len(records); start += insertBatchSize {
		end := min(start+insertBatchSize, len(records))

		rows := make([]any, 0, end-start)
		for i := start; i < end; i++ {
			rows = append(rows, FromRecord(&records[i]))
		}

		ib := recordStruct.InsertInto(recordsTable, rows...)
		query, args := database.Build(r.db, ib)

		result, err := r.conn(ctx).ExecContext(ctx, query, args...)
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"batch_id": records[start].BatchID,
				"rows":     end - start,
			}).Error("Failed to insert records")
			return inserted, apperrors.NewStorageError("insert records", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return inserted, apperrors.NewStorageError("insert records", err)
		}
		inserted += n
	}

	return inserted, nil
}

// ListIdentifiers pages through records that carry an email or phone, in id
// order, starting after afterID
func (r *Repository) ListIdentifiers(ctx context.Context, batchID string, afterID int64, limit int) ([]models.RecordIdentifiers, error) {
	ctx, span := tracing.StartSpan(ctx, "RecordRepository.ListIdentifiers")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("row_id", "email", "phone").From(recordsTable)
	sb.Where(
		sb.Equal("batch_id", batchID),
		sb.GreaterThan("row_id", afterID),
		sb.Or(sb.IsNotNull("email"), sb.IsNotNull("phone")),
	)
	sb.OrderBy("row_id")
	sb.Limit(limit)
	query, args := database.Build(r.db, sb)

	var rows []IdentifierRow
	if err := r.conn(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("batch_id", batchID).Error("Failed to list record identifiers")
		return nil, apperrors.NewStorageError("read records", err)
	}

	return ToIdentifiers(rows), nil
}

// GetByIDs returns the records with the given ids in id order
func (r *Repository) GetByIDs(ctx context.Context, batchID string, ids []int64) ([]models.Record, error) {
	ctx, span := tracing.StartSpan(ctx, "RecordRepository.GetByIDs")
	defer span.End()

	out := make([]models.Record, 0, len(ids))
	for start := 0; start < len(ids); start += inListSize {
		end := min(start+inListSize, len(ids))

		values := make([]any, 0, end-start)
		for _, id := range ids[start:end] {
			values = append(values, id)
		}

		sb := recordStruct.SelectFrom(recordsTable)
		sb.Where(
			sb.Equal("batch_id", batchID),
			sb.In("row_id", values...),
		)
		sb.OrderBy("row_id")
		query, args := database.Build(r.db, sb)

		var rows []RecordRow
		if err := r.conn(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithField("batch_id", batchID).Error("Failed to get records")
			return nil, apperrors.NewStorageError("read records", err)
		}
		out = append(out, ToRecords(rows)...)
	}

	// chunks are ordered individually; ids may arrive unsorted
	sortRecords(out)
	return out, nil
}

// Preview returns one page of a batch's records in id order
func (r *Repository) Preview(ctx context.Context, batchID string, page, pageSize int) (*models.RecordPage, error) {
	ctx, span := tracing.StartSpan(ctx, "RecordRepository.Preview")
	defer span.End()

	total, err := r.Count(ctx, batchID)
	if err != nil {
		return nil, err
	}

	sb := recordStruct.SelectFrom(recordsTable)
	sb.Where(sb.Equal("batch_id", batchID))
	sb.OrderBy("row_id")
	sb.Limit(pageSize).Offset((page - 1) * pageSize)
	query, args := database.Build(r.db, sb)

	var rows []RecordRow
	if err := r.conn(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("batch_id", batchID).Error("Failed to preview records")
		return nil, apperrors.NewStorageError("read records", err)
	}

	return &models.RecordPage{
		Items:      ToRecords(rows),
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// SearchByIdentifier finds records whose normalized email or phone equals
// value after the same normalization
func (r *Repository) SearchByIdentifier(ctx context.Context, batchID, value string) ([]models.Record, error) {
	ctx, span := tracing.StartSpan(ctx, "RecordRepository.SearchByIdentifier")
	defer span.End()

	var conds []string
	sb := recordStruct.SelectFrom(recordsTable)
	if email, ok := normalizers.NormalizeEmail(value); ok {
		conds = append(conds, sb.Equal("email", email))
	}
	if phone, ok := normalizers.NormalizePhone(value); ok {
		conds = append(conds, sb.Equal("phone", phone))
	}
	if len(conds) == 0 {
		return []models.Record{}, nil
	}

	sb.Where(sb.Equal("batch_id", batchID), sb.Or(conds...))
	sb.OrderBy("row_id")
	sb.Limit(maxSearchResults)
	query, args := database.Build(r.db, sb)

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id": batchID,
	}).Debug("Searching records by identifier")

	var rows []RecordRow
	if err := r.conn(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("batch_id", batchID).Error("Failed to search records")
		return nil, apperrors.NewStorageError("search records", err)
	}

	return ToRecords(rows), nil
}

// Count returns the number of stored records of a batch
func (r *Repository) Count(ctx context.Context, batchID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "RecordRepository.Count")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)").From(recordsTable)
	sb.Where(sb.Equal("batch_id", batchID))
	query, args := database.Build(r.db, sb)

	var total int64
	if err := r.conn(ctx).GetContext(ctx, &total, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("batch_id", batchID).Error("Failed to count records")
		return 0, apperrors.NewStorageError("count records", err)
	}
	return total, nil
}

// DeleteByBatch removes every record of a batch
func (r *Repository) DeleteByBatch(ctx context.Context, batchID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "RecordRepository.DeleteByBatch")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom(recordsTable)
	db.Where(db.Equal("batch_id", batchID))
	query, args := database.Build(r.db, db)

	result, err := r.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("batch_id", batchID).Error("Failed to delete records")
		return 0, apperrors.NewStorageError("delete records", err)
	}
	deleted, _ := result.RowsAffected()
	return deleted, nil
}
