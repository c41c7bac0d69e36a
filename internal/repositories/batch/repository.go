package batch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/database"
	apperrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	defaultPageSize = 20
)

// BatchRepository defines the interface for batch metadata access
type BatchRepository interface {
	Create(ctx context.Context, batch *models.Batch) (*models.Batch, error)
	Get(ctx context.Context, batchID string) (*models.Batch, error)
	Lock(ctx context.Context, batchID string) error
	UpdateProgress(ctx context.Context, batchID string, progress models.BatchProgress) error
	MarkReady(ctx context.Context, batchID string, progress models.BatchProgress) error
	MarkFailed(ctx context.Context, batchID string, progress models.BatchProgress, message string) error
	SetClustersBuiltAt(ctx context.Context, batchID string) (*models.Batch, error)
	List(ctx context.Context, filter models.BatchFilter) (*models.BatchPage, error)
	ListIDsByState(ctx context.Context, state models.BatchState) ([]string, error)
	Delete(ctx context.Context, batchID string) error
}

// Repository implements BatchRepository. Statements run on the transaction
// carried by ctx when there is one.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new batch repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) conn(ctx context.Context) database.Executor {
	return database.Conn(ctx, r.db)
}

// Create inserts a new batch in the ingesting state
func (r *Repository) Create(ctx context.Context, batch *models.Batch) (*models.Batch, error) {
	ctx, span := tracing.StartSpan(ctx, "BatchRepository.Create")
	defer span.End()

	now := Now()
	batch.CreatedAt = now
	batch.UpdatedAt = now
	if batch.State == "" {
		batch.State = models.BatchStateIngesting
	}

	ib := batchStruct.InsertInto(batchesTable, FromBatch(batch))
	query, args := database.Build(r.db, ib)

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id": batch.BatchID,
		"filename": batch.Filename,
	}).Debug("Creating batch")

	if _, err := r.conn(ctx).ExecContext(ctx, query, args...); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, httperror.NewHTTPErrorf(http.StatusConflict, "batch %s already exists", batch.BatchID)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create batch")
		return nil, apperrors.NewStorageError("create batch", err)
	}

	return batch, nil
}

// Get retrieves a batch by id
func (r *Repository) Get(ctx context.Context, batchID string) (*models.Batch, error) {
	ctx, span := tracing.StartSpan(ctx, "BatchRepository.Get")
	defer span.End()

	sb := batchStruct.SelectFrom(batchesTable)
	sb.Where(sb.Equal("batch_id", batchID))
	query, args := database.Build(r.db, sb)

	var row BatchRow
	if err := r.conn(ctx).GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewBatchNotFound(batchID)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("batch_id", batchID).Error("Failed to get batch")
		return nil, apperrors.NewStorageError("get batch", err)
	}

	return ToBatch(&row), nil
}

// Lock touches the batch row inside the current transaction so writers that
// span several tables of the same batch take their row locks in one order.
// It returns BatchNotFound when the batch is gone.
func (r *Repository) Lock(ctx context.Context, batchID string) error {
	ctx, span := tracing.StartSpan(ctx, "BatchRepository.Lock")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(batchesTable)
	ub.Set(ub.Assign("updated_at", Now()))
	ub.Where(ub.Equal("batch_id", batchID))

	return r.exec(ctx, ub, batchID, "lock batch")
}

// UpdateProgress records counters while the batch is still ingesting
func (r *Repository) UpdateProgress(ctx context.Context, batchID string, progress models.BatchProgress) error {
	ctx, span := tracing.StartSpan(ctx, "BatchRepository.UpdateProgress")
	defer span.End()

	ub := progressUpdate(progress)
	ub.Where(
		ub.Equal("batch_id", batchID),
		ub.Equal("state", string(models.BatchStateIngesting)),
	)

	return r.checkIngesting(ctx, batchID, r.exec(ctx, ub, batchID, "update batch progress"))
}

// MarkReady moves an ingesting batch to ready with its final counters
func (r *Repository) MarkReady(ctx context.Context, batchID string, progress models.BatchProgress) error {
	ctx, span := tracing.StartSpan(ctx, "BatchRepository.MarkReady")
	defer span.End()

	return r.transition(ctx, batchID, progress, models.BatchStateReady, "")
}

// MarkFailed moves an ingesting batch to failed and keeps the reason
func (r *Repository) MarkFailed(ctx context.Context, batchID string, progress models.BatchProgress, message string) error {
	ctx, span := tracing.StartSpan(ctx, "BatchRepository.MarkFailed")
	defer span.End()

	return r.transition(ctx, batchID, progress, models.BatchStateFailed, message)
}

func (r *Repository) transition(ctx context.Context, batchID string, progress models.BatchProgress, to models.BatchState, message string) error {
	ub := progressUpdate(progress)
	assignments := []string{ub.Assign("state", string(to))}
	if message != "" {
		assignments = append(assignments, ub.Assign("error_message", message))
	}
	ub.SetMore(assignments...)
	ub.Where(
		ub.Equal("batch_id", batchID),
		ub.Equal("state", string(models.BatchStateIngesting)),
	)

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id": batchID,
		"state":    to,
	}).Debug("Transitioning batch")

	return r.checkIngesting(ctx, batchID, r.exec(ctx, ub, batchID, "update batch state"))
}

// checkIngesting explains a write guarded by state = ingesting that matched
// no row: either the batch is gone or it already left ingesting.
func (r *Repository) checkIngesting(ctx context.Context, batchID string, err error) error {
	if !apperrors.IsBatchNotFound(err) {
		return err
	}

	current, getErr := r.Get(ctx, batchID)
	if getErr != nil {
		return getErr
	}
	return httperror.NewHTTPErrorf(http.StatusConflict, "batch %s is already %s", batchID, current.State)
}

func progressUpdate(progress models.BatchProgress) *database.UpdateBuilder {
	ub := database.NewUpdateBuilder()
	ub.Update(batchesTable)
	ub.Set(
		ub.Assign("total_records", progress.TotalRecords),
		ub.Assign("record_count", progress.RecordCount),
		ub.Assign("duplicate_count", progress.DuplicateCount),
		ub.Assign("failed_count", progress.FailedCount),
		ub.Assign("encoding", progress.Encoding),
		ub.Assign("email_column", progress.EmailColumn),
		ub.Assign("phone_column", progress.PhoneColumn),
		ub.Assign("updated_at", Now()),
	)
	return ub
}

// SetClustersBuiltAt stamps the batch after a cache rebuild. Run inside the
// rebuild transaction it also fails the rebuild when the batch was deleted
// underneath it.
func (r *Repository) SetClustersBuiltAt(ctx context.Context, batchID string) (*models.Batch, error) {
	ctx, span := tracing.StartSpan(ctx, "BatchRepository.SetClustersBuiltAt")
	defer span.End()

	now := Now()
	ub := database.NewUpdateBuilder()
	ub.Update(batchesTable)
	ub.Set(
		ub.Assign("clusters_built_at", now),
		ub.Assign("updated_at", now),
	)
	ub.Where(ub.Equal("batch_id", batchID))

	if err := r.exec(ctx, ub, batchID, "stamp cluster rebuild"); err != nil {
		return nil, err
	}
	return r.Get(ctx, batchID)
}

// List returns batches newest first
func (r *Repository) List(ctx context.Context, filter models.BatchFilter) (*models.BatchPage, error) {
	ctx, span := tracing.StartSpan(ctx, "BatchRepository.List")
	defer span.End()

	page, pageSize := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}

	countSB := database.NewSelectBuilder()
	countSB.Select("COUNT(*)").From(batchesTable)
	applyFilter(countSB, filter)
	countQuery, countArgs := database.Build(r.db, countSB)

	sb := batchStruct.SelectFrom(batchesTable)
	applyFilter(sb, filter)
	sb.OrderBy("created_at DESC", "batch_id DESC")
	sb.Limit(pageSize).Offset((page - 1) * pageSize)
	query, args := database.Build(r.db, sb)

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"page":      page,
		"page_size": pageSize,
	}).Debug("Listing batches")

	var total int64
	if err := r.conn(ctx).GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count batches")
		return nil, apperrors.NewStorageError("list batches", err)
	}

	var rows []BatchRow
	if err := r.conn(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list batches")
		return nil, apperrors.NewStorageError("list batches", err)
	}

	return &models.BatchPage{
		Items:      ToBatches(rows),
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

func applyFilter(sb *database.SelectBuilder, filter models.BatchFilter) {
	if name := strings.TrimSpace(filter.Filename); name != "" {
		pattern := "%" + escapeLike(strings.ToLower(name)) + "%"
		sb.Where(fmt.Sprintf("LOWER(filename) LIKE %s ESCAPE '\\'", sb.Var(pattern)))
	}
	if filter.State != "" {
		sb.Where(sb.Equal("state", string(filter.State)))
	}
	if filter.MinTotal != nil {
		sb.Where(sb.GreaterEqualThan("total_records", *filter.MinTotal))
	}
	if filter.MaxTotal != nil {
		sb.Where(sb.LessEqualThan("total_records", *filter.MaxTotal))
	}
	if filter.MinDuplicate != nil {
		sb.Where(sb.GreaterEqualThan("duplicate_count", *filter.MinDuplicate))
	}
	if filter.MaxDuplicate != nil {
		sb.Where(sb.LessEqualThan("duplicate_count", *filter.MaxDuplicate))
	}
	if filter.CreatedFrom != nil {
		sb.Where(sb.GreaterEqualThan("created_at", filter.CreatedFrom.UTC()))
	}
	if filter.CreatedTo != nil {
		sb.Where(sb.LessEqualThan("created_at", filter.CreatedTo.UTC()))
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// ListIDsByState returns the ids of every batch in a state, oldest first
func (r *Repository) ListIDsByState(ctx context.Context, state models.BatchState) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "BatchRepository.ListIDsByState")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("batch_id").From(batchesTable)
	sb.Where(sb.Equal("state", string(state)))
	sb.OrderBy("created_at", "batch_id")
	query, args := database.Build(r.db, sb)

	var ids []string
	if err := r.conn(ctx).SelectContext(ctx, &ids, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list batch ids")
		return nil, apperrors.NewStorageError("list batches", err)
	}
	return ids, nil
}

// Delete removes the batch row. Records and cache entries must already be
// gone or go in the same transaction.
func (r *Repository) Delete(ctx context.Context, batchID string) error {
	ctx, span := tracing.StartSpan(ctx, "BatchRepository.Delete")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom(batchesTable)
	db.Where(db.Equal("batch_id", batchID))

	r.logger.WithContext(ctx).WithField("batch_id", batchID).Debug("Deleting batch")

	return r.exec(ctx, db, batchID, "delete batch")
}

// exec runs a single-row write and maps zero affected rows to BatchNotFound
func (r *Repository) exec(ctx context.Context, b database.Builder, batchID, op string) error {
	query, args := database.Build(r.db, b)

	result, err := r.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("batch_id", batchID).Errorf("Failed to %s", op)
		return apperrors.NewStorageError(op, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewStorageError(op, err)
	}
	if rowsAffected == 0 {
		return apperrors.NewBatchNotFound(batchID)
	}
	return nil
}
