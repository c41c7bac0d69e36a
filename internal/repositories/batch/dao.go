package batch

import (
	"database/sql"
	"time"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
)

const (
	batchesTable = "batches"
)

// BatchRow represents the database row for a batch
type BatchRow struct {
	BatchID         sql.NullString `db:"batch_id"`
	Filename        sql.NullString `db:"filename"`
	TotalRecords    sql.NullInt64  `db:"total_records"`
	RecordCount     sql.NullInt64  `db:"record_count"`
	DuplicateCount  sql.NullInt64  `db:"duplicate_count"`
	FailedCount     sql.NullInt64  `db:"failed_count"`
	Encoding        sql.NullString `db:"encoding"`
	EmailColumn     sql.NullString `db:"email_column"`
	PhoneColumn     sql.NullString `db:"phone_column"`
	State           sql.NullString `db:"state"`
	ErrorMessage    sql.NullString `db:"error_message"`
	CreatedAt       sql.NullTime   `db:"created_at"`
	UpdatedAt       sql.NullTime   `db:"updated_at"`
	ClustersBuiltAt sql.NullTime   `db:"clusters_built_at"`
}

var batchStruct = database.NewStruct(new(BatchRow))

// FromBatch converts a domain model to a database row
func FromBatch(b *models.Batch) *BatchRow {
	row := &BatchRow{
		BatchID:        sql.NullString{String: b.BatchID, Valid: b.BatchID != ""},
		Filename:       sql.NullString{String: b.Filename, Valid: true},
		TotalRecords:   sql.NullInt64{Int64: b.TotalRecords, Valid: true},
		RecordCount:    sql.NullInt64{Int64: b.RecordCount, Valid: true},
		DuplicateCount: sql.NullInt64{Int64: b.DuplicateCount, Valid: true},
		FailedCount:    sql.NullInt64{Int64: b.FailedCount, Valid: true},
		Encoding:       sql.NullString{String: b.Encoding, Valid: true},
		EmailColumn:    sql.NullString{String: b.EmailColumn, Valid: true},
		PhoneColumn:    sql.NullString{String: b.PhoneColumn, Valid: true},
		State:          sql.NullString{String: string(b.State), Valid: b.State != ""},
		ErrorMessage:   sql.NullString{String: b.ErrorMessage, Valid: b.ErrorMessage != ""},
		CreatedAt:      sql.NullTime{Time: b.CreatedAt, Valid: !b.CreatedAt.IsZero()},
		UpdatedAt:      sql.NullTime{Time: b.UpdatedAt, Valid: !b.UpdatedAt.IsZero()},
	}
	if b.ClustersBuiltAt != nil {
		row.ClustersBuiltAt = sql.NullTime{Time: *b.ClustersBuiltAt, Valid: true}
	}
	return row
}

// ToBatch converts a database row to a domain model
func ToBatch(row *BatchRow) *models.Batch {
	b := &models.Batch{
		BatchID:        row.BatchID.String,
		Filename:       row.Filename.String,
		TotalRecords:   row.TotalRecords.Int64,
		RecordCount:    row.RecordCount.Int64,
		DuplicateCount: row.DuplicateCount.Int64,
		FailedCount:    row.FailedCount.Int64,
		Encoding:       row.Encoding.String,
		EmailColumn:    row.EmailColumn.String,
		PhoneColumn:    row.PhoneColumn.String,
		State:          models.BatchState(row.State.String),
		ErrorMessage:   row.ErrorMessage.String,
		CreatedAt:      row.CreatedAt.Time.UTC(),
		UpdatedAt:      row.UpdatedAt.Time.UTC(),
	}
	if row.ClustersBuiltAt.Valid {
		built := row.ClustersBuiltAt.Time.UTC()
		b.ClustersBuiltAt = &built
	}
	return b
}

// ToBatches converts a slice of database rows to domain models
func ToBatches(rows []BatchRow) []models.Batch {
	batches := make([]models.Batch, len(rows))
	for i := range rows {
		batches[i] = *ToBatch(&rows[i])
	}
	return batches
}

// Now returns the current time in UTC
func Now() time.Time {
	return time.Now().UTC()
}
