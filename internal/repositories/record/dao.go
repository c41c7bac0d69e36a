package record

import (
	"cmp"
	"database/sql"
	"slices"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
)

const (
	recordsTable = "records"
)

// RecordRow represents the database row for a record
type RecordRow struct {
	BatchID     sql.NullString                `db:"batch_id"`
	RowID       sql.NullInt64                 `db:"row_id"`
	Fields      database.JSONB[models.Fields] `db:"fields"`
	Email       sql.NullString                `db:"email"`
	Phone       sql.NullString                `db:"phone"`
	Fingerprint sql.NullString                `db:"fingerprint"`
}

// IdentifierRow is the narrow projection the resolver pages through
type IdentifierRow struct {
	RowID sql.NullInt64  `db:"row_id"`
	Email sql.NullString `db:"email"`
	Phone sql.NullString `db:"phone"`
}

var recordStruct = database.NewStruct(new(RecordRow))

// FromRecord converts a domain model to a database row
func FromRecord(r *models.Record) *RecordRow {
	fields := r.Fields
	if fields == nil {
		fields = models.Fields{}
	}
	return &RecordRow{
		BatchID:     sql.NullString{String: r.BatchID, Valid: r.BatchID != ""},
		RowID:       sql.NullInt64{Int64: r.ID, Valid: true},
		Fields:      database.JSONB[models.Fields]{Data: fields},
		Email:       nullString(r.Email),
		Phone:       nullString(r.Phone),
		Fingerprint: sql.NullString{String: r.Fingerprint, Valid: true},
	}
}

// ToRecord converts a database row to a domain model
func ToRecord(row *RecordRow) *models.Record {
	return &models.Record{
		ID:          row.RowID.Int64,
		BatchID:     row.BatchID.String,
		Fields:      row.Fields.Data,
		Email:       stringPtr(row.Email),
		Phone:       stringPtr(row.Phone),
		Fingerprint: row.Fingerprint.String,
	}
}

// ToRecords converts a slice of database rows to domain models
func ToRecords(rows []RecordRow) []models.Record {
	records := make([]models.Record, len(rows))
	for i := range rows {
		records[i] = *ToRecord(&rows[i])
	}
	return records
}

// ToIdentifiers converts identifier rows to domain models
func ToIdentifiers(rows []IdentifierRow) []models.RecordIdentifiers {
	out := make([]models.RecordIdentifiers, len(rows))
	for i, row := range rows {
		out[i] = models.RecordIdentifiers{
			ID:    row.RowID.Int64,
			Email: stringPtr(row.Email),
			Phone: stringPtr(row.Phone),
		}
	}
	return out
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func sortRecords(records []models.Record) {
	slices.SortFunc(records, func(a, b models.Record) int {
		return cmp.Compare(a.ID, b.ID)
	})
}
