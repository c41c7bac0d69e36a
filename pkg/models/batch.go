package models

import (
	"time"

	"github.com/Ramsey-B/clover/pkg/headers"
)

type BatchState string

const (
	BatchStateIngesting BatchState = "ingesting"
	BatchStateReady     BatchState = "ready"
	BatchStateFailed    BatchState = "failed"
)

// IsTerminal reports whether the state can no longer change.
func (s BatchState) IsTerminal() bool {
	return s == BatchStateReady || s == BatchStateFailed
}

// Batch is the metadata of one ingestion run. TotalRecords counts rows read,
// RecordCount rows stored, DuplicateCount rows dropped as exact duplicates and
// FailedCount rows that could not be read or stored.
type Batch struct {
	BatchID         string     `json:"batch_id"`
	Filename        string     `json:"filename"`
	TotalRecords    int64      `json:"total_records"`
	RecordCount     int64      `json:"record_count"`
	DuplicateCount  int64      `json:"duplicate_count"`
	FailedCount     int64      `json:"failed_count"`
	Encoding        string     `json:"encoding,omitempty"`
	EmailColumn     string     `json:"email_column,omitempty"`
	PhoneColumn     string     `json:"phone_column,omitempty"`
	State           BatchState `json:"state"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	ClustersBuiltAt *time.Time `json:"clusters_built_at,omitempty"`
}

// BatchProgress is written after every persisted chunk and on completion.
type BatchProgress struct {
	TotalRecords   int64
	RecordCount    int64
	DuplicateCount int64
	FailedCount    int64
	Encoding       string
	EmailColumn    string
	PhoneColumn    string
}

// BatchFilter narrows a batch listing. Zero values mean "no constraint".
type BatchFilter struct {
	Filename     string     `query:"filename"`
	State        BatchState `query:"state" validate:"omitempty,oneof=ingesting ready failed"`
	MinTotal     *int64     `query:"min_total" validate:"omitempty,min=0"`
	MaxTotal     *int64     `query:"max_total" validate:"omitempty,min=0"`
	MinDuplicate *int64     `query:"min_duplicates" validate:"omitempty,min=0"`
	MaxDuplicate *int64     `query:"max_duplicates" validate:"omitempty,min=0"`
	CreatedFrom  *time.Time `query:"created_from"`
	CreatedTo    *time.Time `query:"created_to"`
	Page         int        `query:"page" validate:"omitempty,min=1"`
	PageSize     int        `query:"page_size" validate:"omitempty,min=1,max=500"`
}

type BatchPage struct {
	Items      []Batch `json:"items"`
	TotalCount int64   `json:"total_count"`
	Page       int     `json:"page"`
	PageSize   int     `json:"page_size"`
}

// IngestResult summarizes one ingestion.
type IngestResult struct {
	BatchID    string           `json:"batch_id"`
	Total      int64            `json:"total_records"`
	Inserted   int64            `json:"inserted_records"`
	Duplicates int64            `json:"duplicate_records"`
	Failed     int64            `json:"failed_records"`
	Encoding   string           `json:"encoding"`
	Columns    []string         `json:"columns"`
	Header     headers.Analysis `json:"header"`
	State      BatchState       `json:"state"`
	// Clusters is set when the clusters were rebuilt as part of the ingestion
	Clusters *RebuildResult `json:"clusters,omitempty"`
}
