// Package events describes the batch lifecycle events clover publishes and
// reacts to.
package events

import (
	"time"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

type EventType string

const (
	// BatchReady is published when an ingestion completes; consumers rebuild
	// the batch's clusters in response.
	BatchReady      EventType = "batch.ready"
	ClustersRebuilt EventType = "clusters.rebuilt"
	BatchDeleted    EventType = "batch.deleted"
)

// BatchEvent is the payload of every event. Counters are set where the event
// type has them.
type BatchEvent struct {
	EventType     EventType `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	BatchID       string    `json:"batch_id"`
	Filename      string    `json:"filename,omitempty"`
	TotalRecords  int64     `json:"total_records,omitempty"`
	RecordCount   int64     `json:"record_count,omitempty"`
	Clusters      int       `json:"clusters,omitempty"`
	LinkedRecords int       `json:"linked_records,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
