package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Publisher is implemented by kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, msgs ...kafka.Message) error
}

// Emitter publishes batch lifecycle events keyed by batch id.
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

// EmitBatchReady announces a batch that finished ingesting
func (e *Emitter) EmitBatchReady(ctx context.Context, batch *models.Batch) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitBatchReady")
	defer span.End()

	return e.emit(ctx, &BatchEvent{
		EventType:    BatchReady,
		BatchID:      batch.BatchID,
		Filename:     batch.Filename,
		TotalRecords: batch.TotalRecords,
		RecordCount:  batch.RecordCount,
	})
}

// ClustersRebuilt announces a committed cache rebuild. It lets the emitter
// listen to the cluster cache.
func (e *Emitter) ClustersRebuilt(ctx context.Context, batchID string, clusters []models.Cluster) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.ClustersRebuilt")
	defer span.End()

	linked := 0
	for _, c := range clusters {
		linked += c.MemberCount()
	}
	return e.emit(ctx, &BatchEvent{
		EventType:     ClustersRebuilt,
		BatchID:       batchID,
		Clusters:      len(clusters),
		LinkedRecords: linked,
	})
}

// EmitBatchDeleted announces a deleted batch
func (e *Emitter) EmitBatchDeleted(ctx context.Context, batchID string) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitBatchDeleted")
	defer span.End()

	return e.emit(ctx, &BatchEvent{EventType: BatchDeleted, BatchID: batchID})
}

func (e *Emitter) emit(ctx context.Context, event *BatchEvent) error {
	event.SchemaVersion = SchemaVersion
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	headers := map[string]string{
		"event_type":     string(event.EventType),
		"schema_version": SchemaVersion,
	}
	if traceParent := tracing.GetTraceParent(ctx); traceParent != "" {
		headers["traceparent"] = traceParent
	}

	err = e.publisher.Publish(ctx, kafka.Message{
		Key:     event.BatchID,
		Value:   data,
		Headers: headers,
	})
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type": event.EventType,
			"batch_id":   event.BatchID,
		}).Error("Failed to emit event")
		return err
	}
	return nil
}

// Decode parses an event published by an Emitter.
func Decode(msg *kafka.IncomingMessage) (*BatchEvent, error) {
	var event BatchEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return nil, err
	}
	if event.EventType == "" {
		event.EventType = EventType(msg.Headers["event_type"])
	}
	if event.BatchID == "" {
		event.BatchID = msg.Key
	}
	return &event, nil
}
