package events

import (
	"context"

	"github.com/Gobusters/ectologger"

	apperrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
)

// Rebuilder is implemented by the cluster cache.
type Rebuilder interface {
	Rebuild(ctx context.Context, batchID string) (*models.RebuildResult, error)
}

// RebuildHandler rebuilds clusters for every batch.ready event. Events for
// batches that are gone or already rebuilding are acknowledged; other
// failures are returned so the message stays uncommitted.
func RebuildHandler(rebuilder Rebuilder, logger ectologger.Logger) kafka.MessageHandler {
	return func(ctx context.Context, msg *kafka.IncomingMessage) error {
		event, err := Decode(msg)
		if err != nil {
			// a payload that never parses would block the partition forever
			logger.WithContext(ctx).WithError(err).WithField("offset", msg.Offset).Warn("Skipping undecodable event")
			metrics.RecordKafkaConsume("unknown", "skipped")
			return nil
		}

		if event.EventType != BatchReady {
			metrics.RecordKafkaConsume(string(event.EventType), "ignored")
			return nil
		}

		log := logger.WithContext(ctx).WithField("batch_id", event.BatchID)
		_, err = rebuilder.Rebuild(ctx, event.BatchID)
		switch {
		case err == nil:
			metrics.RecordKafkaConsume(string(event.EventType), "success")
			return nil
		case apperrors.IsBatchNotFound(err):
			log.Info("Batch deleted before its clusters were built")
			metrics.RecordKafkaConsume(string(event.EventType), "skipped")
			return nil
		case apperrors.IsRebuildInProgress(err):
			log.Info("Rebuild already running elsewhere")
			metrics.RecordKafkaConsume(string(event.EventType), "skipped")
			return nil
		default:
			metrics.RecordKafkaConsume(string(event.EventType), "error")
			return err
		}
	}
}
