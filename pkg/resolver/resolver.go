// Package resolver finds clusters of records linked through shared emails and
// phones. Resolution runs in three stages: Builder collects edges into an
// immutable Graph, Graph.Components joins them, and Format orders the result.
package resolver

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const DefaultPageSize = 10000

// RecordSource pages through the identifiers of a batch in id order.
type RecordSource interface {
	ListIdentifiers(ctx context.Context, batchID string, afterID int64, limit int) ([]models.RecordIdentifiers, error)
}

// BatchSource confirms a batch exists.
type BatchSource interface {
	Get(ctx context.Context, batchID string) (*models.Batch, error)
}

type Resolver struct {
	batches  BatchSource
	records  RecordSource
	pageSize int
	logger   ectologger.Logger
}

func NewResolver(batches BatchSource, records RecordSource, pageSize int, logger ectologger.Logger) *Resolver {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Resolver{
		batches:  batches,
		records:  records,
		pageSize: pageSize,
		logger:   logger,
	}
}

// Resolve computes every cluster of a batch from the stored records. Errors
// from storage abort the computation; an empty result means no record shares
// an identifier.
func (r *Resolver) Resolve(ctx context.Context, batchID string) ([]models.Cluster, error) {
	ctx, span := tracing.StartSpan(ctx, "Resolver.Resolve")
	defer span.End()

	if _, err := r.batches.Get(ctx, batchID); err != nil {
		return nil, err
	}

	start := time.Now()
	builder := NewBuilder()
	var after int64
	for {
		page, err := r.records.ListIdentifiers(ctx, batchID, after, r.pageSize)
		if err != nil {
			return nil, err
		}
		for _, rec := range page {
			builder.Add(rec.ID, rec.Email, rec.Phone)
		}
		if len(page) < r.pageSize {
			break
		}
		after = page[len(page)-1].ID
	}

	graph := builder.Build()
	clusters := Format(graph, graph.Components())

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id":      batchID,
		"records":       builder.Records(),
		"graph_nodes":   graph.NodeCount(),
		"graph_records": graph.RecordCount(),
		"clusters":      len(clusters),
		"duration_ms":   time.Since(start).Milliseconds(),
	}).Info("Resolved clusters")

	return clusters, nil
}
