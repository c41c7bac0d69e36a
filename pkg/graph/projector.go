package graph

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// unwindSize bounds the parameter list of one UNWIND statement
const unwindSize = 1000

const (
	deleteBatchCypher = `
		MATCH (c:Cluster {batch_id: $batch_id})
		DETACH DELETE c
	`
	// identifiers are shared across clusters of one batch only through
	// their (batch_id, key) pair
	projectCypher = `
		UNWIND $clusters AS cluster
		CREATE (c:Cluster {
			batch_id: $batch_id,
			key: cluster.key,
			kind: cluster.kind,
			rank: cluster.rank,
			member_count: cluster.member_count,
			member_ids: cluster.member_ids
		})
		WITH c, cluster
		UNWIND cluster.identifiers AS ident
		MERGE (i:Identifier {batch_id: $batch_id, key: ident.key})
		SET i.kind = ident.kind, i.value = ident.value
		CREATE (i)-[:LINKS {shared: ident.shared}]->(c)
	`
	pruneIdentifiersCypher = `
		MATCH (i:Identifier {batch_id: $batch_id})
		WHERE NOT (i)-[:LINKS]->()
		DELETE i
	`
)

// TxRunner runs managed write transactions; *Client implements it.
type TxRunner interface {
	ExecuteWrite(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error)
}

// Projector replaces a batch's projection after every rebuild.
type Projector struct {
	runner TxRunner
	logger ectologger.Logger
}

func NewProjector(runner TxRunner, logger ectologger.Logger) *Projector {
	return &Projector{
		runner: runner,
		logger: logger,
	}
}

// ClustersRebuilt swaps the batch's cluster nodes for the new set in one
// write transaction.
func (p *Projector) ClustersRebuilt(ctx context.Context, batchID string, clusters []models.Cluster) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.ClustersRebuilt")
	defer span.End()

	params := clusterParams(clusters)
	_, err := p.runner.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if err := run(ctx, tx, deleteBatchCypher, map[string]any{"batch_id": batchID}); err != nil {
			return nil, err
		}
		for start := 0; start < len(params); start += unwindSize {
			end := min(start+unwindSize, len(params))
			if err := run(ctx, tx, projectCypher, map[string]any{
				"batch_id": batchID,
				"clusters": params[start:end],
			}); err != nil {
				return nil, err
			}
		}
		return nil, run(ctx, tx, pruneIdentifiersCypher, map[string]any{"batch_id": batchID})
	})
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithField("batch_id", batchID).Error("Failed to project clusters")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id": batchID,
		"clusters": len(clusters),
	}).Debug("Projected clusters to graph")
	return nil
}

// RemoveBatch drops every node of a batch.
func (p *Projector) RemoveBatch(ctx context.Context, batchID string) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.RemoveBatch")
	defer span.End()

	_, err := p.runner.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if err := run(ctx, tx, deleteBatchCypher, map[string]any{"batch_id": batchID}); err != nil {
			return nil, err
		}
		return nil, run(ctx, tx, pruneIdentifiersCypher, map[string]any{"batch_id": batchID})
	})
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithField("batch_id", batchID).Error("Failed to remove batch from graph")
	}
	return err
}

func run(ctx context.Context, tx neo4j.ManagedTransaction, cypher string, params map[string]any) error {
	result, err := tx.Run(ctx, cypher, params)
	if err != nil {
		return err
	}
	_, err = result.Consume(ctx)
	return err
}

// clusterParams converts clusters to Bolt parameter maps. Bolt has no
// unsigned or custom types, so everything is a string, int64 or bool.
func clusterParams(clusters []models.Cluster) []any {
	out := make([]any, len(clusters))
	for rank, c := range clusters {
		idents := make([]any, len(c.Identifiers))
		for i, ident := range c.Identifiers {
			idents[i] = map[string]any{
				"key":    ident.Key(),
				"kind":   string(ident.Kind),
				"value":  ident.Value,
				"shared": ident.Shared,
			}
		}
		members := make([]any, len(c.MemberIDs))
		for i, id := range c.MemberIDs {
			members[i] = id
		}
		out[rank] = map[string]any{
			"key":          c.Key,
			"kind":         string(c.Kind),
			"rank":         int64(rank),
			"member_count": int64(c.MemberCount()),
			"member_ids":   members,
			"identifiers":  idents,
		}
	}
	return out
}
