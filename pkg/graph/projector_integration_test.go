//go:build integration

package graph_test

import (
	"context"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/database/dbtest"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/models"
)

func count(t *testing.T, client *graph.Client, cypher string, params map[string]any) int64 {
	t.Helper()
	n, err := client.ExecuteWrite(context.Background(), func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(context.Background(), cypher, params)
		if err != nil {
			return nil, err
		}
		record, err := result.Single(context.Background())
		if err != nil {
			return nil, err
		}
		return record.Values[0], nil
	})
	require.NoError(t, err)
	return n.(int64)
}

func TestProjector_Memgraph(t *testing.T) {
	host, port := dbtest.StartMemgraph(t)
	client, err := graph.NewClient(graph.Config{Host: host, Port: port}, dbtest.Logger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close(context.Background()) })
	require.NoError(t, client.VerifyConnectivity(context.Background()))

	projector := graph.NewProjector(client, dbtest.Logger())
	clusters := []models.Cluster{
		{
			Key:  "email:a@x.com",
			Kind: models.ClusterKindMerged,
			Identifiers: []models.Identifier{
				{Kind: models.IdentifierEmail, Value: "a@x.com", Shared: true},
				{Kind: models.IdentifierPhone, Value: "5551234", Shared: true},
			},
			MemberIDs: []int64{1, 2, 3},
		},
		{
			Key:         "email:b@y.com",
			Kind:        models.ClusterKindEmail,
			Identifiers: []models.Identifier{{Kind: models.IdentifierEmail, Value: "b@y.com", Shared: true}},
			MemberIDs:   []int64{4, 5},
		},
	}

	ctx := context.Background()
	require.NoError(t, projector.ClustersRebuilt(ctx, "b1", clusters))
	require.NoError(t, projector.ClustersRebuilt(ctx, "b2", clusters[:1]))

	batch := map[string]any{"batch_id": "b1"}
	assert.Equal(t, int64(2), count(t, client, `MATCH (c:Cluster {batch_id: $batch_id}) RETURN count(c)`, batch))
	assert.Equal(t, int64(3), count(t, client, `MATCH (:Identifier {batch_id: $batch_id})-[l:LINKS]->() RETURN count(l)`, batch))

	// a rebuild replaces the projection instead of adding to it
	require.NoError(t, projector.ClustersRebuilt(ctx, "b1", clusters[1:]))
	assert.Equal(t, int64(1), count(t, client, `MATCH (c:Cluster {batch_id: $batch_id}) RETURN count(c)`, batch))
	assert.Equal(t, int64(1), count(t, client, `MATCH (i:Identifier {batch_id: $batch_id}) RETURN count(i)`, batch))

	require.NoError(t, projector.RemoveBatch(ctx, "b1"))
	assert.Equal(t, int64(0), count(t, client, `MATCH (n {batch_id: $batch_id}) RETURN count(n)`, batch))
	assert.Equal(t, int64(1), count(t, client, `MATCH (c:Cluster {batch_id: $batch_id}) RETURN count(c)`, map[string]any{"batch_id": "b2"}))
}
