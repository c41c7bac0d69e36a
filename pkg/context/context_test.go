package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFields(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, Fields(ctx))

	ctx = SetRequestID(ctx, "req-1")
	ctx = SetBatchID(ctx, "b1")
	ctx = SetOperation(ctx, "ingest")
	assert.Equal(t, map[string]any{
		"request_id": "req-1",
		"batch_id":   "b1",
		"operation":  "ingest",
	}, Fields(ctx))

	ctx = SetMethod(ctx, "POST")
	ctx = SetRoute(ctx, "/api/v1/batches")
	ctx = SetRemoteIP(ctx, "10.0.0.1")
	fields := Fields(ctx)
	assert.Equal(t, "POST", fields["method"])
	assert.Equal(t, "/api/v1/batches", fields["route"])
	assert.Equal(t, "10.0.0.1", fields["remote_ip"])
}
