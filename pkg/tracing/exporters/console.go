package exporters

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"go.opentelemetry.io/otel/sdk/trace"
)

// ConsoleExporter prints one line per finished span. Meant for local runs.
type ConsoleExporter struct {
	Out io.Writer
	mu  sync.Mutex
}

func (c *ConsoleExporter) ExportSpans(ctx context.Context, spans []trace.ReadOnlySpan) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.Out
	if out == nil {
		out = os.Stderr
	}
	for _, span := range spans {
		_, err := fmt.Fprintf(out, "span %s trace=%s duration=%s status=%s\n",
			span.Name(),
			span.SpanContext().TraceID(),
			span.EndTime().Sub(span.StartTime()),
			span.Status().Code,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *ConsoleExporter) Shutdown(ctx context.Context) error {
	return nil
}
