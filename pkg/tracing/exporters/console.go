package exporters

import (
	"context"

	"github.com/Gobusters/ectologger"
	"go.opentelemetry.io/otel/sdk/trace"
)

// ConsoleExporter logs finished spans at debug level. Entity and operation attributes
// set by the query engine are copied onto the log line.
type ConsoleExporter struct {
	Logger ectologger.Logger
}

var loggedAttributes = map[string]bool{
	"entity":        true,
	"operation":     true,
	"joins":         true,
	"check_related": true,
}

func (c *ConsoleExporter) ExportSpans(_ context.Context, spans []trace.ReadOnlySpan) error {
	if c.Logger == nil {
		return nil
	}
	for _, span := range spans {
		fields := map[string]any{
			"trace_id": span.SpanContext().TraceID().String(),
			"span_id":  span.SpanContext().SpanID().String(),
			"duration": span.EndTime().Sub(span.StartTime()).String(),
			"status":   span.Status().Code.String(),
		}
		for _, kv := range span.Attributes() {
			if key := string(kv.Key); loggedAttributes[key] {
				fields[key] = kv.Value.Emit()
			}
		}
		c.Logger.WithFields(fields).Debugf("span %s", span.Name())
	}
	return nil
}

func (c *ConsoleExporter) Shutdown(context.Context) error {
	return nil
}
