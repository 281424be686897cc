package tracing

import (
	"context"

	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// LogExporter writes finished spans to a zerolog logger at debug level.
type LogExporter struct {
	logger zerolog.Logger
}

// NewLogExporter creates a span exporter backed by logger.
func NewLogExporter(logger zerolog.Logger) *LogExporter {
	return &LogExporter{logger: logger}
}

// ExportSpans implements sdktrace.SpanExporter.
func (e *LogExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		ev := e.logger.Debug().
			Str("trace_id", span.SpanContext().TraceID().String()).
			Str("span_id", span.SpanContext().SpanID().String()).
			Str("span", span.Name()).
			Dur("duration", span.EndTime().Sub(span.StartTime())).
			Str("status", span.Status().Code.String())

		if span.Parent().IsValid() {
			ev = ev.Str("parent_span_id", span.Parent().SpanID().String())
		}
		for _, attr := range span.Attributes() {
			ev = ev.Str(string(attr.Key), attr.Value.Emit())
		}
		ev.Msg("Span finished")
	}
	return ctx.Err()
}

// Shutdown implements sdktrace.SpanExporter.
func (e *LogExporter) Shutdown(ctx context.Context) error {
	return ctx.Err()
}
