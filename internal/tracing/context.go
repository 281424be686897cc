package tracing

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// RequestIDKey is the context key for the id of one recon request
	RequestIDKey ContextKey = "request_id"
	// SourceKey is the context key for the entry point (telegram, http, cli)
	SourceKey ContextKey = "source"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID   string
	RequestID string
	Source    string
}

// NewID generates a new random id
func NewID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithSource adds the entry point name to the context
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, SourceKey, source)
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(TraceIDKey).(string); ok {
		return v
	}
	return ""
}

// GetRequestID retrieves the request ID from the context
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(RequestIDKey).(string); ok {
		return v
	}
	return ""
}

// GetSource retrieves the entry point from the context
func GetSource(ctx context.Context) string {
	if v, ok := ctx.Value(SourceKey).(string); ok {
		return v
	}
	return ""
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) TraceContext {
	return TraceContext{
		TraceID:   GetTraceID(ctx),
		RequestID: GetRequestID(ctx),
		Source:    GetSource(ctx),
	}
}

// NewRequestContext tags ctx with a fresh request id and the entry point.
// An existing request id is kept.
func NewRequestContext(ctx context.Context, source string) context.Context {
	if GetRequestID(ctx) == "" {
		ctx = WithRequestID(ctx, NewID())
	}
	return WithSource(ctx, source)
}

// LoggerFromContext adds the tracing fields present in ctx to logger.
func LoggerFromContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)

	lc := logger.With()
	if tc.TraceID != "" {
		lc = lc.Str("trace_id", tc.TraceID)
	}
	if tc.RequestID != "" {
		lc = lc.Str("request_id", tc.RequestID)
	}
	if tc.Source != "" {
		lc = lc.Str("source", tc.Source)
	}
	return lc.Logger()
}
