// Package dispatch resolves tool selections and fans a target out to every
// selected tool concurrently.
package dispatch

import (
	"context"
	"errors"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/harun/recondora/internal/metrics"
	"github.com/harun/recondora/internal/tracing"
	"github.com/harun/recondora/pkg/executor"
	"github.com/harun/recondora/pkg/registry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "recondora/dispatch"

var (
	// ErrNoValidTools is returned when no token resolves to a tool.
	ErrNoValidTools = errors.New("no valid tools found for your selection")

	// ErrEmptyTarget is returned when the target is blank.
	ErrEmptyTarget = errors.New("target is required")
)

// Batch is the outcome of one request.
type Batch struct {
	ID        string            `json:"id"`
	Target    string            `json:"target"`
	Selection Selection         `json:"tools"`
	Results   []executor.Result `json:"results"`
	StartedAt time.Time         `json:"started_at"`
	Duration  time.Duration     `json:"duration"`
}

// Failed returns the number of failed results.
func (b Batch) Failed() int {
	n := 0
	for _, r := range b.Results {
		if r.Failed() {
			n++
		}
	}
	return n
}

// Dispatcher runs tools concurrently.
type Dispatcher struct {
	registry  *registry.Registry
	resolver  *Resolver
	executors map[registry.Kind]executor.Executor
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMetrics records per-tool and per-batch metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithExecutor registers the executor for one tool kind.
func WithExecutor(kind registry.Kind, e executor.Executor) Option {
	return func(d *Dispatcher) { d.executors[kind] = e }
}

// New creates a dispatcher. Executors for each kind are registered with WithExecutor.
func New(reg *registry.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:  reg,
		resolver:  NewResolver(reg),
		executors: make(map[registry.Kind]executor.Executor),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the tool catalog.
func (d *Dispatcher) Registry() *registry.Registry {
	return d.registry
}

// Resolver returns the token resolver.
func (d *Dispatcher) Resolver() *Resolver {
	return d.resolver
}

// Dispatch resolves tokens and runs every selected tool against target.
// Tool failures are part of the batch; only an empty target or an empty
// selection is returned as an error.
func (d *Dispatcher) Dispatch(ctx context.Context, target string, tokens []string) (Batch, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return Batch{}, ErrEmptyTarget
	}

	selection := d.resolver.Resolve(tokens)
	if selection.Empty() {
		return Batch{Target: target}, ErrNoValidTools
	}

	return d.Run(ctx, target, selection), nil
}

// Run executes an already resolved selection.
func (d *Dispatcher) Run(ctx context.Context, target string, selection Selection) Batch {
	ctx = tracing.NewRequestContext(ctx, tracing.GetSource(ctx))
	batch := Batch{
		ID:        tracing.GetRequestID(ctx),
		Target:    target,
		Selection: selection,
		StartedAt: time.Now(),
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "dispatch.batch",
		attribute.String("recon.target", target),
		attribute.StringSlice("recon.tools", selection),
		attribute.String("recon.request_id", batch.ID),
	)

	logger := tracing.LoggerFromContext(ctx, d.logger)
	logger.Info().
		Str("target", target).
		Strs("tools", selection).
		Msg("Starting recon batch")

	done := d.metrics.BatchStarted()
	batch.Results = d.RunAll(ctx, target, selection)
	done()

	batch.Duration = time.Since(batch.StartedAt)
	failed := batch.Failed()

	span.SetAttributes(attribute.Int("recon.failed", failed))
	tracing.EndSpan(span, failed == len(batch.Results), "all tools failed")

	logger.Info().
		Str("target", target).
		Int("tools", len(batch.Results)).
		Int("failed", failed).
		Dur("duration", batch.Duration).
		Msg("Recon batch completed")

	return batch
}

// RunAll launches one goroutine per key and waits for all of them. Results
// are returned in the order of keys. A slow or failing tool never affects
// the others.
func (d *Dispatcher) RunAll(ctx context.Context, target string, keys []string) []executor.Result {
	results := make([]executor.Result, len(keys))
	var wg sync.WaitGroup

	for i, key := range keys {
		wg.Add(1)
		go func(index int, key string) {
			defer wg.Done()
			results[index] = d.runOne(ctx, target, key)
		}(i, key)
	}

	wg.Wait()
	return results
}

func (d *Dispatcher) runOne(ctx context.Context, target, key string) (res executor.Result) {
	start := time.Now()

	spec, ok := d.registry.Lookup(key)
	if !ok {
		spec = registry.ToolSpec{Key: key}
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "dispatch.tool",
		attribute.String("recon.tool", key),
		attribute.String("recon.kind", string(spec.Kind)),
	)

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Str("tool", key).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Tool panicked")
			res = executor.Failure(spec, executor.KindUnexpected, executor.TagUnexpected, "%v", r)
		}

		res.Tool = key
		if res.Duration == 0 {
			res.Duration = time.Since(start)
		}

		span.SetAttributes(attribute.String("recon.status", res.Status()))
		tracing.EndSpan(span, res.Failed(), string(res.Error))
		d.metrics.RecordToolExecution(key, string(spec.Kind), string(res.Error), res.Duration)

		d.logger.Debug().
			Str("tool", key).
			Str("status", res.Status()).
			Dur("duration", res.Duration).
			Msg("Tool finished")
	}()

	if !ok {
		return executor.Failure(spec, executor.KindUnexpected, executor.TagUnexpected, "unknown tool %q", key)
	}

	ex, ok := d.executors[spec.Kind]
	if !ok {
		return executor.Failure(spec, executor.KindUnexpected, executor.TagUnexpected, "no executor for %s tools", spec.Kind)
	}

	return ex.Execute(ctx, target, spec)
}
