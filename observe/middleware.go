package observe

import (
	"context"
	"time"
)

// FetchFunc is a single upstream fetch attempt.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Middleware wraps fetches with tracing, metrics and logging.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Context: the span is propagated into the wrapped function's ctx.
//   - Errors: errors from the wrapped function are recorded and returned unchanged.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a Middleware. Nil components are replaced by no-ops.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	if tracer == nil {
		tracer = NopTracer()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Middleware{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
	}
}

// NopMiddleware returns a Middleware that only runs the function.
func NopMiddleware() *Middleware {
	return NewMiddleware(nil, nil, nil)
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}
	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}

// Metrics returns the metrics sink, for lookup and stale counters that are
// recorded outside a fetch.
func (m *Middleware) Metrics() Metrics { return m.metrics }

// Logger returns the logger.
func (m *Middleware) Logger() Logger { return m.logger }

// Instrument wraps fn so each call is traced, timed, counted and logged.
func Instrument[T any](m *Middleware, meta FetchMeta, fn FetchFunc[T]) FetchFunc[T] {
	return func(ctx context.Context) (T, error) {
		ctx, span := m.tracer.StartSpan(ctx, meta)
		start := time.Now()

		result, err := fn(ctx)

		duration := time.Since(start)
		m.tracer.EndSpan(span, err)
		m.metrics.RecordFetch(ctx, meta.Op, duration, err)

		fields := []Field{
			{Key: "op", Value: meta.Op},
			{Key: "key", Value: meta.Key},
			{Key: "duration_ms", Value: duration.Milliseconds()},
		}
		if err != nil {
			fields = append(fields, Field{Key: "error", Value: err.Error()})
			m.logger.Warn(ctx, "fetch failed", fields...)
		} else {
			m.logger.Debug(ctx, "fetch completed", fields...)
		}

		return result, err
	}
}
