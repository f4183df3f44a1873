package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/jonwraymond/fixturefeed/fault"
)

// FetchMeta describes one upstream fetch for telemetry purposes.
type FetchMeta struct {
	Op  string // fetch operation, e.g. "fixtures" (required)
	Key string // cache key being filled (optional)
}

// SpanName returns the deterministic span name: fetch.<op>.
func (m FetchMeta) SpanName() string {
	return "fetch." + m.Op
}

// Validate reports whether meta can be used for telemetry.
func (m FetchMeta) Validate() error {
	if m.Op == "" {
		return ErrMissingOp
	}
	return nil
}

// Tracer wraps OpenTelemetry tracing with fetch span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a new span for a fetch.
	StartSpan(ctx context.Context, meta FetchMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error and its kind.
	EndSpan(span trace.Span, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer wraps an OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

func (t *tracerImpl) StartSpan(ctx context.Context, meta FetchMeta) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("fetch.op", meta.Op),
		attribute.Bool("fetch.error", false),
	}
	if meta.Key != "" {
		attrs = append(attrs, attribute.String("cache.key", meta.Key))
	}

	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(
			attribute.Bool("fetch.error", true),
			attribute.String("error.kind", fault.KindOf(err).String()),
		)
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// NopTracer returns a tracer whose spans are never recorded.
func NopTracer() Tracer {
	return &tracerImpl{tracer: tracenoop.NewTracerProvider().Tracer("noop")}
}
