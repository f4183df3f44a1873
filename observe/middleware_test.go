package observe

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/jonwraymond/fixturefeed/fault"
)

func TestFetchMeta(t *testing.T) {
	meta := FetchMeta{Op: "fixtures", Key: "matches:2024-05-01"}
	if got := meta.SpanName(); got != "fetch.fixtures" {
		t.Errorf("SpanName() = %q, want fetch.fixtures", got)
	}
	if err := (FetchMeta{}).Validate(); !errors.Is(err, ErrMissingOp) {
		t.Errorf("Validate() error = %v, want ErrMissingOp", err)
	}
}

func TestInstrument_Success(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	m, reader := newTestMetrics(t)
	var buf bytes.Buffer

	mw := NewMiddleware(NewTracer(tp.Tracer("test")), m, NewLogger(&buf, "debug", "json"))
	fn := Instrument(mw, FetchMeta{Op: "fixtures", Key: "k"}, func(ctx context.Context) (int, error) {
		return 42, nil
	})

	got, err := fn(context.Background())
	if err != nil || got != 42 {
		t.Fatalf("fn() = %v, %v, want 42, nil", got, err)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "fetch.fixtures" {
		t.Errorf("span name = %q", spans[0].Name())
	}
	if spans[0].Status().Code != codes.Ok {
		t.Errorf("span status = %v, want Ok", spans[0].Status().Code)
	}

	rm := collect(t, reader)
	if total := sumFor(t, rm, "fixturefeed.fetch.total", attribute.String("op", "fixtures")); total != 1 {
		t.Errorf("fetch.total = %d, want 1", total)
	}
	if buf.Len() == 0 {
		t.Error("expected a debug log record")
	}
}

func TestInstrument_ErrorRecordsKind(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	mw := NewMiddleware(NewTracer(tp.Tracer("test")), nil, nil)

	wantErr := fault.New(fault.KindTimeout, "upstream slow")
	fn := Instrument(mw, FetchMeta{Op: "team_form"}, func(ctx context.Context) (string, error) {
		return "", wantErr
	})

	if _, err := fn(context.Background()); err != wantErr {
		t.Fatalf("fn() error = %v, want %v", err, wantErr)
	}

	span := recorder.Ended()[0]
	if span.Status().Code != codes.Error {
		t.Errorf("span status = %v, want Error", span.Status().Code)
	}
	var kind string
	for _, a := range span.Attributes() {
		if a.Key == "error.kind" {
			kind = a.Value.AsString()
		}
	}
	if kind != "timeout" {
		t.Errorf("error.kind = %q, want timeout", kind)
	}
}

func TestNopMiddleware(t *testing.T) {
	mw := NopMiddleware()
	fn := Instrument(mw, FetchMeta{Op: "x"}, func(ctx context.Context) (bool, error) { return true, nil })
	if ok, err := fn(context.Background()); !ok || err != nil {
		t.Errorf("fn() = %v, %v", ok, err)
	}
	if mw.Metrics() == nil || mw.Logger() == nil {
		t.Error("NopMiddleware components must be non-nil")
	}
}
