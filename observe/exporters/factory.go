// Package exporters builds OpenTelemetry span exporters and metric readers
// by name.
package exporters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// None disables an exporter. The empty string means the same.
const None = "none"

var (
	// ErrUnknownExporter is returned for a name no factory is registered under.
	ErrUnknownExporter = errors.New("exporters: unknown exporter")

	// ErrEndpointNotConfigured means the OTLP endpoint variables are unset.
	ErrEndpointNotConfigured = errors.New("exporters: endpoint not configured")
)

// Option adjusts exporter construction.
type Option func(*settings)

type settings struct {
	writer     io.Writer
	registerer promclient.Registerer
}

// WithWriter redirects the stdout exporters.
func WithWriter(w io.Writer) Option {
	return func(s *settings) { s.writer = w }
}

// WithRegisterer makes the prometheus reader register its collector with
// reg instead of the global default registry.
func WithRegisterer(reg promclient.Registerer) Option {
	return func(s *settings) { s.registerer = reg }
}

func collect(opts []Option) settings {
	s := settings{writer: os.Stdout}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

type (
	spanFactory   func(context.Context, settings) (sdktrace.SpanExporter, error)
	readerFactory func(context.Context, settings) (sdkmetric.Reader, error)
)

var spanFactories = map[string]spanFactory{
	"stdout": func(_ context.Context, s settings) (sdktrace.SpanExporter, error) {
		return stdouttrace.New(stdouttrace.WithWriter(s.writer))
	},
	"otlp": func(ctx context.Context, _ settings) (sdktrace.SpanExporter, error) {
		if err := requireEndpoint("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"); err != nil {
			return nil, err
		}
		return otlptracegrpc.New(ctx)
	},
}

var readerFactories = map[string]readerFactory{
	"stdout": func(_ context.Context, s settings) (sdkmetric.Reader, error) {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(s.writer))
		if err != nil {
			return nil, err
		}
		return sdkmetric.NewPeriodicReader(exp), nil
	},
	"otlp": func(ctx context.Context, _ settings) (sdkmetric.Reader, error) {
		if err := requireEndpoint("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"); err != nil {
			return nil, err
		}
		exp, err := otlpmetricgrpc.New(ctx)
		if err != nil {
			return nil, err
		}
		return sdkmetric.NewPeriodicReader(exp), nil
	},
	"prometheus": func(_ context.Context, s settings) (sdkmetric.Reader, error) {
		var popts []prometheus.Option
		if s.registerer != nil {
			popts = append(popts, prometheus.WithRegisterer(s.registerer))
		}
		return prometheus.New(popts...)
	},
}

// requireEndpoint checks the generic OTLP endpoint variable and the
// signal-specific one.
func requireEndpoint(signalVar string) error {
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" || os.Getenv(signalVar) != "" {
		return nil
	}
	return fmt.Errorf("%w: set OTEL_EXPORTER_OTLP_ENDPOINT or %s", ErrEndpointNotConfigured, signalVar)
}

func names[F any](factories map[string]F) []string {
	out := make([]string, 0, len(factories)+1)
	for name := range factories {
		out = append(out, name)
	}
	out = append(out, None)
	slices.Sort(out)
	return out
}

// TracingNames lists the accepted tracing exporter names, sorted.
func TracingNames() []string { return names(spanFactories) }

// MetricsNames lists the accepted metrics exporter names, sorted.
func MetricsNames() []string { return names(readerFactories) }

// NewTracingExporter creates the span exporter registered under name. None
// yields a nil exporter: spans are still sampled but go nowhere.
func NewTracingExporter(ctx context.Context, name string, opts ...Option) (sdktrace.SpanExporter, error) {
	if name == None || name == "" {
		return nil, nil
	}
	factory, ok := spanFactories[name]
	if !ok {
		return nil, fmt.Errorf("%w: tracing %q", ErrUnknownExporter, name)
	}
	exp, err := factory(ctx, collect(opts))
	if err != nil {
		return nil, fmt.Errorf("tracing exporter %s: %w", name, err)
	}
	return exp, nil
}

// NewMetricsReader creates the metric reader registered under name. None
// yields a nil reader.
func NewMetricsReader(ctx context.Context, name string, opts ...Option) (sdkmetric.Reader, error) {
	if name == None || name == "" {
		return nil, nil
	}
	factory, ok := readerFactories[name]
	if !ok {
		return nil, fmt.Errorf("%w: metrics %q", ErrUnknownExporter, name)
	}
	reader, err := factory(ctx, collect(opts))
	if err != nil {
		return nil, fmt.Errorf("metrics exporter %s: %w", name, err)
	}
	return reader, nil
}
