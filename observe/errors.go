package observe

import (
	"errors"

	"github.com/jonwraymond/fixturefeed/observe/exporters"
)

var (
	ErrMissingServiceName     = errors.New("observe: service name is required")
	ErrInvalidSamplePct       = errors.New("observe: sample percentage out of range")
	ErrInvalidTracingExporter = errors.New("observe: invalid tracing exporter")
	ErrInvalidMetricsExporter = errors.New("observe: invalid metrics exporter")
	ErrInvalidLogLevel        = errors.New("observe: invalid log level")
	ErrInvalidLogFormat       = errors.New("observe: invalid log format")

	// ErrMissingOp indicates FetchMeta.Op is empty.
	ErrMissingOp = errors.New("observe: fetch op is required")
)

// Sample percentage bounds, inclusive.
const (
	MinSamplePct = 0.0
	MaxSamplePct = 1.0
)

// Accepted configuration values. The empty string selects the default.
var (
	ValidTracingExporters = append(exporters.TracingNames(), "")
	ValidMetricsExporters = append(exporters.MetricsNames(), "")
	ValidLogLevels        = []string{"debug", "info", "warn", "error", ""}
	ValidLogFormats       = []string{"json", "text", ""}
)

// RedactedFields are log field keys whose values are never written.
var RedactedFields = []string{
	"password",
	"secret",
	"token",
	"authorization",
	"api_key",
	"apiKey",
	"jwt_secret",
	"credential",
}
