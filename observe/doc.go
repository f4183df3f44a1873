// Package observe provides the telemetry primitives used by the fetch
// pipeline: a slog-backed structured Logger, OpenTelemetry metrics and
// tracing, and a Middleware that instruments individual upstream fetches.
//
// Observer builds tracer and meter providers from Config. Exporters are
// chosen by name (see package exporters). With metrics disabled the meter is
// a no-op; with logging disabled Logger returns NopLogger.
//
// Log records carry trace_id and span_id whenever ctx holds a valid span, and
// fields whose key appears in RedactedFields are written as "[REDACTED]".
package observe
