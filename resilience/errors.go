package resilience

import "github.com/jonwraymond/fixturefeed/fault"

// Sentinel errors for resilience operations. Each is a classified
// *fault.Error, so errors.Is also matches the kind's fault sentinel.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen error = &fault.Error{Kind: fault.KindTransient, Op: "resilience", Detail: "circuit breaker is open"}

	// ErrRateLimitExceeded is returned when the local rate limit is exceeded.
	ErrRateLimitExceeded error = &fault.Error{Kind: fault.KindRateLimited, Op: "resilience", Detail: "rate limit exceeded"}

	// ErrBulkheadFull is returned when the bulkhead is at capacity.
	ErrBulkheadFull error = &fault.Error{Kind: fault.KindTransient, Op: "resilience", Detail: "bulkhead at capacity"}

	// ErrTimeout is returned when an operation times out.
	ErrTimeout error = &fault.Error{Kind: fault.KindTimeout, Op: "resilience", Detail: "operation timed out"}
)
