package fault

import (
	"fmt"
	"strings"
)

// Kind is one class of the failure taxonomy.
type Kind int

const (
	// KindUnknown is an unclassified failure. Not retried.
	KindUnknown Kind = iota
	// KindTimeout means an operation exceeded its deadline.
	KindTimeout
	// KindTransient covers connection resets and 5xx-equivalent failures.
	KindTransient
	// KindRateLimited is an upstream throttling signal.
	KindRateLimited
	// KindNotFound means the requested entity does not exist upstream.
	KindNotFound
	// KindValidation means the key or input was malformed.
	KindValidation
	// KindCancelled means the caller aborted before completion.
	KindCancelled
)

var kindNames = [...]string{
	KindUnknown:     "unknown",
	KindTimeout:     "timeout",
	KindTransient:   "transient",
	KindRateLimited: "rate_limited",
	KindNotFound:    "not_found",
	KindValidation:  "validation",
	KindCancelled:   "cancelled",
}

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Retryable reports whether the kind is retried by default.
func (k Kind) Retryable() bool {
	switch k {
	case KindTimeout, KindTransient, KindRateLimited:
		return true
	default:
		return false
	}
}

// ParseKind parses a kind name as produced by Kind.String.
// Matching is case-insensitive and accepts "-" in place of "_".
func ParseKind(s string) (Kind, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for i, name := range kindNames {
		if name == norm {
			return Kind(i), nil
		}
	}
	return KindUnknown, fmt.Errorf("fault: unknown kind %q", s)
}

// Kinds returns every kind in declaration order.
func Kinds() []Kind {
	kinds := make([]Kind, len(kindNames))
	for i := range kindNames {
		kinds[i] = Kind(i)
	}
	return kinds
}

// RetryableKinds returns the kinds that are retried by default.
func RetryableKinds() []Kind {
	return []Kind{KindTimeout, KindTransient, KindRateLimited}
}
