package fault

import (
	"errors"
	"strings"
	"time"
)

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrUnknown     = errors.New("fault: unknown")
	ErrTimeout     = errors.New("fault: timeout")
	ErrTransient   = errors.New("fault: transient")
	ErrRateLimited = errors.New("fault: rate limited")
	ErrNotFound    = errors.New("fault: not found")
	ErrValidation  = errors.New("fault: validation")
	ErrCancelled   = errors.New("fault: cancelled")
)

var kindSentinels = map[Kind]error{
	KindUnknown:     ErrUnknown,
	KindTimeout:     ErrTimeout,
	KindTransient:   ErrTransient,
	KindRateLimited: ErrRateLimited,
	KindNotFound:    ErrNotFound,
	KindValidation:  ErrValidation,
	KindCancelled:   ErrCancelled,
}

// Error is a classified failure.
//
// Error values are treated as immutable once returned; the With* helpers
// return copies.
type Error struct {
	// Kind is the taxonomy class.
	Kind Kind

	// Op names the operation that failed (e.g. "upstream.fixtures").
	Op string

	// Key is the fetch key involved, if any.
	Key string

	// Detail is an optional upstream detail string.
	Detail string

	// RetryAfter is an upstream hint for RateLimited failures.
	RetryAfter time.Duration

	// Err is the underlying cause.
	Err error
}

// New creates a classified error with a detail message.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap classifies err explicitly as kind. A nil err yields nil.
func Wrap(kind Kind, err error, detail string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// Error formats as "op: detail: cause (key=...)", falling back to the kind
// name when no detail is set.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Detail != "" {
		b.WriteString(e.Detail)
	} else {
		b.WriteString(e.Kind.String())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Key != "" {
		b.WriteString(" (key=")
		b.WriteString(e.Key)
		b.WriteString(")")
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// Retryable reports whether the error's kind is retried by default.
func (e *Error) Retryable() bool {
	return e.Kind.Retryable()
}

// WithOp returns a copy with Op set.
func (e *Error) WithOp(op string) *Error {
	cp := *e
	cp.Op = op
	return &cp
}

// WithKey returns a copy with Key set.
func (e *Error) WithKey(key string) *Error {
	cp := *e
	cp.Key = key
	return &cp
}

// WithKind returns a copy with Kind set.
func (e *Error) WithKind(kind Kind) *Error {
	cp := *e
	cp.Kind = kind
	return &cp
}

// KindOf returns the kind of err, classifying it if needed.
// A nil error has no kind and reports KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	return Classify(err).Kind
}

// IsKind reports whether err classifies as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable reports whether err classifies as a retryable kind.
func IsRetryable(err error) bool {
	return err != nil && KindOf(err).Retryable()
}
