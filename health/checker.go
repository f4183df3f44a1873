package health

import (
	"context"
	"time"
)

// Status is the health of one component or of the whole service.
type Status int

const (
	StatusHealthy Status = iota
	StatusDegraded
	StatusUnhealthy
)

var statusNames = [...]string{"healthy", "degraded", "unhealthy"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

// MarshalText renders the status name in JSON.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result is the outcome of one check.
type Result struct {
	Status    Status         `json:"status"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Duration  time.Duration  `json:"-"`
	Timestamp time.Time      `json:"timestamp"`
	Err       error          `json:"-"`
}

func result(s Status, message string, err error) Result {
	return Result{Status: s, Message: message, Err: err, Timestamp: time.Now()}
}

func Healthy(message string) Result  { return result(StatusHealthy, message, nil) }
func Degraded(message string) Result { return result(StatusDegraded, message, nil) }

// Unhealthy records err alongside the message.
func Unhealthy(message string, err error) Result { return result(StatusUnhealthy, message, err) }

// WithDetails sets details on a copy of r.
func (r Result) WithDetails(details map[string]any) Result {
	r.Details = details
	return r
}

// WithError sets the error on a copy of r.
func (r Result) WithError(err error) Result {
	r.Err = err
	return r
}

// Checker inspects one dependency.
type Checker interface {
	Name() string
	Check(ctx context.Context) Result
}

type checkerFunc struct {
	name string
	fn   func(context.Context) Result
}

// CheckerFunc adapts a function to Checker.
func CheckerFunc(name string, fn func(context.Context) Result) Checker {
	return checkerFunc{name: name, fn: fn}
}

func (f checkerFunc) Name() string                     { return f.name }
func (f checkerFunc) Check(ctx context.Context) Result { return f.fn(ctx) }
