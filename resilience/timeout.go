package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/jonwraymond/fixturefeed/fault"
)

// DefaultTimeout applies when NewTimeout is given a non-positive duration.
const DefaultTimeout = 30 * time.Second

// Timeout bounds a single call. It returns at the deadline even when the
// call ignores its context; the call is left to finish in the background.
type Timeout struct {
	d time.Duration
}

// NewTimeout bounds calls to d.
func NewTimeout(d time.Duration) *Timeout {
	if d <= 0 {
		d = DefaultTimeout
	}
	return &Timeout{d: d}
}

// Duration is the configured bound.
func (t *Timeout) Duration() time.Duration { return t.d }

// Execute runs op under the bound. Exceeding it, or the caller's own
// deadline, yields ErrTimeout; caller cancellation yields Cancelled.
func (t *Timeout) Execute(ctx context.Context, op func(context.Context) error) error {
	tctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- op(tctx) }()

	var err error
	select {
	case err = <-done:
		if err == nil || tctx.Err() == nil {
			return err
		}
	case <-tctx.Done():
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		return fault.Wrap(fault.KindCancelled, ctx.Err(), "operation cancelled")
	}
	return ErrTimeout
}

// ExecuteWithTimeout runs op bounded by d.
func ExecuteWithTimeout(ctx context.Context, d time.Duration, op func(context.Context) error) error {
	return NewTimeout(d).Execute(ctx, op)
}
