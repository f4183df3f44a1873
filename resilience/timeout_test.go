package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonwraymond/fixturefeed/fault"
)

func TestNewTimeout_Default(t *testing.T) {
	if got := NewTimeout(0).Duration(); got != DefaultTimeout {
		t.Errorf("Duration() = %v, want %v", got, DefaultTimeout)
	}
}

func TestTimeout_Completes(t *testing.T) {
	to := NewTimeout(time.Second)

	want := fault.New(fault.KindNotFound, "no fixtures")
	if err := to.Execute(context.Background(), func(ctx context.Context) error {
		return want
	}); err != want {
		t.Errorf("Execute() error = %v, want %v", err, want)
	}
	if err := to.Execute(context.Background(), func(ctx context.Context) error {
		return nil
	}); err != nil {
		t.Errorf("Execute() error = %v, want nil", err)
	}
}

func TestTimeout_Exceeded(t *testing.T) {
	to := NewTimeout(20 * time.Millisecond)

	err := to.Execute(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Execute() error = %v, want ErrTimeout", err)
	}
	if got := fault.KindOf(err); got != fault.KindTimeout {
		t.Errorf("KindOf(err) = %v, want timeout", got)
	}
}

func TestTimeout_OpIgnoresContext(t *testing.T) {
	to := NewTimeout(20 * time.Millisecond)
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	err := to.Execute(context.Background(), func(ctx context.Context) error {
		<-release
		return nil
	})

	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Execute() error = %v, want ErrTimeout", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Execute() did not return at the deadline")
	}
}

func TestTimeout_ParentCancelled(t *testing.T) {
	to := NewTimeout(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := to.Execute(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	if got := fault.KindOf(err); got != fault.KindCancelled {
		t.Errorf("KindOf(err) = %v, want cancelled", got)
	}
}

func TestTimeout_ParentDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := NewTimeout(time.Minute).Execute(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if got := fault.KindOf(err); got != fault.KindTimeout {
		t.Errorf("KindOf(err) = %v, want timeout", got)
	}
}

func TestExecuteWithTimeout(t *testing.T) {
	err := ExecuteWithTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("ExecuteWithTimeout() error = %v, want ErrTimeout", err)
	}
}
