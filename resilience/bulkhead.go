package resilience

import (
	"context"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"

	"github.com/jonwraymond/fixturefeed/fault"
)

// BulkheadConfig configures a Bulkhead.
type BulkheadConfig struct {
	// MaxConcurrent is the number of slots. Default 10.
	MaxConcurrent int

	// MaxWait is how long Acquire queues for a slot. Zero rejects at once.
	MaxWait time.Duration
}

// Bulkhead caps how many upstream fetches run at the same time, across
// all keys.
type Bulkhead struct {
	config BulkheadConfig
	sem    *semaphore.Weighted

	active   atomic.Int64
	peak     atomic.Int64
	rejected atomic.Int64
}

func NewBulkhead(config BulkheadConfig) *Bulkhead {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}
	return &Bulkhead{
		config: config,
		sem:    semaphore.NewWeighted(int64(config.MaxConcurrent)),
	}
}

// Acquire takes a slot. A caller that gives up while queued gets a
// Cancelled error and does not count as rejected.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	if !b.sem.TryAcquire(1) {
		if err := b.wait(ctx); err != nil {
			return err
		}
	}
	n := b.active.Inc()
	for peak := b.peak.Load(); n > peak && !b.peak.CompareAndSwap(peak, n); peak = b.peak.Load() {
	}
	return nil
}

func (b *Bulkhead) wait(ctx context.Context) error {
	if b.config.MaxWait > 0 {
		wctx, cancel := context.WithTimeout(ctx, b.config.MaxWait)
		defer cancel()
		if b.sem.Acquire(wctx, 1) == nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return fault.Wrap(fault.KindCancelled, err, "bulkhead wait")
		}
	}
	b.rejected.Inc()
	return ErrBulkheadFull
}

// Release returns a slot taken by Acquire.
func (b *Bulkhead) Release() {
	b.active.Dec()
	b.sem.Release(1)
}

func (b *Bulkhead) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.Acquire(ctx); err != nil {
		return err
	}
	defer b.Release()
	return op(ctx)
}

// BulkheadMetrics is a snapshot of slot usage.
type BulkheadMetrics struct {
	Active        int   `json:"active"`
	MaxActive     int   `json:"max_active"`
	Available     int   `json:"available"`
	MaxConcurrent int   `json:"max_concurrent"`
	Rejected      int64 `json:"rejected"`
}

func (b *Bulkhead) Metrics() BulkheadMetrics {
	active := int(b.active.Load())
	return BulkheadMetrics{
		Active:        active,
		MaxActive:     int(b.peak.Load()),
		Available:     b.config.MaxConcurrent - active,
		MaxConcurrent: b.config.MaxConcurrent,
		Rejected:      b.rejected.Load(),
	}
}
