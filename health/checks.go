package health

import (
	"context"
	"fmt"
	"runtime"

	"github.com/jonwraymond/fixturefeed/resilience"
)

// Pinger is a dependency that can be probed, such as the shared cache tier.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SharedTierChecker reports the shared cache tier. An unreachable tier is
// degraded, not unhealthy: the memory tier keeps serving.
func SharedTierChecker(p Pinger) Checker {
	return CheckerFunc("shared_cache", func(ctx context.Context) Result {
		if err := p.Ping(ctx); err != nil {
			return Degraded("shared tier unreachable, serving from memory").WithError(err)
		}
		return Healthy("shared tier reachable")
	})
}

// BreakerChecker reports the upstream circuit breaker. While it is open,
// misses fail fast or fall back to stale data.
func BreakerChecker(cb *resilience.CircuitBreaker) Checker {
	return CheckerFunc("upstream", func(context.Context) Result {
		m := cb.Metrics()
		details := map[string]any{
			"breaker":  cb.Name(),
			"state":    m.State.String(),
			"failures": m.Failures,
		}
		if !m.LastFailure.IsZero() {
			details["last_failure"] = m.LastFailure
		}

		switch m.State {
		case resilience.StateOpen:
			return Degraded("upstream circuit open").WithDetails(details)
		case resilience.StateHalfOpen:
			return Degraded("upstream circuit probing").WithDetails(details)
		default:
			return Healthy("upstream circuit closed").WithDetails(details)
		}
	})
}

// PressureChecker reports how full a bounded cache is. At or above
// threshold (default 0.9) of capacity the cache is evicting and reports
// degraded.
func PressureChecker(name string, threshold float64, usage func() (size, capacity int)) Checker {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.9
	}
	return CheckerFunc(name, func(context.Context) Result {
		size, capacity := usage()
		if capacity <= 0 {
			return Healthy("unbounded")
		}
		ratio := float64(size) / float64(capacity)
		details := map[string]any{"size": size, "capacity": capacity, "usage_percent": ratio * 100}
		if ratio >= threshold {
			return Degraded(fmt.Sprintf("cache %.0f%% full", ratio*100)).WithDetails(details)
		}
		return Healthy(fmt.Sprintf("cache %.0f%% full", ratio*100)).WithDetails(details)
	})
}

// MemoryChecker compares the live heap with limit bytes. Above 80% it is
// degraded, above 95% unhealthy. A zero limit only reports the numbers.
func MemoryChecker(limit uint64) Checker {
	return CheckerFunc("memory", func(ctx context.Context) Result {
		if err := ctx.Err(); err != nil {
			return Unhealthy("context cancelled", err)
		}

		var stats runtime.MemStats
		runtime.ReadMemStats(&stats)
		details := map[string]any{
			"heap_alloc_mb": float64(stats.HeapAlloc) / (1 << 20),
			"sys_mb":        float64(stats.Sys) / (1 << 20),
			"num_gc":        stats.NumGC,
			"goroutines":    runtime.NumGoroutine(),
		}
		if limit == 0 {
			return Healthy("no memory limit configured").WithDetails(details)
		}

		ratio := float64(stats.HeapAlloc) / float64(limit)
		details["usage_percent"] = ratio * 100
		msg := fmt.Sprintf("heap at %.1f%% of limit", ratio*100)
		switch {
		case ratio >= 0.95:
			return Unhealthy(msg, nil).WithDetails(details)
		case ratio >= 0.8:
			return Degraded(msg).WithDetails(details)
		default:
			return Healthy(msg).WithDetails(details)
		}
	})
}
