package fetch

import (
	"time"

	"github.com/jonwraymond/fixturefeed/cache"
)

// SourceUpstream marks a value produced by a fetch during the call.
const SourceUpstream cache.Source = "upstream"

// Result is the outcome of GetOrFetch.
type Result[V any] struct {
	Value V

	// Stale is set when the fetch failed and an expired entry was served
	// in its place.
	Stale bool

	// Source is where the value came from: a cache tier or SourceUpstream.
	Source cache.Source

	// StoredAt is when the value was fetched.
	StoredAt time.Time

	// Shared is set when the caller waited on a fetch started by another
	// caller.
	Shared bool
}

// Age is how old the value was at now.
func (r Result[V]) Age(now time.Time) time.Duration {
	return now.Sub(r.StoredAt)
}

// Stats is a point-in-time snapshot of a pipeline.
type Stats struct {
	Op          string      `json:"op"`
	HitRate     float64     `json:"hit_rate"`
	Size        int         `json:"size"`
	Capacity    int         `json:"capacity"`
	InFlight    int         `json:"in_flight"`
	Hits        int64       `json:"hits"`
	Misses      int64       `json:"misses"`
	StaleServed int64       `json:"stale_served"`
	Fetches     int64       `json:"fetches"`
	Failures    int64       `json:"failures"`
	Joined      int64       `json:"joined"`
	Cache       cache.Stats `json:"cache"`
}
