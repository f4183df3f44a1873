package fetch

import "context"

// Fetcher retrieves the value for a key from the upstream source.
//
// Contract:
//   - Concurrency: Fetch may be called concurrently for distinct keys. The
//     pipeline never runs two fetches of the same key at once.
//   - Context: implementations must honor cancellation and deadlines; the
//     context carries the per-attempt deadline.
//   - Errors: failures should be *fault.Error. Anything else is classified
//     with fault.Classify.
type Fetcher[V any] interface {
	Fetch(ctx context.Context, key string) (V, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc[V any] func(ctx context.Context, key string) (V, error)

// Fetch calls f.
func (f FetcherFunc[V]) Fetch(ctx context.Context, key string) (V, error) {
	return f(ctx, key)
}
