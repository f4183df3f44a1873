// Package fetch implements the get-or-fetch pipeline in front of the
// upstream provider.
//
// A Pipeline answers a key from its cache.Store when a fresh entry exists.
// Otherwise the caller attaches to the in-flight fetch for that key, or
// starts one, so there is never more than one upstream request per key at
// a time. The fetch runs under a resilience.Retry with a per-attempt
// deadline and, when it succeeds, is written to both cache tiers before all
// waiting callers are released.
//
// Callers that set allowStale receive the last cached value, tagged
// Stale, when the fetch exhausts its retries. NotFound and Validation
// failures are always returned as errors.
//
// Waiting is reference counted: a caller cancelling its own context only
// gives up its own wait. The fetch itself is cancelled once every caller
// has gone.
package fetch
