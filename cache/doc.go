// Package cache provides the two-tier cache behind the fetch pipeline.
//
// A Store keeps a bounded, in-process LRU (MemoryTier) in front of an
// optional SharedTier such as Redis. Entries carry their own freshness
// bounds, so an entry past its TTL can still be served as a stale fallback
// for Policy.StaleTTL. The shared tier is strictly best effort: when it is
// unreachable the Store logs, counts the failure and continues on memory.
//
// Keys are normalized with NormalizeKey before lookup. Overlong keys are
// shortened with a SHA-256 digest suffix.
package cache
