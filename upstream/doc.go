// Package upstream is the HTTP client for the football data provider.
//
// It is the classification boundary of the system: every failure leaving
// this package is a *fault.Error. HTTP statuses map through
// fault.FromStatus (429 RateLimited with its Retry-After hint, 404
// NotFound, 400/422 Validation, 5xx Transient), transport errors through
// fault.Classify, and undecodable payloads are Unknown.
//
// Payloads are decoded with jsoniter into provider wire types and then
// normalized into match values: kickoffs in UTC, statuses mapped, missing
// IDs derived, invalid fixtures dropped.
package upstream
