// Package health reports whether the service can answer queries.
//
// A Checker inspects one dependency and returns a Result. The service stays
// ready while its dependencies are only degraded: an unreachable shared
// cache tier or an open upstream breaker still leaves the memory tier and
// stale fallback answering, so those checks report Degraded. Only failures
// that stop the service answering at all report Unhealthy.
//
// Aggregator runs checkers in parallel under one deadline, and the handlers
// in http.go expose the result as liveness, readiness and detailed probes.
package health
