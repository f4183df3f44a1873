package health

import "errors"

var (
	// ErrCheckTimeout is recorded when a checker misses the deadline.
	ErrCheckTimeout = errors.New("health: check timeout")

	// ErrCheckerNotFound is returned by Aggregator.Check for an unknown name.
	ErrCheckerNotFound = errors.New("health: checker not found")
)
