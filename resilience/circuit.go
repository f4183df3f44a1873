package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/jonwraymond/fixturefeed/fault"
)

// State is a circuit breaker position.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

var stateNames = [...]string{
	StateClosed:   "closed",
	StateOpen:     "open",
	StateHalfOpen: "half-open",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText renders the state name, so JSON stats read "open" not 1.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CircuitBreakerConfig configures a CircuitBreaker. Zero values take the
// defaults noted on each field.
type CircuitBreakerConfig struct {
	// Name identifies the protected dependency in state-change callbacks.
	Name string

	// MaxFailures consecutive failures open the circuit. Default 5.
	MaxFailures int

	// ResetTimeout is how long the circuit stays open before letting a
	// probe through. Default 30s.
	ResetTimeout time.Duration

	// HalfOpenMaxRequests caps concurrent probes. Default 1.
	HalfOpenMaxRequests int

	// OnStateChange runs with the breaker's lock held and must not call
	// back into the breaker.
	OnStateChange func(name string, from, to State)

	// IsFailure decides which errors count. Default DefaultIsFailure.
	IsFailure func(err error) bool

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// DefaultIsFailure counts only failures that say something about the
// dependency's health: Timeout, Transient and Unknown. NotFound,
// Validation, RateLimited and Cancelled leave the circuit alone.
func DefaultIsFailure(err error) bool {
	if err == nil {
		return false
	}
	switch fault.KindOf(err) {
	case fault.KindTimeout, fault.KindTransient, fault.KindUnknown:
		return true
	}
	return false
}

// CircuitBreaker fails fast with ErrCircuitOpen once a dependency has
// failed MaxFailures times in a row, then lets a limited number of probes
// through after ResetTimeout. One successful probe closes it again.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu          sync.Mutex
	state       State
	openedAt    time.Time
	probes      int // admitted while half-open
	failures    int // consecutive
	successes   int
	opens       int
	lastFailure time.Time
}

func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	if config.HalfOpenMaxRequests <= 0 {
		config.HalfOpenMaxRequests = 1
	}
	if config.IsFailure == nil {
		config.IsFailure = DefaultIsFailure
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &CircuitBreaker{config: config}
}

// Execute runs op unless the circuit rejects it, and records the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := op(ctx)
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) Name() string { return cb.config.Name }

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.refreshLocked()
}

// Reset closes the circuit and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.moveLocked(StateClosed)
	cb.failures, cb.successes, cb.probes = 0, 0, 0
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.refreshLocked() {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.probes >= cb.config.HalfOpenMaxRequests {
			return ErrCircuitOpen
		}
		cb.probes++
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.config.IsFailure(err) {
		cb.successes++
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.moveLocked(StateClosed)
		}
		return
	}

	cb.failures++
	cb.lastFailure = cb.config.Now()
	switch {
	case cb.state == StateHalfOpen:
		cb.moveLocked(StateOpen)
	case cb.state == StateClosed && cb.failures >= cb.config.MaxFailures:
		cb.moveLocked(StateOpen)
	}
}

// refreshLocked moves an open circuit to half-open once ResetTimeout has
// passed since it opened.
func (cb *CircuitBreaker) refreshLocked() State {
	if cb.state == StateOpen && cb.config.Now().Sub(cb.openedAt) >= cb.config.ResetTimeout {
		cb.moveLocked(StateHalfOpen)
	}
	return cb.state
}

func (cb *CircuitBreaker) moveLocked(to State) {
	from := cb.state
	cb.state = to
	cb.probes = 0
	switch to {
	case StateOpen:
		cb.openedAt = cb.config.Now()
		cb.opens++
	case StateClosed:
		cb.failures = 0
	}
	if from != to && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.config.Name, from, to)
	}
}

// CircuitBreakerMetrics is a snapshot of a breaker.
type CircuitBreakerMetrics struct {
	State       State     `json:"state"`
	Failures    int       `json:"failures"`
	Successes   int       `json:"successes"`
	Opens       int       `json:"opens"`
	LastFailure time.Time `json:"last_failure"`
}

func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return CircuitBreakerMetrics{
		State:       cb.refreshLocked(),
		Failures:    cb.failures,
		Successes:   cb.successes,
		Opens:       cb.opens,
		LastFailure: cb.lastFailure,
	}
}
