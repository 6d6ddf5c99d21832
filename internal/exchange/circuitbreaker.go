package exchange

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// CircuitState is one of closed, open, half_open.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// CircuitBreaker trips after MaxFailures consecutive failures and stays
// open for OpenTimeout; the first Allow call after that moves it to
// half-open and is let through. While half-open every call is let through:
// the first recorded success resets the counter and closes the breaker, the
// first recorded failure re-opens it for another full timeout. This is per-connector, not
// per-endpoint, per spec section 4.2.
type CircuitBreaker struct {
	mu           sync.Mutex
	MaxFailures  int
	OpenTimeout  time.Duration
	state        CircuitState
	failures     int
	openedAt     time.Time
	log          zerolog.Logger
}

// NewCircuitBreaker builds a breaker with the spec defaults (5 consecutive
// failures, 5 minute open timeout) unless overridden by the caller.
func NewCircuitBreaker(maxFailures int, openTimeout time.Duration, log zerolog.Logger) *CircuitBreaker {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if openTimeout <= 0 {
		openTimeout = 5 * time.Minute
	}
	return &CircuitBreaker{
		MaxFailures: maxFailures,
		OpenTimeout: openTimeout,
		state:       CircuitClosed,
		log:         log.With().Str("component", "circuit_breaker").Logger(),
	}
}

// Allow reports whether a call may proceed. It transitions open -> half_open
// once OpenTimeout has elapsed.
func (c *CircuitBreaker) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if time.Since(c.openedAt) >= c.OpenTimeout {
			c.transition(CircuitHalfOpen)
			return true
		}
		return false
	case CircuitHalfOpen:
		// Calls are not limited to a single probe: once half-open every call
		// is let through, and RecordSuccess/RecordFailure decide the next
		// state.
		return true
	default:
		return true
	}
}

// RecordSuccess closes the breaker and resets the failure counter.
func (c *CircuitBreaker) RecordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = 0
	if c.state != CircuitClosed {
		c.transition(CircuitClosed)
	}
}

// RecordFailure increments the failure counter and opens the breaker once
// MaxFailures consecutive failures have been recorded, or immediately
// re-opens it if the failing call was the half-open probe.
func (c *CircuitBreaker) RecordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == CircuitHalfOpen {
		c.transition(CircuitOpen)
		return
	}

	c.failures++
	if c.failures >= c.MaxFailures {
		c.transition(CircuitOpen)
	}
}

func (c *CircuitBreaker) transition(to CircuitState) {
	from := c.state
	c.state = to
	if to == CircuitOpen {
		c.openedAt = time.Now()
	}
	c.log.Info().Str("from", string(from)).Str("to", string(to)).Int("failures", c.failures).Msg("circuit breaker state transition")
}

// State returns the current state for health reporting.
func (c *CircuitBreaker) State() CircuitState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ErrCircuitOpen is returned by connector operations when the breaker is open.
type ErrCircuitOpen struct{}

func (ErrCircuitOpen) Error() string { return "circuit breaker is open" }
