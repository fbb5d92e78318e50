package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/agentuity/go-memo/cache"
	"github.com/cockroachdb/errors"
)

// ErrBreakerOpen is returned by a guarded producer while its breaker is open.
var ErrBreakerOpen = errors.New("resilience: circuit breaker is open")

var errPanicked = errors.New("resilience: producer panicked")

// BreakerState represents the state of a circuit breaker
type BreakerState int32

const (
	StateClosed BreakerState = iota
	StateHalfOpen
	StateOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateHalfOpen:
		return "HALF_OPEN"
	case StateOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// BreakerConfig defines configuration for the circuit breaker
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the breaker
	MaxFailures int

	// Cooldown is how long the breaker stays open before letting a trial call through
	Cooldown time.Duration

	// SuccessThreshold is the number of trial successes needed to close it again
	SuccessThreshold int
}

// DefaultBreakerConfig returns a default configuration
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures:      5,
		Cooldown:         30 * time.Second,
		SuccessThreshold: 1,
	}
}

// Breaker stops calls to a failing producer for a cooldown period. While
// half open it lets a single trial call through at a time.
type Breaker struct {
	config BreakerConfig
	now    func() time.Time

	mu        sync.Mutex
	state     BreakerState
	failures  int
	successes int
	trial     bool
	openedAt  time.Time
}

// NewBreaker creates a breaker, filling zero fields of config from DefaultBreakerConfig.
func NewBreaker(config BreakerConfig) *Breaker {
	def := DefaultBreakerConfig()
	if config.MaxFailures <= 0 {
		config.MaxFailures = def.MaxFailures
	}
	if config.Cooldown <= 0 {
		config.Cooldown = def.Cooldown
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = def.SuccessThreshold
	}
	return &Breaker{config: config, now: time.Now}
}

// allow reports whether a call may proceed and whether it is a trial call.
func (b *Breaker) allow() (bool, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateClosed:
		return true, false
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.config.Cooldown {
			return false, false
		}
		b.state = StateHalfOpen
		b.successes = 0
		fallthrough
	default:
		if b.trial {
			return false, false
		}
		b.trial = true
		return true, true
	}
}

func (b *Breaker) done(trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if trial {
		b.trial = false
	}
	if err != nil {
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.config.MaxFailures {
			b.state = StateOpen
			b.openedAt = b.now()
		}
		return
	}
	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
		}
	}
}

// State returns the current state of the breaker
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the number of consecutive failures
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset closes the breaker
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
	b.trial = false
}

// Guard wraps producer so that it fails fast with ErrBreakerOpen while b is
// open. A producer reporting no value counts as a success; only errors,
// including context cancellation, count as failures.
func Guard[T any](b *Breaker, producer cache.Producer[T]) cache.Producer[T] {
	return func(ctx context.Context, args []any) (value T, found bool, err error) {
		ok, trial := b.allow()
		if !ok {
			return value, false, ErrBreakerOpen
		}
		// err keeps this value only if producer panics.
		err = errPanicked
		defer func() { b.done(trial, err) }()
		return producer(ctx, args)
	}
}
