package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// State is a circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the conventional state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitOpenError is returned when a call fails fast because the breaker
// for its upstream target is open. Semantically "temporarily unavailable",
// distinct from a hard failure of the call itself.
type CircuitOpenError struct {
	Target     string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("upstream %s temporarily unavailable (circuit open, retry in %s)", e.Target, e.RetryAfter.Round(time.Millisecond))
}

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	// Name identifies the upstream target this breaker protects.
	Name string

	// FailureThreshold is the number of consecutive failures that trips
	// the breaker open.
	FailureThreshold int

	// Cooldown is how long the breaker stays open before allowing a
	// single trial call.
	Cooldown time.Duration

	// CooldownGrowth multiplies the cooldown each time the trial call
	// fails. 1 keeps it fixed.
	CooldownGrowth float64

	// MaxCooldown caps cooldown growth.
	MaxCooldown time.Duration

	// OnStateChange is notified of transitions.
	OnStateChange func(from, to State)
}

func (c *BreakerConfig) defaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	if c.CooldownGrowth < 1 {
		c.CooldownGrowth = 1
	}
	if c.MaxCooldown <= 0 {
		c.MaxCooldown = 5 * time.Minute
	}
}

// Breaker is a circuit breaker for one upstream target. It is shared
// across sessions calling that target; all mutation is serialized behind
// its mutex.
type Breaker struct {
	cfg BreakerConfig

	mu            sync.Mutex
	state         State
	failures      int
	openedAt      time.Time
	cooldown      time.Duration
	trialInFlight bool
	now           func() time.Time
}

// NewBreaker creates a breaker in the closed state.
func NewBreaker(cfg BreakerConfig) *Breaker {
	cfg.defaults()
	return &Breaker{
		cfg:      cfg,
		state:    StateClosed,
		cooldown: cfg.Cooldown,
		now:      time.Now,
	}
}

// Allow reports whether a call may proceed, transitioning open→half-open
// when the cooldown has elapsed. In half-open exactly one trial call is
// admitted.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		remaining := b.cooldown - b.now().Sub(b.openedAt)
		if remaining > 0 {
			return &CircuitOpenError{Target: b.cfg.Name, RetryAfter: remaining}
		}
		b.transition(StateHalfOpen)
		b.trialInFlight = true
		return nil
	case StateHalfOpen:
		if b.trialInFlight {
			return &CircuitOpenError{Target: b.cfg.Name, RetryAfter: b.cooldown}
		}
		b.trialInFlight = true
		return nil
	default:
		return nil
	}
}

// RecordSuccess notes a successful call. A successful half-open trial
// closes the breaker and resets the failure counter and cooldown.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trialInFlight = false
	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.failures = 0
		b.cooldown = b.cfg.Cooldown
		b.transition(StateClosed)
	}
}

// RecordFailure notes a failed call. Reaching the threshold while closed
// trips the breaker; a failed half-open trial reopens it, growing the
// cooldown when configured.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trialInFlight = false
	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.openedAt = b.now()
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.cooldown = time.Duration(float64(b.cooldown) * b.cfg.CooldownGrowth)
		if b.cooldown > b.cfg.MaxCooldown {
			b.cooldown = b.cfg.MaxCooldown
		}
		b.openedAt = b.now()
		b.transition(StateOpen)
	}
}

// Execute runs fn under breaker protection, recording its outcome.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn(ctx)
	if err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	log.Info().
		Str("target", b.cfg.Name).
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("Circuit breaker state changed")
	if b.cfg.OnStateChange != nil {
		go b.cfg.OnStateChange(from, to)
	}
}

// BreakerRegistry hands out one breaker per upstream target name.
type BreakerRegistry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	defaults BreakerConfig
}

// NewBreakerRegistry creates a registry applying defaults to new breakers.
func NewBreakerRegistry(defaults BreakerConfig) *BreakerRegistry {
	defaults.defaults()
	return &BreakerRegistry{
		breakers: make(map[string]*Breaker),
		defaults: defaults,
	}
}

// Get returns the breaker for a target, creating it on first use.
func (r *BreakerRegistry) Get(name string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	cfg := r.defaults
	cfg.Name = name
	b = NewBreaker(cfg)
	r.breakers[name] = b
	return b
}

// OpenTargets returns the names of all currently open breakers.
func (r *BreakerRegistry) OpenTargets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var open []string
	for name, b := range r.breakers {
		if b.State() == StateOpen {
			open = append(open, name)
		}
	}
	return open
}
