// Package resilience provides the circuit breaker guarding the generative
// grading backend.
//
// [Breaker] never retries a call. Once tripped it converts repeated hard
// failures into immediate hard failures until a cooldown passes, then lets a
// single trial call through to decide whether the backend has recovered.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [Breaker.Execute] while the breaker rejects
// calls without forwarding them.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards all calls.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the cooldown
	// elapses.
	StateOpen

	// StateHalfOpen forwards exactly one trial call. Its outcome decides
	// whether the breaker closes or re-opens.
	StateHalfOpen
)

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

// BreakerConfig holds the tuning knobs for a [Breaker].
type BreakerConfig struct {
	// Name is a label used in log messages.
	Name string

	// FailureLimit is the number of consecutive failures before the breaker
	// trips. Default: 5.
	FailureLimit int

	// Cooldown is how long the breaker rejects calls after tripping before
	// it allows a trial call. Default: 30s.
	Cooldown time.Duration
}

// Breaker implements the three-state circuit breaker pattern with a
// single-trial half-open phase. Safe for concurrent use.
type Breaker struct {
	name     string
	limit    int
	cooldown time.Duration

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	inTrial  bool
}

// NewBreaker creates a [Breaker], filling zero config fields with defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureLimit <= 0 {
		cfg.FailureLimit = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{
		name:     cfg.Name,
		limit:    cfg.FailureLimit,
		cooldown: cfg.Cooldown,
	}
}

// Execute runs fn if the breaker admits the call, otherwise it returns
// [ErrCircuitOpen] without calling fn.
func (b *Breaker) Execute(fn func() error) error {
	trial, err := b.admit()
	if err != nil {
		return err
	}

	err = fn()
	b.settle(trial, err)
	return err
}

// admit decides whether a call may proceed and whether it is the half-open
// trial call.
func (b *Breaker) admit() (trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if time.Since(b.openedAt) < b.cooldown {
			return false, ErrCircuitOpen
		}
		b.state = StateHalfOpen
		b.inTrial = true
		slog.Info("circuit breaker half-open, admitting trial call", "name", b.name)
		return true, nil

	case StateHalfOpen:
		if b.inTrial {
			return false, ErrCircuitOpen
		}
		b.inTrial = true
		return true, nil
	}
	return false, nil
}

// settle records the outcome of an admitted call.
func (b *Breaker) settle(trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if trial {
		b.inTrial = false
		if err != nil {
			b.trip()
			slog.Warn("circuit breaker re-opened, trial call failed", "name", b.name)
			return
		}
		b.state = StateClosed
		b.failures = 0
		slog.Info("circuit breaker closed, backend recovered", "name", b.name)
		return
	}

	if err == nil {
		if b.state == StateClosed {
			b.failures = 0
		}
		return
	}

	b.failures++
	if b.state == StateClosed && b.failures >= b.limit {
		b.trip()
		slog.Warn("circuit breaker opened",
			"name", b.name,
			"consecutive_failures", b.failures)
	}
}

// trip moves the breaker to open. Must be called with b.mu held.
func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = time.Now()
}

// State returns the current [State]. An open breaker whose cooldown has
// elapsed reports [StateHalfOpen]; the actual transition happens on the next
// [Breaker.Execute] call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && time.Since(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}
