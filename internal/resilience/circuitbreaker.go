// Package resilience keeps a flaky transcription or scoring backend from
// stalling every attempt.
//
// Each backend sits behind a [Breaker]. After Threshold consecutive failures
// the breaker opens and calls fail fast with [ErrCircuitOpen]; once Cooldown
// has passed a single probe call is let through, and its outcome closes or
// reopens the breaker. A [Group] chains a primary backend with fallbacks,
// each behind its own breaker. [LLMFallback] and [STTFallback] adapt a Group
// to the provider interfaces.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling the backend while its breaker
// is open or a probe is already in flight.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// State is the mode of a [Breaker].
type State int

const (
	StateClosed State = iota
	StateOpen
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
	}
	return "unknown"
}

// BreakerConfig tunes a [Breaker]. Zero fields take the defaults.
type BreakerConfig struct {
	// Name labels log lines.
	Name string

	// Threshold is the number of consecutive failures that opens the
	// breaker. Default 5.
	Threshold int

	// Cooldown is how long an open breaker rejects calls before probing.
	// Default 30s.
	Cooldown time.Duration

	// IsFailure classifies call errors. Default [CountsAsFailure].
	IsFailure func(error) bool

	// Now defaults to time.Now.
	Now func() time.Time
}

// CountsAsFailure reports whether err is the backend's fault. A cancelled or
// expired caller context is not.
func CountsAsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Breaker is a three-state circuit breaker. It is safe for concurrent use.
type Breaker struct {
	cfg BreakerConfig

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker returns a closed [Breaker].
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = CountsAsFailure
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{cfg: cfg}
}

// Do runs fn unless the breaker rejects the call, and records the outcome.
func (b *Breaker) Do(fn func() error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}
	err = fn()
	b.record(probe, err)
	return err
}

// admit decides whether a call may proceed and whether it is the probe.
func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return false, nil
	case StateOpen:
		if b.cfg.Now().Sub(b.openedAt) < b.cfg.Cooldown {
			return false, ErrCircuitOpen
		}
		b.state = StateHalfOpen
		slog.Info("circuit half-open, probing backend", "backend", b.cfg.Name)
	}
	if b.probing {
		return false, ErrCircuitOpen
	}
	b.probing = true
	return true, nil
}

func (b *Breaker) record(probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe {
		b.probing = false
	}
	switch {
	case err == nil:
		if b.state != StateClosed {
			slog.Info("circuit closed", "backend", b.cfg.Name)
		}
		b.state = StateClosed
		b.failures = 0
	case !b.cfg.IsFailure(err):
		// The probe slot was released above; the state stays as it was.
	case probe:
		b.trip()
	default:
		b.failures++
		if b.failures >= b.cfg.Threshold && b.state == StateClosed {
			b.trip()
		}
	}
}

// trip opens the breaker. b.mu must be held.
func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = b.cfg.Now()
	slog.Warn("circuit opened", "backend", b.cfg.Name, "consecutive_failures", b.failures)
}

// Name returns the configured label.
func (b *Breaker) Name() string { return b.cfg.Name }

// State reports the current mode. An open breaker whose cooldown has passed
// reports [StateHalfOpen]; the transition itself happens on the next call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.cfg.Now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.probing = false
}
