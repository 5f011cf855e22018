// Package resilience keeps the transcription path alive when a speech
// backend misbehaves. A [Breaker] stops hammering a backend after repeated
// failures, and [STTFallback] routes each utterance to the first healthy
// backend in a configured chain.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned by [Breaker.Execute] while the breaker is
// cooling down after tripping.
var ErrBreakerOpen = errors.New("resilience: breaker is open")

// BreakerState is the operating mode of a [Breaker].
type BreakerState int

const (
	// BreakerClosed forwards every call.
	BreakerClosed BreakerState = iota

	// BreakerOpen rejects calls with [ErrBreakerOpen] until the cooldown
	// elapses.
	BreakerOpen

	// BreakerProbing lets a small quota of calls through after the cooldown.
	// The breaker closes once the quota succeeds and re-opens on the first
	// failure.
	BreakerProbing
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerProbing:
		return "probing"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero fields take the documented defaults.
type BreakerConfig struct {
	// Name labels the breaker in log output.
	Name string

	// FailureLimit is how many consecutive failures trip the breaker.
	// Default: 5.
	FailureLimit int

	// Cooldown is how long a tripped breaker rejects calls before probing
	// the backend again. Default: 30s.
	Cooldown time.Duration

	// ProbeQuota is how many calls may run while probing, and how many must
	// succeed for the breaker to close. Default: 3.
	ProbeQuota int
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureLimit <= 0 {
		c.FailureLimit = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	if c.ProbeQuota <= 0 {
		c.ProbeQuota = 3
	}
	return c
}

// Breaker is a consecutive-failure circuit breaker.
type Breaker struct {
	cfg BreakerConfig

	mu        sync.Mutex
	state     BreakerState
	failures  int
	trippedAt time.Time
	probes    int
	probeWins int
}

// NewBreaker creates a closed [Breaker].
func NewBreaker(cfg BreakerConfig) *Breaker {
	return &Breaker{cfg: cfg.withDefaults()}
}

// Execute runs fn unless the breaker refuses the call, and feeds fn's
// outcome back into the breaker.
func (b *Breaker) Execute(fn func() error) error {
	probing, err := b.admit()
	if err != nil {
		return err
	}

	err = fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.trip(probing)
	} else {
		b.settle(probing)
	}
	return err
}

// admit decides whether a call may proceed, moving an expired open breaker
// into the probing state on the way.
func (b *Breaker) admit() (probing bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen {
		if time.Since(b.trippedAt) < b.cfg.Cooldown {
			return false, ErrBreakerOpen
		}
		b.state = BreakerProbing
		b.probes = 0
		b.probeWins = 0
		slog.Info("breaker probing backend again", "breaker", b.cfg.Name)
	}

	if b.state == BreakerProbing {
		if b.probes >= b.cfg.ProbeQuota {
			return false, ErrBreakerOpen
		}
		b.probes++
		return true, nil
	}
	return false, nil
}

// trip records a failure. Caller holds b.mu.
func (b *Breaker) trip(probing bool) {
	b.trippedAt = time.Now()

	if probing {
		// One bad probe is enough evidence the backend is still down.
		b.state = BreakerOpen
		b.failures = b.cfg.FailureLimit
		slog.Warn("breaker re-opened, probe failed", "breaker", b.cfg.Name)
		return
	}

	b.failures++
	if b.failures >= b.cfg.FailureLimit {
		b.state = BreakerOpen
		slog.Warn("breaker opened",
			"breaker", b.cfg.Name,
			"consecutive_failures", b.failures,
		)
	}
}

// settle records a success. Caller holds b.mu.
func (b *Breaker) settle(probing bool) {
	if probing {
		b.probeWins++
		if b.probeWins >= b.cfg.ProbeQuota {
			b.state = BreakerClosed
			b.failures = 0
			slog.Info("breaker closed, backend recovered", "breaker", b.cfg.Name)
		}
		return
	}
	b.failures = 0
}

// State reports the breaker's current mode. An open breaker whose cooldown
// has elapsed reports [BreakerProbing]; the transition itself happens on the
// next [Breaker.Execute].
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && time.Since(b.trippedAt) >= b.cfg.Cooldown {
		return BreakerProbing
	}
	return b.state
}

// Reset forces the breaker closed and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.probes = 0
	b.probeWins = 0
}
