// Package resilience provides the failover plumbing for speech-to-text
// backends.
//
// [Breaker] is a three-state circuit breaker (closed → open → half-open)
// sized for voicewire's call pattern: one transcription request per finished
// recording, never concurrent bursts. [Chain] composes multiple
// stt.Transcriber backends with a per-backend breaker so that a failing local
// engine is bypassed in favour of the cloud fallback.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned by [Breaker.Call] while the breaker is open and
// the cooldown has not yet elapsed.
var ErrBreakerOpen = errors.New("breaker is open")

// BreakerState is the operating mode of a [Breaker].
type BreakerState int

const (
	// BreakerClosed forwards every call.
	BreakerClosed BreakerState = iota

	// BreakerOpen rejects calls with [ErrBreakerOpen] until the cooldown
	// elapses.
	BreakerOpen

	// BreakerHalfOpen lets a single probe call through. Success closes the
	// breaker, failure re-opens it.
	BreakerHalfOpen
)

// String returns the human-readable name of the state.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds the tuning knobs for a [Breaker].
type BreakerConfig struct {
	// Name is a label used in log messages.
	Name string

	// MaxFailures is the number of consecutive failures before the breaker
	// opens. Default: 3.
	MaxFailures int

	// Cooldown is how long the breaker stays open before allowing a probe.
	// Default: 20s.
	Cooldown time.Duration
}

// Breaker implements a three-state circuit breaker with a single-probe
// half-open phase.
type Breaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration

	mu          sync.Mutex
	state       BreakerState
	failures    int
	openedAt    time.Time
	probeActive bool
}

// NewBreaker creates a [Breaker]. Zero-value config fields get defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 20 * time.Second
	}
	return &Breaker{
		name:        cfg.Name,
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		state:       BreakerClosed,
	}
}

// Call runs fn if the breaker allows it. In the open state it returns
// [ErrBreakerOpen] without calling fn; after the cooldown exactly one probe
// call is admitted.
func (b *Breaker) Call(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case BreakerOpen:
		if time.Since(b.openedAt) < b.cooldown {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		b.state = BreakerHalfOpen
		b.probeActive = false
		slog.Info("breaker half-open", "name", b.name)

	case BreakerHalfOpen:
		if b.probeActive {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
	}
	probe := b.state == BreakerHalfOpen
	if probe {
		b.probeActive = true
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure(probe)
	} else {
		b.onSuccess(probe)
	}
	return err
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure(probe bool) {
	if probe {
		b.state = BreakerOpen
		b.openedAt = time.Now()
		b.probeActive = false
		slog.Warn("breaker re-opened after failed probe", "name", b.name)
		return
	}
	b.failures++
	if b.failures >= b.maxFailures {
		b.state = BreakerOpen
		b.openedAt = time.Now()
		slog.Warn("breaker opened", "name", b.name, "consecutive_failures", b.failures)
	}
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess(probe bool) {
	if probe {
		slog.Info("breaker closed after successful probe", "name", b.name)
	}
	b.state = BreakerClosed
	b.failures = 0
	b.probeActive = false
}

// State returns the current [BreakerState]. An open breaker whose cooldown has
// elapsed reports [BreakerHalfOpen]; the actual transition happens on the next
// [Breaker.Call].
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && time.Since(b.openedAt) >= b.cooldown {
		return BreakerHalfOpen
	}
	return b.state
}

// Reset forces the breaker back to [BreakerClosed].
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.probeActive = false
}
