package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/voicewire/voicewire/pkg/provider/stt"
)

// ErrAllBackends is returned by [Chain.Transcribe] when every backend fails
// or has an open breaker.
var ErrAllBackends = errors.New("all transcription backends failed")

// Compile-time interface assertion.
var _ stt.Transcriber = (*Chain)(nil)

// chainEntry pairs a transcriber with its dedicated breaker.
type chainEntry struct {
	name    string
	t       stt.Transcriber
	breaker *Breaker
}

// Chain implements stt.Transcriber with automatic failover across multiple
// backends. Backends are tried in registration order; entries with an open
// breaker are skipped. This is how the "auto" backend mode composes the local
// whisper engine with the cloud fallback.
type Chain struct {
	entries []chainEntry
	cfg     BreakerConfig
}

// NewChain creates a [Chain] with primary as the preferred backend. The
// breaker config is cloned per entry, with each entry's name substituted.
func NewChain(primary stt.Transcriber, primaryName string, cfg BreakerConfig) *Chain {
	c := &Chain{cfg: cfg}
	c.add(primaryName, primary)
	return c
}

// AddFallback registers an additional backend, tried after all earlier ones.
func (c *Chain) AddFallback(name string, t stt.Transcriber) {
	c.add(name, t)
}

func (c *Chain) add(name string, t stt.Transcriber) {
	bc := c.cfg
	bc.Name = name
	c.entries = append(c.entries, chainEntry{
		name:    name,
		t:       t,
		breaker: NewBreaker(bc),
	})
}

// Transcribe implements stt.Transcriber. It returns the first successful
// result, or [ErrAllBackends] wrapped with the last error when every backend
// fails. A context error stops the chain immediately: later backends would
// fail the same way, and their breakers should not be penalised for it.
func (c *Chain) Transcribe(ctx context.Context, pcm []byte, cfg stt.Config) (stt.Result, error) {
	var lastErr error
	for i := range c.entries {
		entry := &c.entries[i]

		var result stt.Result
		err := entry.breaker.Call(func() error {
			var innerErr error
			result, innerErr = entry.t.Transcribe(ctx, pcm, cfg)
			return innerErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return stt.Result{}, ctx.Err()
		}
		if errors.Is(err, ErrBreakerOpen) {
			slog.Debug("skipping transcription backend (breaker open)", "backend", entry.name)
		} else {
			slog.Warn("transcription backend failed, trying next",
				"backend", entry.name, "error", err)
		}
	}
	return stt.Result{}, fmt.Errorf("%w: %v", ErrAllBackends, lastErr)
}
