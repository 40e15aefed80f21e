// Package mock provides a mock tts.Synthesizer for testing.
package mock

import (
	"context"
	"sync"

	"github.com/voicewire/voicewire/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Synthesizer = (*Synthesizer)(nil)

// SynthesizeCall records the arguments of one Synthesize invocation.
type SynthesizeCall struct {
	Text string
	Opts tts.Options
}

// Synthesizer is a mock tts.Synthesizer that records calls and returns
// scripted audio.
type Synthesizer struct {
	mu sync.Mutex

	// Audio is returned by every successful Synthesize call.
	Audio tts.Audio

	// SynthesizeErr, when set, is returned by every Synthesize call.
	SynthesizeErr error

	// HealthErr is returned by Health.
	HealthErr error

	SynthesizeCalls []SynthesizeCall
	HealthCallCount int
}

// Synthesize implements tts.Synthesizer.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, opts tts.Options) (tts.Audio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SynthesizeCalls = append(s.SynthesizeCalls, SynthesizeCall{Text: text, Opts: opts})
	if s.SynthesizeErr != nil {
		return tts.Audio{}, s.SynthesizeErr
	}
	return s.Audio, nil
}

// Health implements tts.Synthesizer.
func (s *Synthesizer) Health(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.HealthCallCount++
	return s.HealthErr
}

// CallCount returns the number of Synthesize invocations so far.
func (s *Synthesizer) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SynthesizeCalls)
}
