// Package mock provides a mock stt.Transcriber for testing.
package mock

import (
	"context"
	"sync"

	"github.com/voicewire/voicewire/pkg/provider/stt"
)

// Compile-time interface assertion.
var _ stt.Transcriber = (*Transcriber)(nil)

// TranscribeCall records the arguments of one Transcribe invocation.
type TranscribeCall struct {
	PCM []byte
	Cfg stt.Config
}

// Transcriber is a mock stt.Transcriber that records calls and returns
// scripted results.
type Transcriber struct {
	mu sync.Mutex

	// Results are returned in order for successive Transcribe calls. Once
	// exhausted the last result repeats. Empty Results yields a zero Result.
	Results []stt.Result

	// Err, when set, is returned by every Transcribe call.
	Err error

	TranscribeCalls []TranscribeCall
}

// Transcribe implements stt.Transcriber.
func (t *Transcriber) Transcribe(ctx context.Context, pcm []byte, cfg stt.Config) (stt.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	t.TranscribeCalls = append(t.TranscribeCalls, TranscribeCall{PCM: cp, Cfg: cfg})

	if t.Err != nil {
		return stt.Result{}, t.Err
	}
	if len(t.Results) == 0 {
		return stt.Result{}, nil
	}
	idx := len(t.TranscribeCalls) - 1
	if idx >= len(t.Results) {
		idx = len(t.Results) - 1
	}
	return t.Results[idx], nil
}

// CallCount returns the number of Transcribe invocations so far.
func (t *Transcriber) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.TranscribeCalls)
}
