package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voicewire/voicewire/pkg/provider/stt"
	sttmock "github.com/voicewire/voicewire/pkg/provider/stt/mock"
)

func TestChain_PrimarySucceeds(t *testing.T) {
	primary := &sttmock.Transcriber{Results: []stt.Result{{Text: "hello"}}}
	fallback := &sttmock.Transcriber{Results: []stt.Result{{Text: "fallback"}}}

	c := NewChain(primary, "local", BreakerConfig{})
	c.AddFallback("cloud", fallback)

	res, err := c.Transcribe(context.Background(), []byte{1, 2}, stt.Config{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "hello" {
		t.Errorf("text = %q, want %q", res.Text, "hello")
	}
	if fallback.CallCount() != 0 {
		t.Errorf("fallback calls = %d, want 0", fallback.CallCount())
	}
}

func TestChain_FailoverToFallback(t *testing.T) {
	primary := &sttmock.Transcriber{Err: errors.New("local engine down")}
	fallback := &sttmock.Transcriber{Results: []stt.Result{{Text: "from cloud"}}}

	c := NewChain(primary, "local", BreakerConfig{})
	c.AddFallback("cloud", fallback)

	res, err := c.Transcribe(context.Background(), []byte{1, 2}, stt.Config{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "from cloud" {
		t.Errorf("text = %q, want %q", res.Text, "from cloud")
	}
	if primary.CallCount() != 1 {
		t.Errorf("primary calls = %d, want 1", primary.CallCount())
	}
}

func TestChain_AllFail(t *testing.T) {
	primary := &sttmock.Transcriber{Err: errors.New("nope")}
	fallback := &sttmock.Transcriber{Err: errors.New("also nope")}

	c := NewChain(primary, "local", BreakerConfig{})
	c.AddFallback("cloud", fallback)

	_, err := c.Transcribe(context.Background(), []byte{1}, stt.Config{})
	if !errors.Is(err, ErrAllBackends) {
		t.Errorf("err = %v, want %v", err, ErrAllBackends)
	}
}

func TestChain_SkipsOpenBreaker(t *testing.T) {
	primary := &sttmock.Transcriber{Err: errors.New("local engine down")}
	fallback := &sttmock.Transcriber{Results: []stt.Result{{Text: "ok"}}}

	c := NewChain(primary, "local", BreakerConfig{MaxFailures: 2, Cooldown: time.Hour})
	c.AddFallback("cloud", fallback)

	// Trip the primary's breaker.
	for i := 0; i < 2; i++ {
		if _, err := c.Transcribe(context.Background(), []byte{1}, stt.Config{}); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if primary.CallCount() != 2 {
		t.Fatalf("primary calls = %d, want 2", primary.CallCount())
	}

	// Breaker open: the primary must not be called again.
	if _, err := c.Transcribe(context.Background(), []byte{1}, stt.Config{}); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if primary.CallCount() != 2 {
		t.Errorf("primary calls = %d, want 2 (breaker must skip it)", primary.CallCount())
	}
	if fallback.CallCount() != 3 {
		t.Errorf("fallback calls = %d, want 3", fallback.CallCount())
	}
}

func TestChain_ContextCancelStopsChain(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	primary := &sttmock.Transcriber{Err: context.Canceled}
	fallback := &sttmock.Transcriber{Results: []stt.Result{{Text: "never"}}}

	c := NewChain(primary, "local", BreakerConfig{})
	c.AddFallback("cloud", fallback)

	cancel()
	_, err := c.Transcribe(ctx, []byte{1}, stt.Config{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want %v", err, context.Canceled)
	}
	if fallback.CallCount() != 0 {
		t.Errorf("fallback calls = %d, want 0 after context cancel", fallback.CallCount())
	}
}

func TestChain_SingleBackend(t *testing.T) {
	only := &sttmock.Transcriber{Results: []stt.Result{{Text: "solo"}}}
	c := NewChain(only, "local", BreakerConfig{})

	res, err := c.Transcribe(context.Background(), []byte{1}, stt.Config{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "solo" {
		t.Errorf("text = %q, want %q", res.Text, "solo")
	}
}
