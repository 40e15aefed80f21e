// This file contains the Native transcriber backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/voicewire/voicewire/pkg/provider/stt"
)

// Compile-time interface assertion.
var _ stt.Transcriber = (*Native)(nil)

// Native implements stt.Transcriber using the whisper.cpp Go bindings,
// eliminating HTTP overhead entirely. The model is loaded once at
// construction and shared by all Transcribe calls; each call creates its own
// whisper context, so concurrent calls do not interfere.
type Native struct {
	model    whisperlib.Model
	language string

	mu sync.Mutex // whisper.cpp contexts are cheap but model access is serialised
}

// NativeOption is a functional option for configuring a Native transcriber.
type NativeOption func(*Native)

// WithNativeLanguage sets the language code for transcription. Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(n *Native) { n.language = lang }
}

// NewNative loads the ggml model at modelPath. The caller must call Close
// when the transcriber is no longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*Native, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	n := &Native{model: model, language: defaultLanguage}
	for _, o := range opts {
		o(n)
	}
	return n, nil
}

// Close releases the whisper model.
func (n *Native) Close() error {
	if n.model != nil {
		return n.model.Close()
	}
	return nil
}

// Transcribe runs batch inference over the whole buffer.
func (n *Native) Transcribe(ctx context.Context, pcm []byte, cfg stt.Config) (stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	lang := cfg.Language
	if lang == "" {
		lang = n.language
	}

	start := time.Now()
	samples := pcmToFloat32(pcm)

	n.mu.Lock()
	defer n.mu.Unlock()

	wctx, err := n.model.NewContext()
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: new context: %w", err)
	}
	if err := wctx.SetLanguage(lang); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: set language %q: %w", lang, err)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: process: %w", err)
	}

	var sb strings.Builder
	for {
		segment, err := wctx.NextSegment()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return stt.Result{}, fmt.Errorf("whisper: next segment: %w", err)
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strings.TrimSpace(segment.Text))
	}

	return stt.Result{
		Text:     strings.TrimSpace(sb.String()),
		Language: lang,
		Duration: time.Since(start),
	}, nil
}

// pcmToFloat32 converts 16-bit signed little-endian PCM to float32 samples
// normalised to [-1.0, 1.0]. Any trailing odd byte is silently ignored.
func pcmToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		samples[i] = float32(sample) / 32768.0
	}
	return samples
}
