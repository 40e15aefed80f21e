// Package tts defines the interface for speech synthesis backends.
//
// Synthesis is an out-of-process concern in voicewire: the session core only
// needs to hand text to a backend and receive playable audio back. Backends
// operate in batch mode, one request per utterance.
package tts

import "context"

// Format identifies the container/codec of synthesised audio.
type Format string

const (
	// FormatMP3 is MP3-encoded audio.
	FormatMP3 Format = "mp3"

	// FormatWAV is RIFF/WAVE PCM audio.
	FormatWAV Format = "wav"
)

// Options carries per-request synthesis parameters.
type Options struct {
	// ReferenceWAV is the path to a reference recording for zero-shot voice
	// cloning. Empty means the backend's default voice.
	ReferenceWAV string

	// ReferenceText is the transcript of ReferenceWAV. Required by cloning
	// backends when ReferenceWAV is set.
	ReferenceText string
}

// Audio is the result of one synthesis request.
type Audio struct {
	// Data is the encoded audio payload.
	Data []byte

	// Format describes how Data is encoded.
	Format Format

	// DurationMS is the synthesis wall time reported by the backend, in
	// milliseconds. Zero when the backend does not report it.
	DurationMS float64
}

// Synthesizer converts text to audio.
type Synthesizer interface {
	// Synthesize generates audio for text. Empty text is an error.
	Synthesize(ctx context.Context, text string, opts Options) (Audio, error)

	// Health reports whether the backend is ready to synthesise. A nil
	// return means ready; the error describes why it is not.
	Health(ctx context.Context) error
}
