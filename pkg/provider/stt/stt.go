// Package stt defines the Transcriber interface for speech-to-text backends.
//
// The voicewire core treats transcription as an external collaborator behind
// a narrow batch contract: one completed recording in, one transcript out.
// Backends wrap a local whisper.cpp server, the whisper.cpp CGO bindings, or
// a cloud API; callers select among them through configuration, optionally
// composed with automatic failover (see internal/resilience).
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"time"
)

// Config describes the audio format and recognition hints for a Transcribe
// call.
type Config struct {
	// SampleRate is the PCM sample rate in Hz. Zero means 16000.
	SampleRate int

	// Language is the BCP-47 language tag for recognition (e.g., "en").
	// Empty lets the backend auto-detect where supported.
	Language string
}

// Result is a completed transcription.
type Result struct {
	// Text is the transcribed speech content. May be empty when the backend
	// heard nothing intelligible; callers distinguish that from a recording
	// that contained no speech at all, which never reaches a Transcriber.
	Text string

	// Language is the language the backend detected or was told, when known.
	Language string

	// Duration is how long the backend took to transcribe.
	Duration time.Duration
}

// Transcriber is the abstraction over any STT backend.
type Transcriber interface {
	// Transcribe converts one buffer of 16-bit mono little-endian PCM into
	// text. The call blocks until the backend responds or ctx is cancelled.
	Transcribe(ctx context.Context, pcm []byte, cfg Config) (Result, error)
}
