// Package vad defines the Engine interface for voice activity detection
// backends.
//
// A VAD engine wraps a frame-level speech classifier (e.g., Silero VAD) and
// surfaces it as a stateful, per-recording session. Each session owns its own
// recurrent state and trailing-context buffer, so the classifier's look-back
// requirement never leaks across recordings.
//
// Classification is synchronous: Classify returns immediately with a
// probability, so it can run inside the per-frame recording loop where
// inference must complete well under the 32 ms frame duration.
//
// Implementations must be safe for concurrent use across different sessions.
// A single Session must not be shared across goroutines.
package vad

// DefaultSpeechThreshold is the probability at or above which a frame is
// classified as speech.
const DefaultSpeechThreshold = 0.5

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// PCM frames passed to Classify. The Silero classifier supports 8000 and
	// 16000.
	SampleRate int

	// FrameSamples is the fixed number of samples per frame. Classify returns
	// an error for any other frame length. Zero selects the engine's native
	// window (512 samples at 16 kHz for Silero).
	FrameSamples int

	// SpeechThreshold is the probability at or above which a frame counts as
	// speech. Zero selects [DefaultSpeechThreshold].
	SpeechThreshold float64
}

// Result is the classification outcome for a single audio frame.
type Result struct {
	// Probability is the speech probability score in [0.0, 1.0].
	Probability float64

	// Speech reports whether Probability met the session's speech threshold.
	Speech bool
}

// Session is an active VAD session for a single recording. It carries the
// classifier's recurrent hidden state and trailing-context buffer between
// Classify calls.
//
// A Session must not be shared between goroutines.
type Session interface {
	// Classify analyses one fixed-size frame of raw little-endian 16-bit mono
	// PCM and returns the speech probability. It updates the carried hidden
	// state and context buffer for the next call. Returns an error if the
	// frame length is wrong or the engine encounters an internal failure.
	Classify(frame []byte) (Result, error)

	// Reset zeroes the recurrent hidden state and the trailing-context
	// buffer. It MUST be called at the start of every new recording; reusing
	// a prior recording's state silently skews the first frames'
	// classifications.
	Reset()

	// Close releases all resources associated with the session. Calling
	// Close more than once is safe and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions. Implementations load their model
// artifact once per process and must be safe for concurrent NewSession calls.
type Engine interface {
	// NewSession creates a VAD session with the given configuration, ready to
	// accept frames immediately. Returns an error for unsupported sample
	// rates or frame sizes.
	NewSession(cfg Config) (Session, error)
}
