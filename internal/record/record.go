// Package record implements the recording state machine: the per-frame loop
// that reads capture audio, runs voice-activity classification, accumulates
// the recording buffer, and decides when the recording is finished.
//
// The loop owns its VAD session and accumulation buffer exclusively — session
// exclusivity guarantees a single active recording, so no internal locking is
// needed. External collaborators are injected as narrow capabilities: a
// [Source] for audio, a stop probe, and an event [Sink], which keeps the loop
// testable without a microphone or a live socket.
package record

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/voicewire/voicewire/internal/channel"
	"github.com/voicewire/voicewire/pkg/audio"
	"github.com/voicewire/voicewire/pkg/provider/vad"
)

// State enumerates the recording lifecycle.
type State int

const (
	StateIdle State = iota
	StateListening
	StateSpeechDetected
	StateSilence
	StateFinishing
	StateAborted
)

// String returns the human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateSpeechDetected:
		return "speech"
	case StateSilence:
		return "silence"
	case StateFinishing:
		return "finishing"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// SilenceMode names a consecutive-silence threshold that auto-stops a
// recording once speech has been heard.
type SilenceMode string

const (
	SilenceQuick      SilenceMode = "quick"
	SilenceStandard   SilenceMode = "standard"
	SilenceThoughtful SilenceMode = "thoughtful"
)

// IsValid reports whether m is a recognised silence mode.
func (m SilenceMode) IsValid() bool {
	switch m {
	case SilenceQuick, SilenceStandard, SilenceThoughtful:
		return true
	}
	return false
}

// Seconds returns the silence window for the mode.
func (m SilenceMode) Seconds() float64 {
	switch m {
	case SilenceQuick:
		return 0.5
	case SilenceThoughtful:
		return 2.5
	default:
		return 1.5
	}
}

// SilenceFrames converts a mode's silence window into a consecutive-frame
// count: ceil(seconds · sampleRate / frameSamples).
func SilenceFrames(mode SilenceMode, sampleRate, frameSamples int) int {
	return int(math.Ceil(mode.Seconds() * float64(sampleRate) / float64(frameSamples)))
}

// Wall-clock deadline bounds. The deadline is the safety net that guarantees
// termination even if VAD never fires, so it is clamped rather than trusted.
const (
	DefaultDeadline = 300 * time.Second
	MinDeadline     = 10 * time.Second
	MaxDeadline     = 3600 * time.Second
)

// ClampDeadline forces d into [MinDeadline, MaxDeadline]; zero selects
// DefaultDeadline.
func ClampDeadline(d time.Duration) time.Duration {
	if d == 0 {
		return DefaultDeadline
	}
	if d < MinDeadline {
		return MinDeadline
	}
	if d > MaxDeadline {
		return MaxDeadline
	}
	return d
}

// Reason explains why a recording finished.
type Reason string

const (
	// ReasonStopSignal means the external cooperative stop was observed
	// after speech had been detected.
	ReasonStopSignal Reason = "stop_signal"

	// ReasonSilence means the consecutive-silence threshold was reached.
	ReasonSilence Reason = "silence"

	// ReasonDeadline means the wall-clock safety net fired.
	ReasonDeadline Reason = "deadline"

	// ReasonStreamEnded means the capture stream reached EOF (the capture
	// subprocess exited).
	ReasonStreamEnded Reason = "stream_ended"
)

// Result is the outcome of one recording attempt.
//
// HasSpeech distinguishes a usable recording from a "no input" outcome: a
// recording that never contained speech must be discarded by the caller, not
// transcribed — and must never be conflated with a device failure, which is
// reported as an error instead.
type Result struct {
	// PCM is the accumulated raw audio, including silence frames — natural
	// pauses are part of the recording.
	PCM []byte

	// HasSpeech reports whether speech was ever detected.
	HasSpeech bool

	// Frames is the number of fixed-size frames processed.
	Frames int

	// Reason explains what ended the recording.
	Reason Reason

	// Duration is the wall-clock length of the recording.
	Duration time.Duration
}

// Source is a live PCM stream plus its native sample rate. *audio.Capture
// satisfies it.
type Source interface {
	io.Reader
	Rate() int
}

// Sink receives outbound channel events. A nil Sink discards them; the loop
// neither knows nor cares whether anyone is listening.
type Sink func(event any)

// Config parameterises one recording.
type Config struct {
	// SampleRate is the internal rate in Hz. Zero means audio.DefaultSampleRate.
	SampleRate int

	// FrameSamples is the VAD frame length. Zero means audio.FrameSamples.
	FrameSamples int

	// SilenceMode selects the auto-stop threshold. Invalid or empty means
	// standard.
	SilenceMode SilenceMode

	// Deadline is the wall-clock limit, clamped via [ClampDeadline].
	Deadline time.Duration

	// PushToTalk disables silence-based auto-stop entirely: only the stop
	// signal or the deadline can end the recording.
	PushToTalk bool

	// StopRaised is polled for the external cooperative stop. Nil means the
	// signal never fires. It is only honoured once speech has been detected,
	// so a stray pre-existing marker cannot end a recording before it starts.
	StopRaised func() bool

	// Sink receives state/speech/audio_level events.
	Sink Sink
}

// Recorder drives the capture loop for a single recording. Create one per
// recording attempt with New; not safe for concurrent use.
type Recorder struct {
	vad vad.Session
	cfg Config

	state         State
	hasSpeech     bool
	consecSilence int
}

// New creates a Recorder using the given VAD session. The session's state is
// reset at the start of Run, never trusted from a prior recording.
func New(session vad.Session, cfg Config) *Recorder {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.DefaultSampleRate
	}
	if cfg.FrameSamples <= 0 {
		cfg.FrameSamples = audio.FrameSamples
	}
	if !cfg.SilenceMode.IsValid() {
		cfg.SilenceMode = SilenceStandard
	}
	cfg.Deadline = ClampDeadline(cfg.Deadline)
	if cfg.StopRaised == nil {
		cfg.StopRaised = func() bool { return false }
	}
	if cfg.Sink == nil {
		cfg.Sink = func(any) {}
	}
	return &Recorder{vad: session, cfg: cfg, state: StateIdle}
}

// levelEveryFrames is the cadence of audio_level events (~100 ms at 32 ms
// frames).
const levelEveryFrames = 3

// stopPollInterval bounds how stale the stop-signal check can get when the
// capture stream stalls and no frames arrive to trigger the per-frame check.
const stopPollInterval = 100 * time.Millisecond

// Run executes the recording loop until a finish condition fires or ctx is
// cancelled. Frames are read from src (resampled to the internal rate when
// the native rate differs), classified, and always appended to the buffer —
// silence frames included.
//
// On ctx cancellation the attempt is aborted and ctx.Err() returned; the
// caller must not treat that as "no speech".
func (r *Recorder) Run(ctx context.Context, src Source) (*Result, error) {
	r.vad.Reset()
	r.state = StateListening
	r.hasSpeech = false
	r.consecSilence = 0

	mode := "vad"
	silenceName := string(r.cfg.SilenceMode)
	if r.cfg.PushToTalk {
		mode = "push_to_talk"
		silenceName = ""
	}
	r.cfg.Sink(channel.StateEvent{
		Type:        channel.TypeState,
		State:       channel.StateRecording,
		Mode:        mode,
		SilenceMode: silenceName,
	})

	silenceFrames := SilenceFrames(r.cfg.SilenceMode, r.cfg.SampleRate, r.cfg.FrameSamples)
	slog.Debug("recording started",
		"mode", mode,
		"silence_mode", r.cfg.SilenceMode,
		"silence_frames", silenceFrames,
		"deadline", r.cfg.Deadline,
		"source_rate", src.Rate(),
	)

	start := time.Now()
	deadline := time.NewTimer(r.cfg.Deadline)
	defer deadline.Stop()
	stopTick := time.NewTicker(stopPollInterval)
	defer stopTick.Stop()

	reads := make(chan []byte, 4)
	readErr := make(chan error, 1)
	go readStream(ctx, src, reads, readErr)

	chunker := audio.NewChunker(r.cfg.FrameSamples * 2)
	var buf []byte
	frames := 0

	finish := func(reason Reason) (*Result, error) {
		r.state = StateFinishing
		slog.Info("recording finished",
			"reason", reason,
			"frames", frames,
			"has_speech", r.hasSpeech,
			"duration", time.Since(start).Round(time.Millisecond),
		)
		r.state = StateIdle
		return &Result{
			PCM:       buf,
			HasSpeech: r.hasSpeech,
			Frames:    frames,
			Reason:    reason,
			Duration:  time.Since(start),
		}, nil
	}

	for {
		select {
		case <-ctx.Done():
			r.state = StateAborted
			return nil, ctx.Err()

		case <-deadline.C:
			return finish(ReasonDeadline)

		case <-stopTick.C:
			// Catches a stop raised while the capture stream is stalled; the
			// per-frame check below covers the normal path.
			if r.hasSpeech && r.cfg.StopRaised() {
				return finish(ReasonStopSignal)
			}

		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				return finish(ReasonStreamEnded)
			}
			r.state = StateAborted
			return nil, fmt.Errorf("record: capture stream: %w", err)

		case chunk := <-reads:
			if src.Rate() != r.cfg.SampleRate {
				chunk = audio.ResampleMono16(chunk, src.Rate(), r.cfg.SampleRate)
			}
			for _, frame := range chunker.Push(chunk) {
				done, reason, err := r.processFrame(frame, &buf, &frames, silenceFrames)
				if err != nil {
					r.state = StateAborted
					return nil, err
				}
				if done {
					return finish(reason)
				}
			}
		}
	}
}

// processFrame runs one frame through classification and bookkeeping, then
// evaluates the finish conditions in priority order: stop signal, silence
// timeout, (the wall-clock deadline is handled by the outer select).
func (r *Recorder) processFrame(frame []byte, buf *[]byte, frames *int, silenceFrames int) (bool, Reason, error) {
	res, err := r.vad.Classify(frame)
	if err != nil {
		return false, "", fmt.Errorf("record: classify frame: %w", err)
	}

	if res.Speech {
		r.consecSilence = 0
		if r.state != StateSpeechDetected {
			r.state = StateSpeechDetected
			r.cfg.Sink(channel.NewSpeechEvent(true))
		}
		r.hasSpeech = true
	} else {
		r.consecSilence++
		if r.state == StateSpeechDetected {
			r.state = StateSilence
			r.cfg.Sink(channel.NewSpeechEvent(false))
		}
	}

	// Silence frames are part of the recording — downstream transcription
	// needs the natural pauses.
	*buf = append(*buf, frame...)
	*frames++

	if *frames%levelEveryFrames == 0 {
		r.cfg.Sink(channel.NewAudioLevelEvent(audio.RMS(frame)))
	}

	if r.hasSpeech && r.cfg.StopRaised() {
		return true, ReasonStopSignal, nil
	}
	if !r.cfg.PushToTalk && r.hasSpeech && r.consecSilence >= silenceFrames {
		return true, ReasonSilence, nil
	}
	return false, "", nil
}

// readStream pumps raw chunks from src until EOF, read error, or ctx
// cancellation. Each chunk is freshly allocated because the consumer outlives
// the next Read.
func readStream(ctx context.Context, src Source, reads chan<- []byte, readErr chan<- error) {
	for {
		p := make([]byte, 4096)
		n, err := src.Read(p)
		if n > 0 {
			select {
			case reads <- p[:n]:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			select {
			case readErr <- err:
			case <-ctx.Done():
			}
			return
		}
	}
}
