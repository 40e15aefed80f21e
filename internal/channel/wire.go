// Package channel implements the local event/command channel between the
// voicewire core and a single observer process.
//
// Transport is a unix domain socket carrying newline-delimited JSON: each
// event or command is one JSON object followed by a single newline. The core
// is deliberately the *client* of a long-lived server owned by the observer,
// so the observer UI survives many short-lived core invocations. Delivery is
// best-effort — Broadcast never blocks the recording loop and never fails it.
package channel

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event type discriminators, carried in the "type" field of outbound events.
const (
	TypeState         = "state"
	TypeSpeech        = "speech"
	TypeTranscription = "transcription"
	TypeAudioLevel    = "audio_level"
	TypeError         = "error"
)

// Session states reported in StateEvent. "speaking" means TTS playback is in
// progress; the remaining states mirror the recording lifecycle.
const (
	StateIdle         = "idle"
	StateSpeaking     = "speaking"
	StateRecording    = "recording"
	StateTranscribing = "transcribing"
)

// StateEvent reports a session lifecycle transition. Mode, SilenceMode, and
// Text are mode-specific and omitted when empty; fields are additive so older
// observers keep working.
type StateEvent struct {
	Type        string `json:"type"`
	State       string `json:"state"`
	Mode        string `json:"mode,omitempty"`
	SilenceMode string `json:"silence_mode,omitempty"`
	Text        string `json:"text,omitempty"`
}

// NewStateEvent builds a StateEvent for the given lifecycle state.
func NewStateEvent(state string) StateEvent {
	return StateEvent{Type: TypeState, State: state}
}

// SpeechEvent toggles the observer's speech-detected indicator.
type SpeechEvent struct {
	Type     string `json:"type"`
	Detected bool   `json:"detected"`
}

// NewSpeechEvent builds a SpeechEvent.
func NewSpeechEvent(detected bool) SpeechEvent {
	return SpeechEvent{Type: TypeSpeech, Detected: detected}
}

// TranscriptionEvent carries transcribed text; Partial marks streaming
// interim results.
type TranscriptionEvent struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Partial bool   `json:"partial"`
}

// NewTranscriptionEvent builds a TranscriptionEvent.
func NewTranscriptionEvent(text string, partial bool) TranscriptionEvent {
	return TranscriptionEvent{Type: TypeTranscription, Text: text, Partial: partial}
}

// AudioLevelEvent carries the current input level for visualisation.
type AudioLevelEvent struct {
	Type string  `json:"type"`
	RMS  float64 `json:"rms"`
}

// NewAudioLevelEvent builds an AudioLevelEvent for a normalised [0, 1] level.
func NewAudioLevelEvent(rms float64) AudioLevelEvent {
	return AudioLevelEvent{Type: TypeAudioLevel, RMS: rms}
}

// ErrorEvent reports a failure to the observer. Recoverable tells the UI
// whether the session may continue.
type ErrorEvent struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

// NewErrorEvent builds an ErrorEvent.
func NewErrorEvent(message string, recoverable bool) ErrorEvent {
	return ErrorEvent{Type: TypeError, Message: message, Recoverable: recoverable}
}

// Command names, carried in the "cmd" field of inbound commands.
const (
	CmdStop   = "stop"
	CmdCancel = "cancel"
	CmdReplay = "replay"
	CmdToggle = "toggle"
	CmdRecord = "record"
)

// Toggle scopes.
const (
	ScopeAll = "all"
	ScopeTTS = "tts"
	ScopeMic = "mic"
)

// Record-command timeout bounds in seconds.
const (
	minRecordTimeoutSec = 5
	maxRecordTimeoutSec = 300
)

// Command is an inbound control message from the observer. One struct covers
// every command variant; fields irrelevant to a given Cmd are zero and
// omitted on the wire.
type Command struct {
	Cmd string `json:"cmd"`

	// Scope and Enabled apply to the toggle command.
	Scope   string `json:"scope,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`

	// TimeoutSeconds, SilenceMode, and PressToTalk apply to the record command.
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	SilenceMode    string `json:"silence_mode,omitempty"`
	PressToTalk    bool   `json:"press_to_talk,omitempty"`
}

// RecordTimeout returns the requested recording deadline clamped to the
// allowed [5 s, 300 s] range. A zero TimeoutSeconds means "use the default"
// and returns 0.
func (c Command) RecordTimeout() time.Duration {
	if c.TimeoutSeconds == 0 {
		return 0
	}
	sec := c.TimeoutSeconds
	if sec < minRecordTimeoutSec {
		sec = minRecordTimeoutSec
	}
	if sec > maxRecordTimeoutSec {
		sec = maxRecordTimeoutSec
	}
	return time.Duration(sec) * time.Second
}

// ParseCommand decodes one NDJSON line into a Command. Returns an error for
// malformed JSON or an unrecognised command name; callers drop such lines
// with a logged warning rather than failing the channel.
func ParseCommand(line []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(line, &c); err != nil {
		return Command{}, fmt.Errorf("channel: malformed command line: %w", err)
	}
	switch c.Cmd {
	case CmdStop, CmdCancel, CmdReplay, CmdToggle, CmdRecord:
		return c, nil
	}
	return Command{}, fmt.Errorf("channel: unknown command %q", c.Cmd)
}
