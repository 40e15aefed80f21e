package channel

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func boolPtr(b bool) *bool { return &b }

func TestParseCommand_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
	}{
		{"stop", Command{Cmd: CmdStop}},
		{"cancel", Command{Cmd: CmdCancel}},
		{"replay", Command{Cmd: CmdReplay}},
		{"toggle mic off", Command{Cmd: CmdToggle, Scope: ScopeMic, Enabled: boolPtr(false)}},
		{"toggle all on", Command{Cmd: CmdToggle, Scope: ScopeAll, Enabled: boolPtr(true)}},
		{"record", Command{Cmd: CmdRecord, TimeoutSeconds: 30, SilenceMode: "thoughtful", PressToTalk: false}},
		{"record ptt", Command{Cmd: CmdRecord, TimeoutSeconds: 60, SilenceMode: "quick", PressToTalk: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, err := json.Marshal(tt.cmd)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			got, err := ParseCommand(line)
			if err != nil {
				t.Fatalf("ParseCommand: %v", err)
			}
			if !reflect.DeepEqual(got, tt.cmd) {
				t.Errorf("round trip = %+v, want %+v", got, tt.cmd)
			}
		})
	}
}

func TestParseCommand_MalformedNeverPanics(t *testing.T) {
	lines := []string{
		"",
		"{",
		"not json at all",
		`{"cmd":}`,
		`{"cmd":"self_destruct"}`,
		`{"type":"state"}`,
		`{"cmd":"record","timeout_seconds":"thirty"}`,
	}
	for _, line := range lines {
		if _, err := ParseCommand([]byte(line)); err == nil {
			t.Errorf("ParseCommand(%q) = nil error, want invalid", line)
		}
	}
}

func TestRecordTimeout_Clamp(t *testing.T) {
	tests := []struct {
		sec  int
		want time.Duration
	}{
		{0, 0}, // zero means caller default
		{1, 5 * time.Second},
		{5, 5 * time.Second},
		{30, 30 * time.Second},
		{300, 300 * time.Second},
		{9999, 300 * time.Second},
	}
	for _, tt := range tests {
		got := Command{Cmd: CmdRecord, TimeoutSeconds: tt.sec}.RecordTimeout()
		if got != tt.want {
			t.Errorf("RecordTimeout(%d) = %v, want %v", tt.sec, got, tt.want)
		}
	}
}

func TestEventWireShapes(t *testing.T) {
	tests := []struct {
		name  string
		event any
		want  string
	}{
		{
			"recording state",
			StateEvent{Type: TypeState, State: StateRecording, Mode: "vad", SilenceMode: "standard"},
			`{"type":"state","state":"recording","mode":"vad","silence_mode":"standard"}`,
		},
		{
			"idle state omits optionals",
			NewStateEvent(StateIdle),
			`{"type":"state","state":"idle"}`,
		},
		{
			"speech detected false still present",
			NewSpeechEvent(false),
			`{"type":"speech","detected":false}`,
		},
		{
			"transcription",
			NewTranscriptionEvent("hello", false),
			`{"type":"transcription","text":"hello","partial":false}`,
		},
		{
			"audio level",
			NewAudioLevelEvent(0.42),
			`{"type":"audio_level","rms":0.42}`,
		},
		{
			"error",
			NewErrorEvent("mic unavailable", true),
			`{"type":"error","message":"mic unavailable","recoverable":true}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.event)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("wire = %s, want %s", got, tt.want)
			}
		})
	}
}
