package silero

import (
	"errors"
	"testing"

	"github.com/voicewire/voicewire/pkg/provider/vad"
)

func TestNew_MissingArtifactIsInitFailure(t *testing.T) {
	_, err := New("/nonexistent/silero_vad.onnx")
	if !errors.Is(err, vad.ErrInit) {
		t.Errorf("err = %v, want vad.ErrInit", err)
	}
}

func TestNativeFrameSamples(t *testing.T) {
	tests := []struct {
		rate   int
		want   int
		wantOK bool
	}{
		{16000, 512, true},
		{8000, 256, true},
		{44100, 0, false},
		{0, 0, false},
	}
	for _, tt := range tests {
		got, ok := nativeFrameSamples(tt.rate)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("nativeFrameSamples(%d) = (%d, %v), want (%d, %v)", tt.rate, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestNewSession_RejectsUnsupportedConfig(t *testing.T) {
	// Construct the engine directly: config validation happens before any
	// runtime resources are touched.
	e := &Engine{modelPath: "unused.onnx"}

	if _, err := e.NewSession(vad.Config{SampleRate: 44100}); err == nil {
		t.Error("44100 Hz: err = nil, want unsupported sample rate error")
	}
	if _, err := e.NewSession(vad.Config{SampleRate: 16000, FrameSamples: 480}); err == nil {
		t.Error("480-sample frame: err = nil, want frame size error")
	}
	if _, err := e.NewSession(vad.Config{SampleRate: 16000, SpeechThreshold: 1.5}); err == nil {
		t.Error("threshold 1.5: err = nil, want range error")
	}
}
