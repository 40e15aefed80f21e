package daemon

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voicewire/voicewire/pkg/provider/tts"
)

func TestNew_RequiresURL(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("err = nil, want error for empty daemonURL")
	}
}

func TestSynthesize_RoundTrip(t *testing.T) {
	mp3 := []byte{0xFF, 0xFB, 0x90, 0x00, 0x01, 0x02}

	var gotReq synthesizeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/synthesize" {
			t.Errorf("path = %q, want /synthesize", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(synthesizeResponse{
			AudioB64:   base64.StdEncoding.EncodeToString(mp3),
			DurationMS: 312.5,
		})
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithVoice("/ref/voice.wav", "hello reference"))
	if err != nil {
		t.Fatal(err)
	}

	audio, err := c.Synthesize(context.Background(), "good morning", tts.Options{})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if gotReq.Text != "good morning" {
		t.Errorf("text = %q, want %q", gotReq.Text, "good morning")
	}
	if gotReq.ReferenceWAV != "/ref/voice.wav" {
		t.Errorf("reference_wav = %q, want default voice", gotReq.ReferenceWAV)
	}
	if gotReq.ReferenceText != "hello reference" {
		t.Errorf("reference_text = %q, want default transcript", gotReq.ReferenceText)
	}
	if string(audio.Data) != string(mp3) {
		t.Errorf("audio data = %v, want %v", audio.Data, mp3)
	}
	if audio.Format != tts.FormatMP3 {
		t.Errorf("format = %q, want %q", audio.Format, tts.FormatMP3)
	}
	if audio.DurationMS != 312.5 {
		t.Errorf("duration = %v, want 312.5", audio.DurationMS)
	}
}

func TestSynthesize_PerRequestVoiceOverride(t *testing.T) {
	var gotReq synthesizeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(synthesizeResponse{
			AudioB64: base64.StdEncoding.EncodeToString([]byte{1}),
		})
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithVoice("/default.wav", "default"))
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Synthesize(context.Background(), "hi", tts.Options{
		ReferenceWAV:  "/other.wav",
		ReferenceText: "other",
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if gotReq.ReferenceWAV != "/other.wav" || gotReq.ReferenceText != "other" {
		t.Errorf("got reference %q/%q, want per-request override", gotReq.ReferenceWAV, gotReq.ReferenceText)
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	c, err := New("http://127.0.0.1:1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Synthesize(context.Background(), "   ", tts.Options{}); err == nil {
		t.Error("err = nil, want error for blank text")
	}
}

func TestSynthesize_DaemonError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Model not loaded. Check daemon logs.", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Synthesize(context.Background(), "hi", tts.Options{}); err == nil {
		t.Error("err = nil, want error for 503")
	}
}

func TestHealth_ModelLoaded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %q, want /health", r.URL.Path)
		}
		json.NewEncoder(w).Encode(healthResponse{Status: "ok", ModelLoaded: true})
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Health(context.Background()); err != nil {
		t.Errorf("Health: %v, want nil", err)
	}
}

func TestHealth_ModelMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(healthResponse{Status: "no_model", ModelLoaded: false})
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Health(context.Background()); err == nil {
		t.Error("Health = nil, want error when model not loaded")
	}
}

func TestHealth_Unreachable(t *testing.T) {
	c, err := New("http://127.0.0.1:1")
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Health(context.Background()); err == nil {
		t.Error("Health = nil, want error for unreachable daemon")
	}
}
