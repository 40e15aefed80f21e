package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voicewire/voicewire/pkg/provider/stt"
)

// TestNew_RequiresAPIKey checks that a missing API key is rejected.
func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New("")
	if err == nil {
		t.Fatal("expected error for empty apiKey, got nil")
	}
}

// TestNew_DefaultModel checks that whisper-1 is the default model.
func TestNew_DefaultModel(t *testing.T) {
	tr, err := New("sk-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.model != defaultModel {
		t.Errorf("expected model %s, got %s", defaultModel, tr.model)
	}
}

// TestNew_WithModel checks that the model override is applied.
func TestNew_WithModel(t *testing.T) {
	tr, err := New("sk-test", WithModel("gpt-4o-transcribe"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(tr.model) != "gpt-4o-transcribe" {
		t.Errorf("expected model gpt-4o-transcribe, got %s", tr.model)
	}
}

// TestTranscribe_UploadsWAV checks the request shape and response handling
// against a fake API server.
func TestTranscribe_UploadsWAV(t *testing.T) {
	var gotPath string
	var gotAuth string
	var gotModel string
	var gotLanguage string
	var gotWAVLen int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart form: %v", err)
			return
		}
		gotModel = r.FormValue("model")
		gotLanguage = r.FormValue("language")

		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		gotWAVLen = len(data)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"text": "guten tag"})
	}))
	defer srv.Close()

	tr, err := New("sk-test", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pcm := make([]byte, 2048)
	res, err := tr.Transcribe(context.Background(), pcm, stt.Config{Language: "de"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/audio/transcriptions" {
		t.Errorf("expected path /audio/transcriptions, got %s", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	if gotModel != string(defaultModel) {
		t.Errorf("expected model %s, got %s", defaultModel, gotModel)
	}
	if gotLanguage != "de" {
		t.Errorf("expected language de, got %s", gotLanguage)
	}
	if gotWAVLen != 44+len(pcm) {
		t.Errorf("expected WAV upload of %d bytes, got %d", 44+len(pcm), gotWAVLen)
	}
	if res.Text != "guten tag" {
		t.Errorf("expected text %q, got %q", "guten tag", res.Text)
	}
}

// TestTranscribe_APIError checks that API errors are surfaced.
func TestTranscribe_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "invalid api key"},
		})
	}))
	defer srv.Close()

	tr, err := New("sk-bad", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := tr.Transcribe(context.Background(), make([]byte, 64), stt.Config{}); err == nil {
		t.Fatal("expected error from API, got nil")
	}
}
