package whisper

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/voicewire/voicewire/pkg/provider/stt"
)

func TestServer_TranscribePostsMultipartWAV(t *testing.T) {
	var gotPath string
	var gotWAVLen int
	var gotLanguage string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path

		mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mt != "multipart/form-data" {
			t.Errorf("content type = %q, want multipart/form-data", r.Header.Get("Content-Type"))
		}
		mr, err := r.MultipartReader()
		if err != nil {
			t.Errorf("MultipartReader: %v", err)
			return
		}
		for {
			part, err := mr.NextPart()
			if err != nil {
				break
			}
			data, _ := io.ReadAll(part)
			switch part.FormName() {
			case "file":
				gotWAVLen = len(data)
			case "language":
				gotLanguage = string(data)
			}
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "  hello world \n"})
	}))
	defer srv.Close()

	s, err := NewServer(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	pcm := make([]byte, 1024)
	res, err := s.Transcribe(context.Background(), pcm, stt.Config{Language: "de"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if gotPath != "/inference" {
		t.Errorf("path = %q, want /inference", gotPath)
	}
	if gotWAVLen != 44+len(pcm) {
		t.Errorf("wav length = %d, want %d", gotWAVLen, 44+len(pcm))
	}
	if gotLanguage != "de" {
		t.Errorf("language field = %q, want de", gotLanguage)
	}
	if res.Text != "hello world" {
		t.Errorf("text = %q, want %q (must be trimmed)", res.Text, "hello world")
	}
}

func TestServer_TranscribeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s, err := NewServer(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.Transcribe(context.Background(), make([]byte, 64), stt.Config{})
	if err == nil {
		t.Fatal("err = nil, want server error")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("err = %v, want status code in message", err)
	}
}

func TestServer_TranscribeErrorField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"error": "no audio"})
	}))
	defer srv.Close()

	s, err := NewServer(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Transcribe(context.Background(), make([]byte, 64), stt.Config{}); err == nil {
		t.Error("err = nil, want server-reported error")
	}
}

func TestNewServer_RequiresURL(t *testing.T) {
	if _, err := NewServer(""); err == nil {
		t.Error("err = nil, want error for empty serverURL")
	}
}

func TestPCMToFloat32(t *testing.T) {
	pcm := []byte{0x00, 0x00, 0xFF, 0x7F, 0x00, 0x80}
	got := pcmToFloat32(pcm)
	if len(got) != 3 {
		t.Fatalf("samples = %d, want 3", len(got))
	}
	if got[0] != 0 {
		t.Errorf("sample 0 = %v, want 0", got[0])
	}
	if got[1] < 0.999 || got[1] > 1.0 {
		t.Errorf("sample 1 = %v, want ≈1.0", got[1])
	}
	if got[2] != -1.0 {
		t.Errorf("sample 2 = %v, want -1.0", got[2])
	}
}
