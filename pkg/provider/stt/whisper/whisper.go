// Package whisper provides local whisper.cpp-backed STT transcribers.
//
// Two variants are available:
//
//   - [Server], which POSTs each recording to a running whisper-server binary
//     (REST API at POST /inference) as multipart WAV.
//   - [Native], which loads a ggml model through the whisper.cpp CGO bindings
//     and runs inference in-process. The whisper.cpp static library
//     (libwhisper.a) and headers must be available at link time via
//     LIBRARY_PATH and C_INCLUDE_PATH.
//
// Both are batch engines: voicewire hands over one finished recording at a
// time, so no streaming segmentation is needed here.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/voicewire/voicewire/pkg/audio"
	"github.com/voicewire/voicewire/pkg/provider/stt"
)

const defaultLanguage = "en"

// Compile-time interface assertion.
var _ stt.Transcriber = (*Server)(nil)

// ServerOption is a functional option for configuring a Server.
type ServerOption func(*Server)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with — this is the default.
func WithModel(model string) ServerOption {
	return func(s *Server) { s.model = model }
}

// WithLanguage sets the language code sent to the server. Defaults to "en".
func WithLanguage(lang string) ServerOption {
	return func(s *Server) { s.language = lang }
}

// WithHTTPClient replaces the HTTP client. Used by tests.
func WithHTTPClient(c *http.Client) ServerOption {
	return func(s *Server) { s.httpClient = c }
}

// Server implements stt.Transcriber against a whisper.cpp HTTP server.
type Server struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// NewServer creates a Server targeting the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func NewServer(serverURL string, opts ...ServerOption) (*Server, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	s := &Server{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// inferenceResponse is the subset of the whisper-server response we consume.
type inferenceResponse struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}

// Transcribe encodes pcm as WAV and POSTs it to /inference as
// multipart/form-data.
func (s *Server) Transcribe(ctx context.Context, pcm []byte, cfg stt.Config) (stt.Result, error) {
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = audio.DefaultSampleRate
	}
	lang := cfg.Language
	if lang == "" {
		lang = s.language
	}

	start := time.Now()
	wav := audio.EncodeWAV(pcm, rate)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: write wav data: %w", err)
	}
	if lang != "" {
		if err := mw.WriteField("language", lang); err != nil {
			return stt.Result{}, fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if s.model != "" {
		if err := mw.WriteField("model", s.model); err != nil {
			return stt.Result{}, fmt.Errorf("whisper: write model field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serverURL+"/inference", &body)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return stt.Result{}, fmt.Errorf("whisper: server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var ir inferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: decode response: %w", err)
	}
	if ir.Error != "" {
		return stt.Result{}, fmt.Errorf("whisper: server error: %s", ir.Error)
	}

	return stt.Result{
		Text:     strings.TrimSpace(ir.Text),
		Language: lang,
		Duration: time.Since(start),
	}, nil
}
