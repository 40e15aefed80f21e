// Package daemon provides a tts.Synthesizer backed by the local synthesis
// daemon's REST API.
//
// The daemon is a separate long-running process that keeps the TTS model hot
// in memory. Two endpoints are consumed:
//
//   - POST /synthesize with a JSON body {text, reference_wav, reference_text},
//     returning {audio_b64, duration_ms} where audio_b64 is base64-encoded MP3.
//   - GET /health, returning {status, model_loaded, ...}.
package daemon

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/voicewire/voicewire/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Synthesizer = (*Client)(nil)

const (
	synthesizeEndpoint = "/synthesize"
	healthEndpoint     = "/health"

	defaultTimeout = 30 * time.Second
)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the HTTP client. Used by tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithVoice sets the default reference recording used when a Synthesize call
// does not carry its own.
func WithVoice(referenceWAV, referenceText string) Option {
	return func(c *Client) {
		c.referenceWAV = referenceWAV
		c.referenceText = referenceText
	}
}

// Client implements tts.Synthesizer against a running synthesis daemon.
// It is safe for concurrent use.
type Client struct {
	daemonURL     string
	referenceWAV  string
	referenceText string
	httpClient    *http.Client
}

// New creates a Client targeting the daemon at daemonURL (e.g.,
// "http://127.0.0.1:8880"). daemonURL must be non-empty.
func New(daemonURL string, opts ...Option) (*Client, error) {
	if daemonURL == "" {
		return nil, errors.New("daemon: daemonURL must not be empty")
	}
	c := &Client{
		daemonURL: strings.TrimRight(daemonURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// synthesizeRequest is the JSON body sent to POST /synthesize.
type synthesizeRequest struct {
	Text          string `json:"text"`
	ReferenceWAV  string `json:"reference_wav"`
	ReferenceText string `json:"reference_text"`
}

// synthesizeResponse is the JSON body returned by POST /synthesize.
type synthesizeResponse struct {
	AudioB64   string  `json:"audio_b64"`
	DurationMS float64 `json:"duration_ms"`
}

// healthResponse is the JSON body returned by GET /health.
type healthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

// Synthesize implements tts.Synthesizer. The daemon returns MP3 audio.
func (c *Client) Synthesize(ctx context.Context, text string, opts tts.Options) (tts.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return tts.Audio{}, errors.New("daemon: text must not be empty")
	}

	refWAV := opts.ReferenceWAV
	refText := opts.ReferenceText
	if refWAV == "" {
		refWAV = c.referenceWAV
		refText = c.referenceText
	}

	body := synthesizeRequest{
		Text:          text,
		ReferenceWAV:  refWAV,
		ReferenceText: refText,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return tts.Audio{}, fmt.Errorf("daemon: marshal synthesize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.daemonURL+synthesizeEndpoint, bytes.NewReader(data))
	if err != nil {
		return tts.Audio{}, fmt.Errorf("daemon: create synthesize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return tts.Audio{}, fmt.Errorf("daemon: POST %s: %w", synthesizeEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return tts.Audio{}, fmt.Errorf("daemon: POST %s returned %d: %s",
			synthesizeEndpoint, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var sr synthesizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return tts.Audio{}, fmt.Errorf("daemon: decode synthesize response: %w", err)
	}

	audio, err := base64.StdEncoding.DecodeString(sr.AudioB64)
	if err != nil {
		return tts.Audio{}, fmt.Errorf("daemon: decode audio payload: %w", err)
	}
	if len(audio) == 0 {
		return tts.Audio{}, errors.New("daemon: synthesize response carried no audio")
	}

	return tts.Audio{
		Data:       audio,
		Format:     tts.FormatMP3,
		DurationMS: sr.DurationMS,
	}, nil
}

// Health implements tts.Synthesizer. It reports an error when the daemon is
// unreachable or its model is not loaded.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.daemonURL+healthEndpoint, nil)
	if err != nil {
		return fmt.Errorf("daemon: create health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("daemon: GET %s: %w", healthEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon: GET %s returned status %d", healthEndpoint, resp.StatusCode)
	}

	var hr healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&hr); err != nil {
		return fmt.Errorf("daemon: decode health response: %w", err)
	}
	if !hr.ModelLoaded {
		return fmt.Errorf("daemon: model not loaded (status %q)", hr.Status)
	}
	return nil
}
