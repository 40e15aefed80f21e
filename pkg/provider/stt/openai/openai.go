// Package openai provides a cloud STT transcriber backed by the OpenAI
// audio transcriptions API.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/voicewire/voicewire/pkg/audio"
	"github.com/voicewire/voicewire/pkg/provider/stt"
)

const defaultModel = oai.AudioModelWhisper1

// Compile-time interface assertion.
var _ stt.Transcriber = (*Transcriber)(nil)

// Transcriber implements stt.Transcriber using the OpenAI API.
type Transcriber struct {
	client oai.Client
	model  oai.AudioModel
}

// config holds optional configuration for the transcriber.
type config struct {
	baseURL string
	model   string
	timeout time.Duration
}

// Option is a functional option for Transcriber.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL. This also enables
// routing to OpenAI-compatible gateways.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithModel overrides the transcription model. Defaults to whisper-1.
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI Transcriber.
func New(apiKey string, opts ...Option) (*Transcriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	model := oai.AudioModel(cfg.model)
	if model == "" {
		model = defaultModel
	}

	client := oai.NewClient(reqOpts...)
	return &Transcriber{client: client, model: model}, nil
}

// Transcribe implements stt.Transcriber. The raw PCM recording is wrapped in
// a WAV container and uploaded in a single request.
func (t *Transcriber) Transcribe(ctx context.Context, pcm []byte, cfg stt.Config) (stt.Result, error) {
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = audio.DefaultSampleRate
	}

	start := time.Now()
	wav := audio.EncodeWAV(pcm, rate)

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
		Model: t.model,
	}
	if cfg.Language != "" {
		params.Language = param.NewOpt(cfg.Language)
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return stt.Result{}, fmt.Errorf("openai: transcription: %w", err)
	}

	return stt.Result{
		Text:     resp.Text,
		Language: cfg.Language,
		Duration: time.Since(start),
	}, nil
}
