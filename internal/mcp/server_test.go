package mcp

import (
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/voicewire/voicewire/internal/app"
	"github.com/voicewire/voicewire/internal/config"
	"github.com/voicewire/voicewire/internal/observe"
	"github.com/voicewire/voicewire/internal/record"
	"github.com/voicewire/voicewire/pkg/audio"
	"github.com/voicewire/voicewire/pkg/provider/stt"
	sttmock "github.com/voicewire/voicewire/pkg/provider/stt/mock"
	"github.com/voicewire/voicewire/pkg/provider/tts"
	ttsmock "github.com/voicewire/voicewire/pkg/provider/tts/mock"
	"github.com/voicewire/voicewire/pkg/provider/vad"
	vadmock "github.com/voicewire/voicewire/pkg/provider/vad/mock"
)

type pcmSource struct {
	data []byte
	pos  int
}

func (s *pcmSource) Read(p []byte) (int, error) {
	if s.pos >= len(s.data) {
		return 0, io.EOF
	}
	n := copy(p, s.data[s.pos:])
	s.pos += n
	return n, nil
}

func (s *pcmSource) Rate() int { return audio.DefaultSampleRate }

type harness struct {
	tts    *ttsmock.Synthesizer
	played int
}

// connect builds a full voice server from test doubles and returns a client
// session speaking to it over in-memory transports.
func connect(t *testing.T, transcript string) (*mcpsdk.ClientSession, *harness) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.Socket = filepath.Join(dir, "voicewire.sock")
	cfg.Paths.Lock = filepath.Join(dir, "voicewire.lock")
	cfg.Paths.Stop = filepath.Join(dir, "voicewire.stop")
	cfg.Paths.Discovery = filepath.Join(dir, "session.json")

	h := &harness{
		tts: &ttsmock.Synthesizer{Audio: tts.Audio{Data: []byte("mp3"), Format: tts.FormatMP3}},
	}

	metrics, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	vadSess := &vadmock.Session{Results: []vad.Result{
		{Probability: 0.9, Speech: true},
		{Probability: 0.9, Speech: true},
		{Probability: 0.1},
	}}

	session, err := app.New(cfg, "mcp-test",
		app.WithVAD(&vadmock.Engine{Session: vadSess}),
		app.WithTranscriber(&sttmock.Transcriber{Results: []stt.Result{{Text: transcript}}}),
		app.WithSynthesizer(h.tts),
		app.WithCapture(func(context.Context) (record.Source, error) {
			return &pcmSource{data: make([]byte, 2*audio.FrameBytes)}, nil
		}),
		app.WithPlayer(func(context.Context, tts.Audio) error {
			h.played++
			return nil
		}),
		app.WithBroadcast(func(any) {}),
		app.WithMetrics(metrics),
	)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}

	srv := NewServer(session, "test")
	serverT, clientT := mcpsdk.NewInMemoryTransports()

	ctx := context.Background()
	if _, err := srv.srv.Connect(ctx, serverT, nil); err != nil {
		t.Fatalf("server connect: %v", err)
	}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "test"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = cs.Close() })

	return cs, h
}

func textContent(t *testing.T, res *mcpsdk.CallToolResult) string {
	t.Helper()
	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}

func TestListTools(t *testing.T) {
	cs, _ := connect(t, "")

	var names []string
	for tool, err := range cs.Tools(context.Background(), nil) {
		if err != nil {
			t.Fatalf("list tools: %v", err)
		}
		names = append(names, tool.Name)
	}

	want := map[string]bool{"voice_listen": false, "voice_speak": false, "voice_status": false}
	for _, n := range names {
		if _, ok := want[n]; ok {
			want[n] = true
		}
	}
	for n, seen := range want {
		if !seen {
			t.Errorf("tool %q not advertised (got %v)", n, names)
		}
	}
}

func TestVoiceListen_ReturnsTranscript(t *testing.T) {
	cs, _ := connect(t, "open the pod bay doors")

	res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      "voice_listen",
		Arguments: map[string]any{"silence_mode": "standard"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", textContent(t, res))
	}

	var out ListenResult
	if err := json.Unmarshal([]byte(textContent(t, res)), &out); err != nil {
		t.Fatalf("unmarshal output %q: %v", textContent(t, res), err)
	}
	if out.Text != "open the pod bay doors" {
		t.Errorf("text = %q, want %q", out.Text, "open the pod bay doors")
	}
	if out.NoSpeech {
		t.Error("no_speech = true, want false")
	}
	if out.Reason != string(record.ReasonStreamEnded) {
		t.Errorf("reason = %q, want %q", out.Reason, record.ReasonStreamEnded)
	}
}

func TestVoiceListen_RejectsUnknownSilenceMode(t *testing.T) {
	cs, _ := connect(t, "")

	res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      "voice_listen",
		Arguments: map[string]any{"silence_mode": "glacial"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected tool error for unknown silence mode")
	}
	if msg := textContent(t, res); !strings.Contains(msg, "glacial") {
		t.Errorf("error %q does not name the bad mode", msg)
	}
}

func TestVoiceSpeak_PlaysAudio(t *testing.T) {
	cs, h := connect(t, "")

	res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      "voice_speak",
		Arguments: map[string]any{"text": "affirmative"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", textContent(t, res))
	}

	if len(h.tts.SynthesizeCalls) != 1 || h.tts.SynthesizeCalls[0].Text != "affirmative" {
		t.Errorf("synthesize calls = %+v", h.tts.SynthesizeCalls)
	}
	if h.played != 1 {
		t.Errorf("played = %d, want 1", h.played)
	}
}

func TestVoiceSpeak_EmptyText(t *testing.T) {
	cs, h := connect(t, "")

	res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      "voice_speak",
		Arguments: map[string]any{"text": ""},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected tool error for empty text")
	}
	if h.played != 0 {
		t.Errorf("played = %d, want 0", h.played)
	}
}

func TestVoiceStatus_Idle(t *testing.T) {
	cs, _ := connect(t, "")

	res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      "voice_status",
		Arguments: map[string]any{},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", textContent(t, res))
	}

	var out StatusResult
	if err := json.Unmarshal([]byte(textContent(t, res)), &out); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if out.Busy {
		t.Error("busy = true with no live session")
	}
}
