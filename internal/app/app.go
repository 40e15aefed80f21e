// Package app wires the voicewire subsystems into a running voice session.
//
// A [Session] owns one end-to-end interaction: it books the cross-process
// mutex, publishes the discovery record, runs the recording loop against live
// capture, hands the finished recording to the transcription backend, and
// releases everything on the way out — on every exit path, including errors.
//
// For testing, inject mock implementations via functional options (WithVAD,
// WithTranscriber, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voicewire/voicewire/internal/channel"
	"github.com/voicewire/voicewire/internal/config"
	"github.com/voicewire/voicewire/internal/lock"
	"github.com/voicewire/voicewire/internal/observe"
	"github.com/voicewire/voicewire/internal/record"
	"github.com/voicewire/voicewire/internal/resilience"
	"github.com/voicewire/voicewire/internal/signal"
	"github.com/voicewire/voicewire/pkg/audio"
	"github.com/voicewire/voicewire/pkg/provider/stt"
	sttopenai "github.com/voicewire/voicewire/pkg/provider/stt/openai"
	"github.com/voicewire/voicewire/pkg/provider/stt/whisper"
	"github.com/voicewire/voicewire/pkg/provider/tts"
	ttsdaemon "github.com/voicewire/voicewire/pkg/provider/tts/daemon"
	"github.com/voicewire/voicewire/pkg/provider/vad"
	"github.com/voicewire/voicewire/pkg/provider/vad/silero"
)

// CaptureFunc opens a live audio source. Injectable for tests.
type CaptureFunc func(ctx context.Context) (record.Source, error)

// Session owns the collaborators of one voice session.
type Session struct {
	cfg *config.Config
	id  string

	mutex   *lock.Mutex
	stop    *signal.Stop
	client  *channel.Client
	metrics *observe.Metrics

	vadEngine vad.Engine
	stt       stt.Transcriber
	tts       tts.Synthesizer

	capture   CaptureFunc
	play      PlayFunc
	broadcast func(event any)
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*Session)

// WithVAD injects a VAD engine instead of loading the ONNX model from config.
func WithVAD(e vad.Engine) Option {
	return func(s *Session) { s.vadEngine = e }
}

// WithTranscriber injects a transcriber instead of building the configured
// backend chain.
func WithTranscriber(t stt.Transcriber) Option {
	return func(s *Session) { s.stt = t }
}

// WithSynthesizer injects a synthesizer instead of the daemon client.
func WithSynthesizer(syn tts.Synthesizer) Option {
	return func(s *Session) { s.tts = syn }
}

// WithCapture injects the audio source opener instead of the platform capture
// subprocess.
func WithCapture(fn CaptureFunc) Option {
	return func(s *Session) { s.capture = fn }
}

// WithPlayer injects the playback function instead of the platform player
// subprocess.
func WithPlayer(fn PlayFunc) Option {
	return func(s *Session) { s.play = fn }
}

// WithBroadcast injects the event sink instead of the channel client. Used by
// tests to capture the event stream.
func WithBroadcast(fn func(event any)) Option {
	return func(s *Session) { s.broadcast = fn }
}

// WithMetrics injects a Metrics instance instead of the process-global one.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// New creates a Session from cfg. The session id identifies this process in
// the lock record and discovery record; main derives it from the pid and
// start time.
func New(cfg *config.Config, sessionID string, opts ...Option) (*Session, error) {
	s := &Session{
		cfg:   cfg,
		id:    sessionID,
		mutex: lock.New(cfg.Paths.Lock),
		stop:  signal.NewStop(cfg.Paths.Stop),
	}
	for _, o := range opts {
		o(s)
	}

	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	if s.broadcast == nil {
		s.client = channel.New(cfg.Paths.Socket)
		s.client.OnConnect = func() {
			s.metrics.ChannelReconnects.Add(context.Background(), 1)
		}
		s.broadcast = s.client.Broadcast
	}

	if s.vadEngine == nil {
		var vadOpts []silero.Option
		if cfg.VAD.RuntimeLib != "" {
			vadOpts = append(vadOpts, silero.WithRuntimeLibrary(cfg.VAD.RuntimeLib))
		}
		eng, err := silero.New(cfg.VAD.ModelPath, vadOpts...)
		if err != nil {
			return nil, fmt.Errorf("app: init vad: %w", err)
		}
		s.vadEngine = eng
	}

	if s.stt == nil {
		t, err := buildTranscriber(cfg)
		if err != nil {
			return nil, fmt.Errorf("app: init stt: %w", err)
		}
		s.stt = t
	}

	if s.tts == nil {
		syn, err := ttsdaemon.New(cfg.TTS.DaemonURL,
			ttsdaemon.WithVoice(cfg.TTS.ReferenceWAV, cfg.TTS.ReferenceText))
		if err != nil {
			return nil, fmt.Errorf("app: init tts: %w", err)
		}
		s.tts = syn
	}

	if s.capture == nil {
		s.capture = func(ctx context.Context) (record.Source, error) {
			return audio.StartCapture(ctx, audio.CaptureConfig{
				SampleRate: cfg.Audio.SampleRate,
				Binary:     cfg.Audio.CaptureBinary,
			})
		}
	}
	if s.play == nil {
		s.play = playAudio
	}

	return s, nil
}

// buildTranscriber assembles the configured STT backend. The auto mode
// composes the local engine with the cloud fallback behind per-backend
// breakers; local and cloud use a single backend directly.
func buildTranscriber(cfg *config.Config) (stt.Transcriber, error) {
	local := func() (stt.Transcriber, error) {
		if cfg.STT.WhisperURL != "" {
			var opts []whisper.ServerOption
			if cfg.STT.Language != "" {
				opts = append(opts, whisper.WithLanguage(cfg.STT.Language))
			}
			if cfg.STT.WhisperModel != "" {
				opts = append(opts, whisper.WithModel(cfg.STT.WhisperModel))
			}
			return whisper.NewServer(cfg.STT.WhisperURL, opts...)
		}
		return whisper.NewNative(cfg.STT.WhisperModel)
	}
	cloud := func() (stt.Transcriber, error) {
		var opts []sttopenai.Option
		if cfg.STT.OpenAIBaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(cfg.STT.OpenAIBaseURL))
		}
		return sttopenai.New(cfg.STT.OpenAIAPIKey, opts...)
	}

	switch cfg.STT.Backend {
	case config.STTLocal:
		return local()

	case config.STTCloud:
		return cloud()

	default: // auto
		primary, err := local()
		if err != nil {
			return nil, err
		}
		chain := resilience.NewChain(primary, "local", resilience.BreakerConfig{})
		if cfg.STT.OpenAIAPIKey != "" {
			fallback, err := cloud()
			if err != nil {
				return nil, err
			}
			chain.AddFallback("cloud", fallback)
		}
		return chain, nil
	}
}

// ListenOptions are per-call overrides for one recording. Zero values fall
// back to the config.
type ListenOptions struct {
	Timeout     time.Duration
	SilenceMode record.SilenceMode
	PushToTalk  bool
}

// ListenResult is the outcome of one listen operation.
type ListenResult struct {
	// Text is the transcript. Empty when NoSpeech is true.
	Text string

	// NoSpeech reports that the recording completed without ever detecting
	// speech. Distinct from an error: the microphone worked, the user said
	// nothing.
	NoSpeech bool

	// Reason explains what ended the recording.
	Reason record.Reason

	// Duration is the recording wall time.
	Duration time.Duration
}

// book takes exclusive ownership of the voice line for one operation.
//
// AlreadyOwned counts as busy here, not success: it means another goroutine
// of this process (concurrent MCP tool calls land on the same Session) is
// mid-operation, and proceeding would let this caller's deferred Release pull
// the lock out from under it.
func (s *Session) book(ctx context.Context) error {
	res, err := s.mutex.Book(s.id)
	if err != nil {
		var busy *lock.BusyError
		if errors.As(err, &busy) {
			s.metrics.SessionsBusy.Add(ctx, 1)
		}
		return err
	}
	if res == lock.AlreadyOwned {
		s.metrics.SessionsBusy.Add(ctx, 1)
		owner := lock.Record{PID: os.Getpid(), SessionID: s.id, StartedAt: time.Now()}
		if st := s.mutex.Status(); st.Owner != nil {
			owner = *st.Owner
		}
		return &lock.BusyError{Owner: owner}
	}
	return nil
}

// Listen runs one record-then-transcribe interaction.
//
// The session mutex is booked for the whole operation and released on every
// exit path. A busy mutex returns *lock.BusyError unwrapped so callers can
// present the owning session.
func (s *Session) Listen(ctx context.Context, opts ListenOptions) (*ListenResult, error) {
	if err := s.book(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if err := s.mutex.Release(); err != nil {
			slog.Warn("lock release failed", "err", err)
		}
		if err := signal.RemoveDiscovery(s.cfg.Paths.Discovery); err != nil {
			slog.Warn("discovery removal failed", "err", err)
		}
	}()

	// A stray pre-existing marker must not end the recording before it starts.
	if err := s.stop.Clear(); err != nil {
		return nil, fmt.Errorf("app: clear stop marker: %w", err)
	}

	if err := signal.PublishDiscovery(s.cfg.Paths.Discovery, signal.Discovery{
		SocketPath: s.cfg.Paths.Socket,
		StopPath:   s.cfg.Paths.Stop,
		PID:        os.Getpid(),
		SessionID:  s.id,
		StartedAt:  time.Now().UTC(),
	}); err != nil {
		return nil, fmt.Errorf("app: publish discovery: %w", err)
	}

	recCtx, cancelRec := context.WithCancel(ctx)
	defer cancelRec()

	g, gctx := errgroup.WithContext(recCtx)
	if s.client != nil {
		g.Go(func() error {
			return s.client.Run(gctx)
		})
		g.Go(func() error {
			s.handleCommands(gctx, cancelRec)
			return nil
		})
	}

	result, err := s.record(recCtx, opts)
	cancelRec()
	if werr := g.Wait(); werr != nil && !errors.Is(werr, context.Canceled) {
		slog.Warn("channel loop exited", "err", werr)
	}
	if err != nil {
		s.broadcast(channel.NewErrorEvent(err.Error(), false))
		s.broadcast(channel.NewStateEvent(channel.StateIdle))
		return nil, err
	}

	s.metrics.RecordingDuration.Record(ctx, result.Duration.Seconds())
	s.metrics.FramesProcessed.Add(ctx, int64(result.Frames))

	if !result.HasSpeech {
		s.broadcast(channel.NewStateEvent(channel.StateIdle))
		return &ListenResult{
			NoSpeech: true,
			Reason:   result.Reason,
			Duration: result.Duration,
		}, nil
	}

	s.broadcast(channel.NewStateEvent(channel.StateTranscribing))

	backend := string(s.cfg.STT.Backend)
	sttStart := time.Now()
	tr, err := s.stt.Transcribe(ctx, result.PCM, stt.Config{
		SampleRate: s.cfg.Audio.SampleRate,
		Language:   s.cfg.STT.Language,
	})
	s.metrics.STTDuration.Record(ctx, time.Since(sttStart).Seconds())
	if err != nil {
		s.metrics.RecordSTTRequest(ctx, backend, "error")
		s.broadcast(channel.NewErrorEvent(err.Error(), false))
		s.broadcast(channel.NewStateEvent(channel.StateIdle))
		return nil, fmt.Errorf("app: transcribe: %w", err)
	}
	s.metrics.RecordSTTRequest(ctx, backend, "ok")

	s.broadcast(channel.NewTranscriptionEvent(tr.Text, false))
	s.broadcast(channel.NewStateEvent(channel.StateIdle))

	return &ListenResult{
		Text:     tr.Text,
		Reason:   result.Reason,
		Duration: result.Duration,
	}, nil
}

// record opens capture and the VAD session and runs the recording loop.
func (s *Session) record(ctx context.Context, opts ListenOptions) (*record.Result, error) {
	src, err := s.capture(ctx)
	if err != nil {
		return nil, err
	}
	defer closeSource(src)

	vadSess, err := s.vadEngine.NewSession(vad.Config{
		SampleRate:      s.cfg.Audio.SampleRate,
		FrameSamples:    audio.FrameSamples,
		SpeechThreshold: float64(s.cfg.VAD.SpeechThreshold),
	})
	if err != nil {
		return nil, fmt.Errorf("app: vad session: %w", err)
	}
	defer vadSess.Close()
	timed := &timedVADSession{Session: vadSess, metrics: s.metrics}

	silenceMode := opts.SilenceMode
	if !silenceMode.IsValid() {
		silenceMode = s.cfg.Record.SilenceMode
	}
	deadline := opts.Timeout
	if deadline == 0 {
		deadline = time.Duration(s.cfg.Record.TimeoutSeconds) * time.Second
	}

	rec := record.New(timed, record.Config{
		SampleRate:   s.cfg.Audio.SampleRate,
		FrameSamples: audio.FrameSamples,
		SilenceMode:  silenceMode,
		Deadline:     deadline,
		PushToTalk:   opts.PushToTalk || s.cfg.Record.PushToTalk,
		StopRaised:   s.stop.Raised,
		Sink:         record.Sink(s.broadcast),
	})
	return rec.Run(ctx, src)
}

// handleCommands consumes observer commands for the duration of one listen
// operation. Stop raises the cooperative marker the recorder polls; cancel
// aborts the recording outright. The remaining commands have no meaning
// mid-recording and are logged and dropped.
func (s *Session) handleCommands(ctx context.Context, cancelRec context.CancelFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-s.client.Commands():
			if !ok {
				return
			}
			switch cmd.Cmd {
			case channel.CmdStop:
				if err := s.stop.Raise(); err != nil {
					slog.Warn("stop marker raise failed", "err", err)
				}
			case channel.CmdCancel:
				cancelRec()
			default:
				slog.Debug("ignoring command during recording", "cmd", cmd.Cmd)
			}
		}
	}
}

// Speak synthesises text through the TTS backend and plays it. The session
// mutex is booked so speech and recording never overlap across processes;
// the stop marker interrupts playback.
func (s *Session) Speak(ctx context.Context, text string) error {
	if err := s.book(ctx); err != nil {
		return err
	}
	defer func() {
		if err := s.mutex.Release(); err != nil {
			slog.Warn("lock release failed", "err", err)
		}
	}()

	if err := s.stop.Clear(); err != nil {
		return fmt.Errorf("app: clear stop marker: %w", err)
	}

	audioOut, err := s.tts.Synthesize(ctx, text, tts.Options{})
	if err != nil {
		s.broadcast(channel.NewErrorEvent(err.Error(), true))
		return fmt.Errorf("app: synthesize: %w", err)
	}

	s.broadcast(channel.StateEvent{
		Type:  channel.TypeState,
		State: channel.StateSpeaking,
		Text:  text,
	})
	defer s.broadcast(channel.NewStateEvent(channel.StateIdle))

	playCtx, cancelPlay := context.WithCancel(ctx)
	defer cancelPlay()
	go func() {
		tick := time.NewTicker(100 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-playCtx.Done():
				return
			case <-tick.C:
				if s.stop.Raised() {
					cancelPlay()
					return
				}
			}
		}
	}()

	if err := s.play(playCtx, audioOut); err != nil && playCtx.Err() == nil {
		return fmt.Errorf("app: playback: %w", err)
	}
	return nil
}

// Status is a point-in-time report of the machine-wide session state.
type Status struct {
	// Busy reports whether a live session holds the lock.
	Busy bool

	// Owner is the lock record of the holder, when one exists (live or
	// stale).
	Owner *lock.Record

	// Discovery is the published session record, when present.
	Discovery *signal.Discovery
}

// Status reads the lock and discovery record without side effects.
func (s *Session) Status() Status {
	st := s.mutex.Status()
	out := Status{Busy: st.Booked, Owner: st.Owner}
	if disc, err := signal.ReadDiscovery(s.cfg.Paths.Discovery); err == nil {
		out.Discovery = disc
	}
	return out
}

// timedVADSession times every Classify call into the VAD latency histogram.
// Inference must stay well under the 32 ms frame duration to keep up with
// real-time audio; the histogram is how a drift shows up.
type timedVADSession struct {
	vad.Session
	metrics *observe.Metrics
}

func (t *timedVADSession) Classify(frame []byte) (vad.Result, error) {
	start := time.Now()
	res, err := t.Session.Classify(frame)
	t.metrics.VADLatency.Record(context.Background(), time.Since(start).Seconds())
	return res, err
}

// closeSource closes src when it is closeable. record.Source keeps the
// contract narrow, so the concrete capture type's Close is behind a type
// assertion.
func closeSource(src record.Source) {
	if c, ok := src.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			slog.Debug("capture close", "err", err)
		}
	}
}
