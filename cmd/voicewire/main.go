// Command voicewire is the voice interaction CLI: it records and transcribes
// speech, speaks text through the TTS daemon, and serves both as MCP tools.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voicewire/voicewire/internal/app"
	"github.com/voicewire/voicewire/internal/config"
	"github.com/voicewire/voicewire/internal/lock"
	"github.com/voicewire/voicewire/internal/mcp"
	"github.com/voicewire/voicewire/internal/observe"
	"github.com/voicewire/voicewire/internal/record"
)

const version = "0.1.0"

const usageText = `usage: voicewire <command> [flags]

Commands:
  record   record one utterance and print the transcript
  speak    synthesize text and play it
  mcp      serve the voice tools over MCP stdio
  status   report session lock state
  version  print the version

Run "voicewire <command> -h" for command flags.
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usageText)
		return 2
	}

	switch args[0] {
	case "record":
		return runRecord(args[1:])
	case "speak":
		return runSpeak(args[1:])
	case "mcp":
		return runMCP(args[1:])
	case "status":
		return runStatus(args[1:])
	case "version":
		fmt.Println("voicewire", version)
		return 0
	case "-h", "--help", "help":
		fmt.Print(usageText)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "voicewire: unknown command %q\n\n%s", args[0], usageText)
		return 2
	}
}

// setup loads the config and installs the default logger. Shared by every
// subcommand after its flag set has parsed.
func setup(configPath string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(newLogger(cfg.Log.Level))
	return cfg, nil
}

func runRecord(args []string) int {
	fs := flag.NewFlagSet("record", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath(), "path to the YAML configuration file")
	timeout := fs.Int("timeout", 0, "maximum recording duration in seconds (0 uses the configured default)")
	silence := fs.String("silence", "", "silence auto-stop profile: quick, standard or thoughtful")
	ptt := fs.Bool("ptt", false, "push-to-talk: disable silence auto-stop")
	_ = fs.Parse(args)

	cfg, err := setup(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voicewire: %v\n", err)
		return 1
	}

	opts := app.ListenOptions{
		Timeout:    time.Duration(*timeout) * time.Second,
		PushToTalk: *ptt,
	}
	if *silence != "" {
		mode := record.SilenceMode(*silence)
		if !mode.IsValid() {
			fmt.Fprintf(os.Stderr, "voicewire: unknown silence profile %q\n", *silence)
			return 2
		}
		opts.SilenceMode = mode
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stopMetrics := startMetrics(ctx, cfg)
	defer stopMetrics()

	session, err := app.New(cfg, newSessionID())
	if err != nil {
		slog.Error("session init failed", "err", err)
		return 1
	}

	res, err := session.Listen(ctx, opts)
	if err != nil {
		return reportSessionError(err)
	}
	if res.NoSpeech {
		slog.Info("no speech detected", "reason", res.Reason, "duration", res.Duration)
		return 0
	}

	fmt.Println(res.Text)
	return 0
}

func runSpeak(args []string) int {
	fs := flag.NewFlagSet("speak", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath(), "path to the YAML configuration file")
	text := fs.String("text", "", "the text to speak (required)")
	_ = fs.Parse(args)

	if *text == "" {
		fmt.Fprintln(os.Stderr, "voicewire: speak requires -text")
		return 2
	}

	cfg, err := setup(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voicewire: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session, err := app.New(cfg, newSessionID())
	if err != nil {
		slog.Error("session init failed", "err", err)
		return 1
	}

	if err := session.Speak(ctx, *text); err != nil {
		return reportSessionError(err)
	}
	return 0
}

func runMCP(args []string) int {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath(), "path to the YAML configuration file")
	_ = fs.Parse(args)

	cfg, err := setup(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voicewire: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stopMetrics := startMetrics(ctx, cfg)
	defer stopMetrics()

	session, err := app.New(cfg, newSessionID())
	if err != nil {
		slog.Error("session init failed", "err", err)
		return 1
	}

	slog.Info("mcp server starting", "version", version, "socket", cfg.Paths.Socket)
	if err := mcp.NewServer(session, version).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("mcp server error", "err", err)
		return 1
	}
	slog.Info("mcp server stopped")
	return 0
}

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath(), "path to the YAML configuration file")
	_ = fs.Parse(args)

	cfg, err := setup(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voicewire: %v\n", err)
		return 1
	}

	session, err := app.New(cfg, newSessionID())
	if err != nil {
		slog.Error("session init failed", "err", err)
		return 1
	}

	st := session.Status()
	if !st.Busy {
		fmt.Println("idle: no active voice session")
		return 0
	}
	fmt.Printf("busy: session %s (pid %d) since %s\n",
		st.Owner.SessionID, st.Owner.PID, st.Owner.StartedAt.Format(time.RFC3339))
	if st.Discovery != nil {
		fmt.Printf("  socket: %s\n  stop:   %s\n", st.Discovery.SocketPath, st.Discovery.StopPath)
	}
	return 0
}

// reportSessionError maps session failures to exit codes: 2 for a busy line,
// 1 for everything else.
func reportSessionError(err error) int {
	var busy *lock.BusyError
	if errors.As(err, &busy) {
		fmt.Fprintf(os.Stderr, "voicewire: %v\n", busy)
		return 2
	}
	if errors.Is(err, context.Canceled) {
		return 130
	}
	slog.Error("session failed", "err", err)
	return 1
}

// startMetrics initialises the OpenTelemetry pipeline and serves the
// prometheus endpoint when metrics are enabled. The returned function shuts
// both down; it is a no-op when metrics are disabled.
func startMetrics(ctx context.Context, cfg *config.Config) func() {
	if !cfg.Metrics.Enabled {
		return func() {}
	}

	shutdownProvider, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Warn("metrics init failed, continuing without", "err", err)
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("metrics listener error", "err", err)
		}
	}()
	slog.Debug("metrics endpoint up", "addr", cfg.Metrics.ListenAddr)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = shutdownProvider(shutdownCtx)
	}
}

func newSessionID() string {
	return uuid.NewString()
}

// defaultConfigPath prefers an explicit VOICEWIRE_CONFIG, then the user config
// directory, then a file next to the binary.
func defaultConfigPath() string {
	if p := os.Getenv("VOICEWIRE_CONFIG"); p != "" {
		return p
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + "/voicewire/config.yaml"
	}
	return "config.yaml"
}

func newLogger(level config.LogLevel) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level.Slog()}))
}
