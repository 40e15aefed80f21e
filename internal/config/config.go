// Package config provides the configuration schema and loader for voicewire.
package config

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/voicewire/voicewire/internal/record"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l onto the corresponding slog.Level. Unrecognised values map to
// info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// STTBackend selects which transcription backend to use.
type STTBackend string

const (
	// STTAuto uses the local engine with automatic cloud failover.
	STTAuto STTBackend = "auto"

	// STTLocal uses only the local whisper engine.
	STTLocal STTBackend = "local"

	// STTCloud uses only the OpenAI API.
	STTCloud STTBackend = "cloud"
)

// IsValid reports whether b is a recognised STT backend.
func (b STTBackend) IsValid() bool {
	switch b {
	case STTAuto, STTLocal, STTCloud:
		return true
	}
	return false
}

// Config is the root configuration structure for voicewire.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Paths   PathsConfig   `yaml:"paths"`
	Audio   AudioConfig   `yaml:"audio"`
	Record  RecordConfig  `yaml:"record"`
	VAD     VADConfig     `yaml:"vad"`
	STT     STTConfig     `yaml:"stt"`
	TTS     TTSConfig     `yaml:"tts"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level controls verbosity. Defaults to "info".
	Level LogLevel `yaml:"level"`
}

// PathsConfig holds the well-known filesystem locations shared with the
// observer process.
type PathsConfig struct {
	// Socket is the unix socket address of the observer's event server.
	Socket string `yaml:"socket"`

	// Lock is the session exclusivity lockfile.
	Lock string `yaml:"lock"`

	// Stop is the cooperative stop marker file.
	Stop string `yaml:"stop"`

	// Discovery is where the active session publishes its discovery record.
	Discovery string `yaml:"discovery"`
}

// AudioConfig holds capture settings.
type AudioConfig struct {
	// SampleRate is the pipeline sample rate in Hz. Capture at a different
	// native rate is resampled down to this. Defaults to 16000.
	SampleRate int `yaml:"sample_rate" validate:"omitempty,gte=8000,lte=192000"`

	// CaptureBinary overrides the platform default capture executable
	// (arecord on Linux, sox elsewhere).
	CaptureBinary string `yaml:"capture_binary"`
}

// RecordConfig holds recording loop settings.
type RecordConfig struct {
	// SilenceMode selects the silence auto-stop threshold. Defaults to
	// "standard".
	SilenceMode record.SilenceMode `yaml:"silence_mode"`

	// TimeoutSeconds is the wall-clock recording deadline. Defaults to 300,
	// clamped to [10, 3600].
	TimeoutSeconds int `yaml:"timeout_seconds" validate:"omitempty,gte=10,lte=3600"`

	// PushToTalk disables silence auto-stop when true.
	PushToTalk bool `yaml:"push_to_talk"`
}

// VADConfig holds voice activity detection settings.
type VADConfig struct {
	// ModelPath is the Silero VAD ONNX artifact.
	ModelPath string `yaml:"model_path"`

	// RuntimeLib is the ONNX Runtime shared library path. Empty uses the
	// platform default search path.
	RuntimeLib string `yaml:"runtime_lib"`

	// SpeechThreshold is the probability above which a frame counts as
	// speech. Defaults to 0.5.
	SpeechThreshold float32 `yaml:"speech_threshold" validate:"omitempty,gt=0,lt=1"`
}

// STTConfig holds transcription settings.
type STTConfig struct {
	// Backend selects auto, local, or cloud. Defaults to "auto".
	Backend STTBackend `yaml:"backend"`

	// Language is the expected speech language code (e.g., "en").
	Language string `yaml:"language" validate:"omitempty,max=8"`

	// WhisperURL is the local whisper.cpp server address. When set the HTTP
	// client is used; otherwise WhisperModel selects the in-process engine.
	WhisperURL string `yaml:"whisper_url" validate:"omitempty,url"`

	// WhisperModel is the ggml model path for the in-process engine.
	WhisperModel string `yaml:"whisper_model"`

	// OpenAIAPIKey authenticates the cloud backend. Usually supplied via the
	// VOICEWIRE_OPENAI_API_KEY environment variable rather than the file.
	OpenAIAPIKey string `yaml:"openai_api_key"`

	// OpenAIBaseURL overrides the cloud API endpoint.
	OpenAIBaseURL string `yaml:"openai_base_url" validate:"omitempty,url"`
}

// TTSConfig holds synthesis settings.
type TTSConfig struct {
	// DaemonURL is the local synthesis daemon address.
	DaemonURL string `yaml:"daemon_url" validate:"omitempty,url"`

	// ReferenceWAV is the default voice-cloning reference recording.
	ReferenceWAV string `yaml:"reference_wav"`

	// ReferenceText is the transcript of ReferenceWAV.
	ReferenceText string `yaml:"reference_text"`
}

// MetricsConfig holds the Prometheus exposition settings.
type MetricsConfig struct {
	// Enabled turns the /metrics endpoint on.
	Enabled bool `yaml:"enabled"`

	// ListenAddr is the address the metrics server binds to.
	ListenAddr string `yaml:"listen_addr"`
}

// Default returns a Config populated with every default value. Loading a
// config file overlays the file's values on top of these.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: LogInfo},
		Paths: PathsConfig{
			Socket:    "/tmp/voicewire.sock",
			Lock:      "/tmp/voicewire.lock",
			Stop:      "/tmp/voicewire.stop",
			Discovery: "/tmp/voicewire.session.json",
		},
		Audio: AudioConfig{
			SampleRate: 16000,
		},
		Record: RecordConfig{
			SilenceMode:    record.SilenceStandard,
			TimeoutSeconds: 300,
		},
		VAD: VADConfig{
			ModelPath:       defaultModelPath("silero_vad.onnx"),
			SpeechThreshold: 0.5,
		},
		STT: STTConfig{
			Backend:    STTAuto,
			Language:   "en",
			WhisperURL: "http://127.0.0.1:8080",
		},
		TTS: TTSConfig{
			DaemonURL: "http://127.0.0.1:8880",
		},
		Metrics: MetricsConfig{
			ListenAddr: "127.0.0.1:9464",
		},
	}
}

// defaultModelPath resolves a model artifact under ~/.voicewire/models.
func defaultModelPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("models", name)
	}
	return filepath.Join(home, ".voicewire", "models", name)
}
