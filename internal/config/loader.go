package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/voicewire/voicewire/internal/record"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "VOICEWIRE_"

// validate checks the struct tags on [Config]. Shared instance, initialised
// once.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Load reads the YAML configuration file at path, applies environment
// overrides, and returns a validated [Config]. A missing file is not an
// error: defaults plus environment overrides are returned instead.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			applyEnv(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of the defaults, applies
// environment overrides, and validates the result. Useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays VOICEWIRE_* environment variables on cfg. Unparseable
// values are ignored in favour of the existing setting; enum values are
// checked later by [Validate].
func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.Log.Level = LogLevel(v)
	}
	if v := os.Getenv(EnvPrefix + "SOCKET_PATH"); v != "" {
		cfg.Paths.Socket = v
	}
	if v := os.Getenv(EnvPrefix + "LOCK_PATH"); v != "" {
		cfg.Paths.Lock = v
	}
	if v := os.Getenv(EnvPrefix + "STOP_PATH"); v != "" {
		cfg.Paths.Stop = v
	}
	if v := os.Getenv(EnvPrefix + "DISCOVERY_PATH"); v != "" {
		cfg.Paths.Discovery = v
	}
	if v := os.Getenv(EnvPrefix + "STT_BACKEND"); v != "" {
		cfg.STT.Backend = STTBackend(v)
	}
	if v := os.Getenv(EnvPrefix + "SILENCE_MODE"); v != "" {
		cfg.Record.SilenceMode = record.SilenceMode(v)
	}
	if v := os.Getenv(EnvPrefix + "TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Record.TimeoutSeconds = n
		}
	}
	if v := os.Getenv(EnvPrefix + "PUSH_TO_TALK"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Record.PushToTalk = b
		}
	}
	if v := os.Getenv(EnvPrefix + "OPENAI_API_KEY"); v != "" {
		cfg.STT.OpenAIAPIKey = v
	}
	if v := os.Getenv(EnvPrefix + "TTS_URL"); v != "" {
		cfg.TTS.DaemonURL = v
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Log.Level != "" && !cfg.Log.Level.IsValid() {
		errs = append(errs, fmt.Errorf("log.level %q is invalid; valid values: debug, info, warn, error", cfg.Log.Level))
	}
	if cfg.STT.Backend != "" && !cfg.STT.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("stt.backend %q is invalid; valid values: auto, local, cloud", cfg.STT.Backend))
	}
	if cfg.Record.SilenceMode != "" && !cfg.Record.SilenceMode.IsValid() {
		errs = append(errs, fmt.Errorf("record.silence_mode %q is invalid; valid values: quick, standard, thoughtful", cfg.Record.SilenceMode))
	}

	switch cfg.STT.Backend {
	case STTLocal, STTAuto:
		if cfg.STT.WhisperURL == "" && cfg.STT.WhisperModel == "" {
			errs = append(errs, fmt.Errorf("stt.backend %q requires stt.whisper_url or stt.whisper_model", cfg.STT.Backend))
		}
	}
	if cfg.STT.Backend == STTCloud && cfg.STT.OpenAIAPIKey == "" {
		errs = append(errs, fmt.Errorf("stt.backend %q requires stt.openai_api_key (or %sOPENAI_API_KEY)", STTCloud, EnvPrefix))
	}

	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("%s fails %q validation (value %v)", fe.Field(), fe.Tag(), fe.Value()))
			}
		} else {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
