// Package config loads the daemon configuration from a YAML file with
// environment-variable overrides for credentials and endpoints. The
// pipeline reads one immutable snapshot per session; nothing here is
// persisted back.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type GestureConfig struct {
	// Key is the gesture key name ("rightalt", "f13", "rightcmd", ...).
	Key string `yaml:"key"`
	// CancelKey aborts an in-flight session from any state.
	CancelKey string `yaml:"cancel_key"`
	// HoldThresholdMS separates hold-to-talk from tap-to-toggle.
	HoldThresholdMS int `yaml:"hold_threshold_ms"`
	// TapWindowMS is how long after a first tap a second tap still
	// counts as a double-tap.
	TapWindowMS int `yaml:"tap_window_ms"`
	// Backend selects the input tap: "gohook" or "hotkey".
	Backend string `yaml:"backend"`
}

type AudioConfig struct {
	SampleRate int    `yaml:"sample_rate"`
	Device     string `yaml:"device"`
	TempDir    string `yaml:"temp_dir"`
}

type VADConfig struct {
	// Threshold is the normalized RMS level above which a buffer counts
	// as speech for the streaming detector.
	Threshold float64 `yaml:"threshold"`
	// ActivateFrames / DeactivateFrames are the hysteresis counts.
	ActivateFrames   int `yaml:"activate_frames"`
	DeactivateFrames int `yaml:"deactivate_frames"`
	// MinSpeechRatio is the whole-clip speech-frame floor below which a
	// finished recording is discarded before transcription.
	MinSpeechRatio float64 `yaml:"min_speech_ratio"`
	// FailOpen keeps a clip when the whole-clip detector itself errors.
	FailOpen bool `yaml:"fail_open"`
}

type PollConfig struct {
	IntervalMS  int `yaml:"interval_ms"`
	MaxAttempts int `yaml:"max_attempts"`
}

type STTConfig struct {
	// Provider is one of: cloud, cloudasync, localexec, native, stream, fake.
	Provider string `yaml:"provider"`
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
	// Format is the upload encoding for cloud providers: "wav" or "flac".
	Format string `yaml:"format"`
	// Command is the recognizer command line for the localexec provider.
	Command string `yaml:"command"`
	// ModelPath is passed to the localexec recognizer.
	ModelPath string `yaml:"model_path"`
	// Corrected marks a provider that performs correction server-side,
	// so the LLM stage is skipped.
	Corrected bool       `yaml:"corrected"`
	Poll      PollConfig `yaml:"poll"`
}

type CorrectionConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Endpoint     string   `yaml:"endpoint"`
	APIKey       string   `yaml:"api_key"`
	Model        string   `yaml:"model"`
	Stream       bool     `yaml:"stream"`
	SystemPrompt string   `yaml:"system_prompt"`
	Vocabulary   []string `yaml:"vocabulary"`
	MaxTokens    int      `yaml:"max_tokens"`
	Temperature  float64  `yaml:"temperature"`
}

type InjectConfig struct {
	// ChunkSize is the maximum number of UTF-16 code units typed per
	// synthetic event batch.
	ChunkSize int `yaml:"chunk_size"`
	DelayMS   int `yaml:"delay_ms"`
	// Fallback forces the clipboard-paste path for applications that
	// reject synthetic typing.
	Fallback bool `yaml:"fallback"`
}

type Config struct {
	Gesture    GestureConfig    `yaml:"gesture"`
	Audio      AudioConfig      `yaml:"audio"`
	VAD        VADConfig        `yaml:"vad"`
	STT        STTConfig        `yaml:"stt"`
	Correction CorrectionConfig `yaml:"correction"`
	Inject     InjectConfig     `yaml:"inject"`
	LogPath    string           `yaml:"log_path"`
}

func Default() Config {
	return Config{
		Gesture: GestureConfig{
			Key:             "rightalt",
			CancelKey:       "escape",
			HoldThresholdMS: 300,
			TapWindowMS:     300,
			Backend:         "gohook",
		},
		Audio: AudioConfig{
			SampleRate: 16000,
		},
		VAD: VADConfig{
			Threshold:        0.012,
			ActivateFrames:   3,
			DeactivateFrames: 25,
			MinSpeechRatio:   0.05,
			FailOpen:         true,
		},
		STT: STTConfig{
			Provider: "cloud",
			Endpoint: "https://api.groq.com/openai/v1/audio/transcriptions",
			Model:    "whisper-large-v3-turbo",
			Language: "en",
			Format:   "flac",
			Poll: PollConfig{
				IntervalMS:  1000,
				MaxAttempts: 30,
			},
		},
		Correction: CorrectionConfig{
			Endpoint:    "https://api.openai.com/v1/chat/completions",
			Model:       "gpt-4o-mini",
			Stream:      true,
			MaxTokens:   1024,
			Temperature: 0.1,
		},
		Inject: InjectConfig{
			ChunkSize: 20,
			DelayMS:   8,
		},
	}
}

// Load reads the config file at path, falling back to defaults when the
// file does not exist, then applies environment overrides. A present but
// malformed file is an error, not a silent fallback.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// defaults only
	default:
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.STT.Provider, "MURMUR_STT_PROVIDER")
	overrideString(&cfg.STT.Endpoint, "MURMUR_STT_ENDPOINT")
	overrideString(&cfg.STT.APIKey, "MURMUR_STT_API_KEY")
	overrideString(&cfg.STT.Model, "MURMUR_STT_MODEL")
	overrideString(&cfg.STT.Language, "MURMUR_STT_LANGUAGE")
	overrideString(&cfg.Correction.Endpoint, "MURMUR_LLM_ENDPOINT")
	overrideString(&cfg.Correction.APIKey, "MURMUR_LLM_API_KEY")
	overrideString(&cfg.Correction.Model, "MURMUR_LLM_MODEL")
	overrideBool(&cfg.Correction.Enabled, "MURMUR_LLM_ENABLED")
	overrideBool(&cfg.Correction.Stream, "MURMUR_LLM_STREAM")
	overrideInt(&cfg.STT.Poll.IntervalMS, "MURMUR_STT_POLL_INTERVAL_MS")
	overrideInt(&cfg.STT.Poll.MaxAttempts, "MURMUR_STT_POLL_MAX_ATTEMPTS")
	overrideString(&cfg.LogPath, "MURMUR_LOG_PATH")

	// Common provider key variables, only when no explicit key is set.
	if cfg.STT.APIKey == "" {
		for _, key := range []string{"GROQ_API_KEY", "OPENAI_API_KEY", "DEEPGRAM_API_KEY"} {
			if v := os.Getenv(key); v != "" {
				cfg.STT.APIKey = v
				break
			}
		}
	}
	if cfg.Correction.APIKey == "" {
		cfg.Correction.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			*target = parsed
		}
	}
}

// Validate fails fast on configurations that cannot start a session.
func (c Config) Validate() error {
	switch c.STT.Provider {
	case "cloud", "cloudasync", "stream":
		if c.STT.Endpoint == "" {
			return fmt.Errorf("stt provider %s requires an endpoint", c.STT.Provider)
		}
		if c.STT.APIKey == "" {
			return fmt.Errorf("stt provider %s requires an API key (set MURMUR_STT_API_KEY)", c.STT.Provider)
		}
	case "localexec":
		if c.STT.Command == "" {
			return fmt.Errorf("stt provider localexec requires a command")
		}
	case "native", "fake":
	default:
		return fmt.Errorf("unknown stt provider %q", c.STT.Provider)
	}
	if c.STT.Format != "" && c.STT.Format != "wav" && c.STT.Format != "flac" {
		return fmt.Errorf("unknown upload format %q (use wav or flac)", c.STT.Format)
	}
	if c.Correction.Enabled && c.Correction.APIKey == "" {
		return fmt.Errorf("correction enabled without an API key (set MURMUR_LLM_API_KEY)")
	}
	return nil
}
