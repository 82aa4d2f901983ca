package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	Hotkeys     HotkeysConfig    `yaml:"hotkeys"`
	Recording   RecordingConfig  `yaml:"recording"`
	Pipelines   PipelinesConfig  `yaml:"pipelines"`
	Transcribe  TranscribeConfig `yaml:"transcribe"`
	LLM         LLMConfig        `yaml:"llm"`
	Vision      VisionConfig     `yaml:"vision"`
	TTS         TTSConfig        `yaml:"tts"`
	Playback    PlaybackConfig   `yaml:"playback"`
	History     HistoryConfig    `yaml:"history"`
	Settings    SettingsConfig   `yaml:"settings"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type HotkeysConfig struct {
	Bindings           map[string]string `yaml:"bindings"`
	RestartMaxAttempts int               `yaml:"restart_max_attempts"`
	RestartInitialMS   int               `yaml:"restart_initial_delay_ms"`
}

type RecordingConfig struct {
	Mode       string `yaml:"mode"` // exec, mock
	Command    string `yaml:"command"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
	MinBytes   int64  `yaml:"min_bytes"`
	GraceMS    int    `yaml:"grace_ms"`
	TempDir    string `yaml:"temp_dir"`
}

type PipelinesConfig struct {
	TimeoutMS            int    `yaml:"timeout_ms"`
	SystemPrompt         string `yaml:"system_prompt"`
	VisionPrompt         string `yaml:"vision_prompt"`
	ClipboardJoin        string `yaml:"clipboard_join"`
	ClipboardTtsMaxChars int    `yaml:"clipboard_tts_max_chars"`
}

type TranscribeConfig struct {
	Mode      string `yaml:"mode"` // exec, mock
	Command   string `yaml:"command"`
	Language  string `yaml:"language"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type LLMConfig struct {
	Mode           string  `yaml:"mode"` // http, mock
	Endpoint       string  `yaml:"endpoint"`
	APIKey         string  `yaml:"api_key"`
	Model          string  `yaml:"model"`
	VisionModel    string  `yaml:"vision_model"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`
	TimeoutMS      int     `yaml:"timeout_ms"`
	CacheTTLMinute int     `yaml:"model_cache_ttl_minutes"`
}

type VisionConfig struct {
	Mode      string `yaml:"mode"` // exec, mock
	Command   string `yaml:"command"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type TTSConfig struct {
	Interpreter     string  `yaml:"interpreter"`
	BridgePath      string  `yaml:"bridge_path"`
	Voice           string  `yaml:"voice"`
	Speed           float64 `yaml:"speed"`
	ProbeTimeoutMS  int     `yaml:"probe_timeout_ms"`
	VerifyTimeoutMS int     `yaml:"verify_timeout_ms"`
	SynthTimeoutMS  int     `yaml:"synth_timeout_ms"`
}

type PlaybackConfig struct {
	Players        []string `yaml:"players"`
	PollIntervalMS int      `yaml:"poll_interval_ms"`
}

type HistoryConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
	MaxRuns       int    `yaml:"max_runs"`
}

type SettingsConfig struct {
	Path string `yaml:"path"`
}

func Default() Config {
	return Config{
		RuntimeName: "whisperd",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "127.0.0.1",
			Port: 8765,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			LogFormat:    "text",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Hotkeys: HotkeysConfig{
			Bindings: map[string]string{
				"transcribe":           "F1",
				"prompt_llm":           "F2",
				"clipboard_prompt_llm": "Shift+F2",
				"vision_capture":       "F3",
				"speech_vision":        "Shift+F3",
				"clipboard_tts":        "F4",
			},
			RestartMaxAttempts: 5,
			RestartInitialMS:   250,
		},
		Recording: RecordingConfig{
			Mode:       "exec",
			Command:    "ffmpeg -hide_banner -loglevel error -f pulse -i default -ac 1 -ar 16000 -y",
			SampleRate: 16000,
			Channels:   1,
			MinBytes:   1024,
			GraceMS:    200,
			TempDir:    "",
		},
		Pipelines: PipelinesConfig{
			TimeoutMS:            60000,
			SystemPrompt:         "You are a helpful assistant. Answer concisely.",
			VisionPrompt:         "Describe the contents of this image.",
			ClipboardJoin:        ", ",
			ClipboardTtsMaxChars: 5000,
		},
		Transcribe: TranscribeConfig{
			Mode:      "exec",
			Command:   "whisper-cli --output-json",
			Language:  "auto",
			TimeoutMS: 45000,
		},
		LLM: LLMConfig{
			Mode:           "http",
			Endpoint:       "https://openrouter.ai/api/v1",
			Model:          "openai/gpt-4o-mini",
			VisionModel:    "openai/gpt-4o-mini",
			MaxTokens:      1024,
			Temperature:    0.7,
			TimeoutMS:      45000,
			CacheTTLMinute: 60,
		},
		Vision: VisionConfig{
			Mode:      "mock",
			Command:   "",
			TimeoutMS: 15000,
		},
		TTS: TTSConfig{
			Voice:           "expr-voice-2-f",
			Speed:           1.0,
			ProbeTimeoutMS:  5000,
			VerifyTimeoutMS: 10000,
			SynthTimeoutMS:  30000,
		},
		Playback: PlaybackConfig{
			Players:        []string{"mpv", "ffplay", "afplay", "aplay", "paplay"},
			PollIntervalMS: 50,
		},
		History: HistoryConfig{
			Path:          "./data/whisper-history.db",
			RetentionDays: 30,
			MaxRuns:       10000,
		},
		Settings: SettingsConfig{
			Path: "./data/settings.json",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "CW_RUNTIME_NAME")
	overrideString(&cfg.Environment, "CW_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "CW_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "CW_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "CW_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.LogFormat, "CW_TELEMETRY_LOG_FORMAT")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "CW_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "CW_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Embedded, "CW_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "CW_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "CW_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "CW_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "CW_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "CW_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "CW_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "CW_BUS_CONNECT_TIMEOUT_MS")
	overrideInt(&cfg.Hotkeys.RestartMaxAttempts, "CW_HOTKEYS_RESTART_MAX_ATTEMPTS")
	overrideInt(&cfg.Hotkeys.RestartInitialMS, "CW_HOTKEYS_RESTART_INITIAL_DELAY_MS")
	overrideString(&cfg.Recording.Mode, "CW_RECORDING_MODE")
	overrideString(&cfg.Recording.Command, "CW_RECORDING_COMMAND")
	overrideInt(&cfg.Recording.SampleRate, "CW_RECORDING_SAMPLE_RATE")
	overrideInt(&cfg.Recording.Channels, "CW_RECORDING_CHANNELS")
	overrideInt64(&cfg.Recording.MinBytes, "CW_RECORDING_MIN_BYTES")
	overrideInt(&cfg.Recording.GraceMS, "CW_RECORDING_GRACE_MS")
	overrideString(&cfg.Recording.TempDir, "CW_RECORDING_TEMP_DIR")
	overrideInt(&cfg.Pipelines.TimeoutMS, "CW_PIPELINES_TIMEOUT_MS")
	overrideString(&cfg.Pipelines.SystemPrompt, "CW_PIPELINES_SYSTEM_PROMPT")
	overrideString(&cfg.Pipelines.VisionPrompt, "CW_PIPELINES_VISION_PROMPT")
	overrideString(&cfg.Pipelines.ClipboardJoin, "CW_PIPELINES_CLIPBOARD_JOIN")
	overrideInt(&cfg.Pipelines.ClipboardTtsMaxChars, "CW_PIPELINES_CLIPBOARD_TTS_MAX_CHARS")
	overrideString(&cfg.Transcribe.Mode, "CW_TRANSCRIBE_MODE")
	overrideString(&cfg.Transcribe.Command, "CW_TRANSCRIBE_COMMAND")
	overrideString(&cfg.Transcribe.Language, "CW_TRANSCRIBE_LANGUAGE")
	overrideInt(&cfg.Transcribe.TimeoutMS, "CW_TRANSCRIBE_TIMEOUT_MS")
	overrideString(&cfg.LLM.Mode, "CW_LLM_MODE")
	overrideString(&cfg.LLM.Endpoint, "CW_LLM_ENDPOINT")
	overrideString(&cfg.LLM.APIKey, "CW_LLM_API_KEY")
	overrideString(&cfg.LLM.Model, "CW_LLM_MODEL")
	overrideString(&cfg.LLM.VisionModel, "CW_LLM_VISION_MODEL")
	overrideInt(&cfg.LLM.MaxTokens, "CW_LLM_MAX_TOKENS")
	overrideFloat(&cfg.LLM.Temperature, "CW_LLM_TEMPERATURE")
	overrideInt(&cfg.LLM.TimeoutMS, "CW_LLM_TIMEOUT_MS")
	overrideInt(&cfg.LLM.CacheTTLMinute, "CW_LLM_MODEL_CACHE_TTL_MINUTES")
	overrideString(&cfg.Vision.Mode, "CW_VISION_MODE")
	overrideString(&cfg.Vision.Command, "CW_VISION_COMMAND")
	overrideInt(&cfg.Vision.TimeoutMS, "CW_VISION_TIMEOUT_MS")
	overrideString(&cfg.TTS.Interpreter, "CW_TTS_INTERPRETER")
	overrideString(&cfg.TTS.BridgePath, "CW_TTS_BRIDGE_PATH")
	overrideString(&cfg.TTS.Voice, "CW_TTS_VOICE")
	overrideFloat(&cfg.TTS.Speed, "CW_TTS_SPEED")
	overrideInt(&cfg.TTS.ProbeTimeoutMS, "CW_TTS_PROBE_TIMEOUT_MS")
	overrideInt(&cfg.TTS.VerifyTimeoutMS, "CW_TTS_VERIFY_TIMEOUT_MS")
	overrideInt(&cfg.TTS.SynthTimeoutMS, "CW_TTS_SYNTH_TIMEOUT_MS")
	overrideStringSlice(&cfg.Playback.Players, "CW_PLAYBACK_PLAYERS")
	overrideInt(&cfg.Playback.PollIntervalMS, "CW_PLAYBACK_POLL_INTERVAL_MS")
	overrideString(&cfg.History.Path, "CW_HISTORY_PATH")
	overrideInt(&cfg.History.RetentionDays, "CW_HISTORY_RETENTION_DAYS")
	overrideInt(&cfg.History.MaxRuns, "CW_HISTORY_MAX_RUNS")
	overrideString(&cfg.Settings.Path, "CW_SETTINGS_PATH")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideInt64(target *int64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if len(cfg.Hotkeys.Bindings) == 0 {
		return errors.New("hotkeys.bindings must not be empty")
	}
	for mode, chord := range cfg.Hotkeys.Bindings {
		if !knownMode(mode) {
			return fmt.Errorf("hotkeys.bindings: unknown mode %q", mode)
		}
		if strings.TrimSpace(chord) == "" {
			return fmt.Errorf("hotkeys.bindings: empty chord for mode %q", mode)
		}
	}
	if cfg.Hotkeys.RestartMaxAttempts <= 0 {
		return errors.New("hotkeys.restart_max_attempts must be >= 1")
	}
	if cfg.Hotkeys.RestartInitialMS <= 0 {
		return errors.New("hotkeys.restart_initial_delay_ms must be positive")
	}
	switch cfg.Recording.Mode {
	case "exec", "mock":
	default:
		return errors.New("recording.mode must be one of exec|mock")
	}
	if cfg.Recording.Mode == "exec" && cfg.Recording.Command == "" {
		return errors.New("recording.command must be set when mode=exec")
	}
	if cfg.Recording.SampleRate <= 0 {
		return errors.New("recording.sample_rate must be positive")
	}
	if cfg.Recording.Channels <= 0 {
		return errors.New("recording.channels must be positive")
	}
	if cfg.Recording.MinBytes <= 0 {
		return errors.New("recording.min_bytes must be positive")
	}
	if cfg.Recording.GraceMS < 0 {
		return errors.New("recording.grace_ms must be >= 0")
	}
	if cfg.Pipelines.TimeoutMS <= 0 {
		return errors.New("pipelines.timeout_ms must be positive")
	}
	if cfg.Pipelines.ClipboardTtsMaxChars <= 0 {
		return errors.New("pipelines.clipboard_tts_max_chars must be positive")
	}
	switch cfg.Transcribe.Mode {
	case "exec", "mock":
	default:
		return errors.New("transcribe.mode must be one of exec|mock")
	}
	if cfg.Transcribe.Mode == "exec" && cfg.Transcribe.Command == "" {
		return errors.New("transcribe.command must be set when mode=exec")
	}
	switch cfg.LLM.Mode {
	case "http", "mock":
	default:
		return errors.New("llm.mode must be one of http|mock")
	}
	if cfg.LLM.Mode == "http" && cfg.LLM.Endpoint == "" {
		return errors.New("llm.endpoint must be set when mode=http")
	}
	if cfg.LLM.MaxTokens < 0 {
		return errors.New("llm.max_tokens must be >= 0")
	}
	if cfg.LLM.CacheTTLMinute <= 0 {
		return errors.New("llm.model_cache_ttl_minutes must be positive")
	}
	switch cfg.Vision.Mode {
	case "exec", "mock":
	default:
		return errors.New("vision.mode must be one of exec|mock")
	}
	if cfg.Vision.Mode == "exec" && cfg.Vision.Command == "" {
		return errors.New("vision.command must be set when mode=exec")
	}
	if cfg.TTS.Speed < 0.5 || cfg.TTS.Speed > 2.0 {
		return errors.New("tts.speed must be within [0.5, 2.0]")
	}
	if cfg.TTS.ProbeTimeoutMS <= 0 || cfg.TTS.VerifyTimeoutMS <= 0 || cfg.TTS.SynthTimeoutMS <= 0 {
		return errors.New("tts timeouts must be positive")
	}
	if len(cfg.Playback.Players) == 0 {
		return errors.New("playback.players must not be empty")
	}
	if cfg.Playback.PollIntervalMS <= 0 {
		return errors.New("playback.poll_interval_ms must be positive")
	}
	if cfg.History.RetentionDays < 0 {
		return errors.New("history.retention_days must be >= 0")
	}
	if cfg.History.MaxRuns < 0 {
		return errors.New("history.max_runs must be >= 0")
	}
	if cfg.Settings.Path == "" {
		return errors.New("settings.path must not be empty")
	}
	return nil
}

func knownMode(name string) bool {
	switch name {
	case "transcribe", "prompt_llm", "clipboard_prompt_llm",
		"vision_capture", "speech_vision", "clipboard_tts":
		return true
	}
	return false
}
