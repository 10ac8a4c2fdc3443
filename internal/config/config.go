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
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
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
	EventStore  EventStoreConfig `yaml:"event_store"`
	STT         STTConfig        `yaml:"stt"`
	Dictation   DictationConfig  `yaml:"dictation"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type STTConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Mode            string `yaml:"mode"` // script, exec
	Command         string `yaml:"command"`
	Script          string `yaml:"script"`
	ModelPath       string `yaml:"model_path"`
	Language        string `yaml:"language"`
	SampleRate      int    `yaml:"sample_rate"`
	Channels        int    `yaml:"channels"`
	FrameDurationMS int    `yaml:"frame_duration_ms"`
	PartialEveryMS  int    `yaml:"partial_every_ms"`
	PublishInterim  bool   `yaml:"publish_interim"`
}

// PhraseConfig adds or overrides one spoken punctuation phrase.
type PhraseConfig struct {
	Spoken       string `yaml:"spoken"`
	Text         string `yaml:"text"`
	LeanLeft     bool   `yaml:"lean_left"`
	LeanRight    bool   `yaml:"lean_right"`
	EndsSentence bool   `yaml:"ends_sentence"`
	Quote        bool   `yaml:"quote"`
}

type DictationConfig struct {
	Enabled        bool           `yaml:"enabled"`
	DeleteWords    []string       `yaml:"delete_words"`
	ClearWords     []string       `yaml:"clear_words"`
	SendWords      []string       `yaml:"send_words"`
	EditWords      []string       `yaml:"edit_words"`
	CancelWords    []string       `yaml:"cancel_words"`
	QuoteOpen      string         `yaml:"quote_open"`
	QuoteClose     string         `yaml:"quote_close"`
	Phrases        []PhraseConfig `yaml:"phrases"`
	ReplacePhrases bool           `yaml:"replace_phrases"`
	Sink           string         `yaml:"sink"` // bus, clipboard
	SessionIdleMS  int            `yaml:"session_idle_ms"`
	PrivacyScope   string         `yaml:"privacy_scope"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-dictate",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/loqa-dictate.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		STT: STTConfig{
			Enabled:         false,
			Mode:            "script",
			Language:        "ru-RU",
			SampleRate:      16000,
			Channels:        1,
			FrameDurationMS: 100,
			PartialEveryMS:  300,
			PublishInterim:  true,
		},
		Dictation: DictationConfig{
			Enabled:       true,
			DeleteWords:   []string{"удалить"},
			ClearWords:    []string{"очистить"},
			SendWords:     []string{"отправить", "готово", "окей", "ок"},
			EditWords:     []string{"дописать"},
			CancelWords:   []string{"сброс", "отмена"},
			QuoteOpen:     "«",
			QuoteClose:    "»",
			Sink:          "bus",
			SessionIdleMS: 10 * 60 * 1000,
			PrivacyScope:  "local",
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
	overrideString(&cfg.RuntimeName, "LOQA_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LOQA_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "LOQA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LOQA_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "LOQA_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "LOQA_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LOQA_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "LOQA_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOQA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOQA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "LOQA_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "LOQA_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "LOQA_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "LOQA_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "LOQA_EVENT_STORE_VACUUM_ON_START")
	overrideBool(&cfg.STT.Enabled, "LOQA_STT_ENABLED")
	overrideString(&cfg.STT.Mode, "LOQA_STT_MODE")
	overrideString(&cfg.STT.Command, "LOQA_STT_COMMAND")
	overrideString(&cfg.STT.Script, "LOQA_STT_SCRIPT")
	overrideString(&cfg.STT.ModelPath, "LOQA_STT_MODEL_PATH")
	overrideString(&cfg.STT.Language, "LOQA_STT_LANGUAGE")
	overrideInt(&cfg.STT.SampleRate, "LOQA_STT_SAMPLE_RATE")
	overrideInt(&cfg.STT.Channels, "LOQA_STT_CHANNELS")
	overrideInt(&cfg.STT.FrameDurationMS, "LOQA_STT_FRAME_DURATION_MS")
	overrideInt(&cfg.STT.PartialEveryMS, "LOQA_STT_PARTIAL_EVERY_MS")
	overrideBool(&cfg.STT.PublishInterim, "LOQA_STT_PUBLISH_INTERIM")
	overrideBool(&cfg.Dictation.Enabled, "LOQA_DICTATION_ENABLED")
	overrideStringSlice(&cfg.Dictation.DeleteWords, "LOQA_DICTATION_DELETE_WORDS")
	overrideStringSlice(&cfg.Dictation.ClearWords, "LOQA_DICTATION_CLEAR_WORDS")
	overrideStringSlice(&cfg.Dictation.SendWords, "LOQA_DICTATION_SEND_WORDS")
	overrideStringSlice(&cfg.Dictation.EditWords, "LOQA_DICTATION_EDIT_WORDS")
	overrideStringSlice(&cfg.Dictation.CancelWords, "LOQA_DICTATION_CANCEL_WORDS")
	overrideString(&cfg.Dictation.QuoteOpen, "LOQA_DICTATION_QUOTE_OPEN")
	overrideString(&cfg.Dictation.QuoteClose, "LOQA_DICTATION_QUOTE_CLOSE")
	overrideString(&cfg.Dictation.Sink, "LOQA_DICTATION_SINK")
	overrideInt(&cfg.Dictation.SessionIdleMS, "LOQA_DICTATION_SESSION_IDLE_MS")
	overrideString(&cfg.Dictation.PrivacyScope, "LOQA_DICTATION_PRIVACY_SCOPE")
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
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.STT.Enabled {
		switch cfg.STT.Mode {
		case "script", "exec":
		default:
			return errors.New("stt.mode must be one of script|exec")
		}
		if cfg.STT.SampleRate <= 0 {
			return errors.New("stt.sample_rate must be positive")
		}
		if cfg.STT.Channels <= 0 {
			return errors.New("stt.channels must be positive")
		}
		if cfg.STT.Mode == "exec" && cfg.STT.Command == "" {
			return errors.New("stt.command must be set when mode=exec")
		}
	}
	if cfg.Dictation.Enabled {
		if err := validateDictation(cfg.Dictation); err != nil {
			return err
		}
	}
	return nil
}

func validateDictation(cfg DictationConfig) error {
	switch cfg.Sink {
	case "bus", "clipboard":
	default:
		return errors.New("dictation.sink must be one of bus|clipboard")
	}
	if cfg.SessionIdleMS < 0 {
		return errors.New("dictation.session_idle_ms must be >= 0")
	}
	if (cfg.QuoteOpen == "") != (cfg.QuoteClose == "") {
		return errors.New("dictation.quote_open and dictation.quote_close must be set together")
	}
	if cfg.PrivacyScope == "" {
		return errors.New("dictation.privacy_scope must not be empty")
	}

	// A word may only have one meaning.
	seen := make(map[string]string)
	groups := []struct {
		name  string
		words []string
	}{
		{"delete_words", cfg.DeleteWords},
		{"clear_words", cfg.ClearWords},
		{"send_words", cfg.SendWords},
		{"edit_words", cfg.EditWords},
		{"cancel_words", cfg.CancelWords},
	}
	for _, g := range groups {
		for _, w := range g.words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w == "" {
				return fmt.Errorf("dictation.%s must not contain empty words", g.name)
			}
			if prev, ok := seen[w]; ok && prev != g.name {
				return fmt.Errorf("dictation word %q appears in both %s and %s", w, prev, g.name)
			}
			seen[w] = g.name
		}
	}
	for i, p := range cfg.Phrases {
		if strings.TrimSpace(p.Spoken) == "" {
			return fmt.Errorf("dictation.phrases[%d].spoken must not be empty", i)
		}
		if p.Text == "" && !p.Quote {
			return fmt.Errorf("dictation.phrases[%d].text must be set unless quote is true", i)
		}
	}
	return nil
}
