package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if !cfg.Dictation.Enabled || cfg.Dictation.Sink != "bus" {
		t.Fatalf("expected dictation enabled with bus sink, got %+v", cfg.Dictation)
	}
	if cfg.Dictation.QuoteOpen != "«" || cfg.Dictation.QuoteClose != "»" {
		t.Fatalf("unexpected default quotes %q %q", cfg.Dictation.QuoteOpen, cfg.Dictation.QuoteClose)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOQA_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("LOQA_BUS_USERNAME", "alice")
	t.Setenv("LOQA_BUS_PASSWORD", "secret")
	t.Setenv("LOQA_BUS_TLS_INSECURE", "true")
	t.Setenv("LOQA_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("LOQA_BUS_STORE_DIR", "/tmp/nats")
	t.Setenv("LOQA_EVENT_STORE_PATH", "./tmp.db")
	t.Setenv("LOQA_EVENT_STORE_RETENTION_MODE", "persistent")
	t.Setenv("LOQA_EVENT_STORE_RETENTION_DAYS", "7")
	t.Setenv("LOQA_EVENT_STORE_MAX_SESSIONS", "123")
	t.Setenv("LOQA_EVENT_STORE_VACUUM_ON_START", "true")
	t.Setenv("LOQA_DICTATION_SEND_WORDS", "send, done")
	t.Setenv("LOQA_DICTATION_SINK", "clipboard")
	t.Setenv("LOQA_DICTATION_SESSION_IDLE_MS", "1500")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if !cfg.Bus.TLSInsecure {
		t.Fatal("expected tls insecure override true")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.Bus.StoreDir != "/tmp/nats" {
		t.Fatalf("expected store dir override")
	}
	if cfg.EventStore.Path != "./tmp.db" {
		t.Fatalf("expected event store path override")
	}
	if cfg.EventStore.RetentionMode != "persistent" {
		t.Fatalf("expected event store retention mode override")
	}
	if cfg.EventStore.RetentionDays != 7 {
		t.Fatalf("expected event store retention days override")
	}
	if cfg.EventStore.MaxSessions != 123 {
		t.Fatalf("expected event store max sessions override")
	}
	if !cfg.EventStore.VacuumOnStart {
		t.Fatalf("expected event store vacuum flag override")
	}
	if strings.Join(cfg.Dictation.SendWords, "|") != "send|done" {
		t.Fatalf("expected send words override, got %v", cfg.Dictation.SendWords)
	}
	if cfg.Dictation.Sink != "clipboard" {
		t.Fatalf("expected sink override")
	}
	if cfg.Dictation.SessionIdleMS != 1500 {
		t.Fatalf("expected session idle override")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loqa.yaml")
	data := `runtime_name: dictate-test
dictation:
  send_words: [send]
  edit_words: []
  cancel_words: [cancel]
  delete_words: [scratch]
  clear_words: [wipe]
  phrases:
    - spoken: new line
      text: "\n"
      lean_left: true
      lean_right: true
    - spoken: quote
      quote: true
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RuntimeName != "dictate-test" {
		t.Fatalf("runtime name = %q", cfg.RuntimeName)
	}
	if len(cfg.Dictation.Phrases) != 2 || cfg.Dictation.Phrases[0].Text != "\n" || !cfg.Dictation.Phrases[1].Quote {
		t.Fatalf("unexpected phrases %+v", cfg.Dictation.Phrases)
	}
	if cfg.Dictation.QuoteOpen != "«" {
		t.Fatalf("unset keys must keep defaults")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateDictation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*DictationConfig)
		want   string
	}{
		{"unknown sink", func(d *DictationConfig) { d.Sink = "keyboard" }, "dictation.sink"},
		{"negative idle", func(d *DictationConfig) { d.SessionIdleMS = -1 }, "session_idle_ms"},
		{"half quotes", func(d *DictationConfig) { d.QuoteClose = "" }, "quote_open"},
		{"word reused", func(d *DictationConfig) { d.CancelWords = append(d.CancelWords, "удалить") }, "appears in both"},
		{"empty word", func(d *DictationConfig) { d.SendWords = []string{" "} }, "empty words"},
		{"phrase without text", func(d *DictationConfig) { d.Phrases = []PhraseConfig{{Spoken: "x"}} }, "text must be set"},
		{"phrase without words", func(d *DictationConfig) { d.Phrases = []PhraseConfig{{Text: "x"}} }, "spoken must not be empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg.Dictation)
			err := validate(cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}

	cfg := Default()
	cfg.Dictation.Enabled = false
	cfg.Dictation.Sink = "keyboard"
	if err := validate(cfg); err != nil {
		t.Fatalf("disabled dictation must not be validated: %v", err)
	}
}
