package main

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/loqalabs/loqa-dictate/internal/config"
	"github.com/loqalabs/loqa-dictate/internal/eventstore"
	"github.com/loqalabs/loqa-dictate/internal/protocol"
)

func TestParseScript(t *testing.T) {
	lines, err := parseScript(strings.NewReader("# warmup\nP: привет\n\nf:  привет мир \n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []scriptLine{{Text: "привет"}, {Text: "привет мир", Final: true}}
	if len(lines) != len(want) {
		t.Fatalf("lines = %+v", lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d = %+v, want %+v", i, lines[i], want[i])
		}
	}

	if _, err := parseScript(strings.NewReader("P: ok\nпривет\n")); err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("expected line 2 error, got %v", err)
	}
	if _, err := parseScript(strings.NewReader("X: привет\n")); err == nil {
		t.Fatal("expected unknown kind error")
	}
}

func TestReplay(t *testing.T) {
	script := `P: привет
P: привет запятая мир
P: привет запятая мир
P: привет запятая мир отправить
F: привет запятая мир отправить
F: сброс
P: новый текст
`
	lines, err := parseScript(strings.NewReader(script))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var out strings.Builder
	if err := replay(config.Default().Dictation, lines, &out); err != nil {
		t.Fatalf("replay: %v", err)
	}
	want := `1 P | Привет
2 P | Привет, мир
3 P - duplicate
4 P > send: Привет, мир
5 F - draining
6 F x cancelled
7 P | Новый текст
= Новый текст
`
	if out.String() != want {
		t.Fatalf("replay output:\n%s\nwant:\n%s", out.String(), want)
	}
}

type fakeLister struct {
	events []eventstore.Event
	typ    string
	limit  int
}

func (f *fakeLister) ListRecent(_ context.Context, eventType string, limit int) ([]eventstore.Event, error) {
	f.typ, f.limit = eventType, limit
	return f.events, nil
}

func TestPrintHistory(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	payload, err := json.Marshal(protocol.Delivery{SessionID: "mic", Channel: "general", Text: "Привет, мир", Editable: true})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	lister := &fakeLister{events: []eventstore.Event{
		{SessionID: "mic", Payload: payload, CreatedAt: at},
		{SessionID: "mic", Payload: []byte("{"), CreatedAt: at},
	}}

	var out strings.Builder
	if err := printHistory(context.Background(), lister, 5, &out); err != nil {
		t.Fatalf("history: %v", err)
	}
	if lister.typ != "dictation.sent" || lister.limit != 5 {
		t.Fatalf("queried %q limit %d", lister.typ, lister.limit)
	}
	want := "2026-03-01T12:00:00Z mic /general edit: Привет, мир\n" +
		"2026-03-01T12:00:00Z mic <unreadable payload>\n"
	if out.String() != want {
		t.Fatalf("history = %q, want %q", out.String(), want)
	}
}
