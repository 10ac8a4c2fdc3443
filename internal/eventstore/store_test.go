package eventstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/loqalabs/loqa-dictate/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openTestStore(t *testing.T, cfg config.EventStoreConfig) *Store {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "events.db")
	}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	return es
}

func TestOpenEphemeral(t *testing.T) {
	ctx := context.Background()
	cfg := config.EventStoreConfig{RetentionMode: "ephemeral"}
	es, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	if es.db != nil {
		t.Fatal("ephemeral store opened a database")
	}
	if err := es.AppendEvent(ctx, Event{SessionID: "s", Type: "dictation.sent"}); err != nil {
		t.Fatalf("ephemeral append: %v", err)
	}
	events, err := es.ListRecent(ctx, "dictation.sent", 10)
	if err != nil || events != nil {
		t.Fatalf("ephemeral store returned %v, %v", events, err)
	}
}

func TestAppendAndQuery(t *testing.T) {
	es := openTestStore(t, config.EventStoreConfig{RetentionMode: "session"})
	ctx := context.Background()

	sessionID := "session-123"
	if err := es.AppendSession(ctx, sessionID, "actor-1", "local"); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := es.AppendEvent(ctx, Event{SessionID: sessionID, Type: "dictation.sent", Payload: []byte(`{"text":"Привет"}`), TraceID: "abc"}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	events, err := es.ListSessionEvents(ctx, sessionID, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if string(events[0].Payload) != `{"text":"Привет"}` || events[0].TraceID != "abc" {
		t.Fatalf("unexpected event: %+v", events[0])
	}
	if events[0].CreatedAt.IsZero() {
		t.Fatal("created_at was not parsed")
	}
}

func TestAppendEventCreatesMissingSession(t *testing.T) {
	es := openTestStore(t, config.EventStoreConfig{RetentionMode: "session"})
	ctx := context.Background()

	if err := es.AppendEvent(ctx, Event{SessionID: "orphan", Type: "dictation.reset", Privacy: "local"}); err != nil {
		t.Fatalf("append event without session: %v", err)
	}
	events, err := es.ListSessionEvents(ctx, "orphan", 0)
	if err != nil || len(events) != 1 {
		t.Fatalf("expected one event, got %v, %v", events, err)
	}
}

func TestListRecentNewestFirst(t *testing.T) {
	es := openTestStore(t, config.EventStoreConfig{RetentionMode: "persistent"})
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, typ := range []string{"dictation.sent", "dictation.cancelled", "dictation.sent", "dictation.sent"} {
		evt := Event{SessionID: "s", Type: typ, Payload: []byte{byte('a' + i)}, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := es.AppendEvent(ctx, evt); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	events, err := es.ListRecent(ctx, "dictation.sent", 2)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(events) != 2 || string(events[0].Payload) != "d" || string(events[1].Payload) != "c" {
		t.Fatalf("unexpected recent events: %+v", events)
	}
}

func TestPruneByDaysAndSessions(t *testing.T) {
	es := openTestStore(t, config.EventStoreConfig{RetentionMode: "persistent", RetentionDays: 1, MaxSessions: 1})
	ctx := context.Background()

	es.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := es.AppendSession(ctx, "old-session", "actor", "local"); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := es.AppendEvent(ctx, Event{SessionID: "old-session", Type: "dictation.sent"}); err != nil {
		t.Fatalf("append event: %v", err)
	}

	es.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := es.AppendSession(ctx, "new-session", "actor", "local"); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := es.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}

	events, err := es.ListSessionEvents(ctx, "old-session", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected old session pruned")
	}
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2025, 1, 2, 3, 4, 5, 600, time.UTC)
	for _, layout := range timestampLayouts {
		if got := parseTimestamp(want.Format(layout)); !got.Equal(want) {
			t.Errorf("layout %q: got %v", layout, got)
		}
	}
	if !parseTimestamp("yesterday").IsZero() {
		t.Fatal("garbage must parse to zero time")
	}
}
