package bus

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/loqalabs/loqa-dictate/internal/config"
	"github.com/loqalabs/loqa-dictate/internal/natsserver"
	"github.com/loqalabs/loqa-dictate/internal/protocol"
	"github.com/nats-io/nats.go"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestConnectRequiresServers(t *testing.T) {
	if _, err := Connect(context.Background(), config.BusConfig{}, newLogger()); err == nil {
		t.Fatal("expected error without servers")
	}
}

func TestPublishJSON(t *testing.T) {
	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1}, newLogger())
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	client, err := Connect(context.Background(), config.BusConfig{Servers: []string{srv.ClientURL()}, ConnectTimeout: 1000}, newLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)
	if !client.Healthy() {
		t.Fatal("client not healthy after connect")
	}

	msgs := make(chan *nats.Msg, 1)
	if _, err := client.Conn().ChanSubscribe(protocol.SubjectDictationCue, msgs); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := client.PublishJSON(protocol.SubjectDictationCue, protocol.Cue{SessionID: "s", Kind: protocol.CueSendingComplete}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := client.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}

	select {
	case msg := <-msgs:
		var cue protocol.Cue
		if err := json.Unmarshal(msg.Data, &cue); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if cue.Kind != protocol.CueSendingComplete {
			t.Fatalf("cue = %+v", cue)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	if err := client.PublishJSON(protocol.SubjectDictationCue, make(chan int)); err == nil {
		t.Fatal("expected marshal error")
	}
}
