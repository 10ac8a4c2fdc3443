package dictation

import (
	"context"
	"errors"
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/loqalabs/loqa-dictate/internal/bus"
	"github.com/loqalabs/loqa-dictate/internal/config"
	"github.com/loqalabs/loqa-dictate/internal/protocol"
)

// Sink hands finished text to its output target.
type Sink interface {
	Deliver(ctx context.Context, d protocol.Delivery) error
}

// BusSink publishes deliveries for an external text injector.
type BusSink struct {
	bus *bus.Client
}

func NewBusSink(busClient *bus.Client) *BusSink {
	return &BusSink{bus: busClient}
}

func (s *BusSink) Deliver(_ context.Context, d protocol.Delivery) error {
	return s.bus.PublishJSON(protocol.SubjectDictationSent, d)
}

// ClipboardSink copies deliveries to the system clipboard so they can be
// pasted into the focused window.
type ClipboardSink struct {
	write func(string) error
}

var ErrClipboardUnsupported = errors.New("clipboard is not supported on this system")

func NewClipboardSink() (*ClipboardSink, error) {
	if clipboard.Unsupported {
		return nil, ErrClipboardUnsupported
	}
	return &ClipboardSink{write: clipboard.WriteAll}, nil
}

func (s *ClipboardSink) Deliver(ctx context.Context, d protocol.Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	text := d.Text
	if d.Channel != "" {
		text = "/" + d.Channel + " " + text
	}
	if err := s.write(text); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	return nil
}

// NewSink builds the sink named by cfg.Sink.
func NewSink(cfg config.DictationConfig, busClient *bus.Client) (Sink, error) {
	switch cfg.Sink {
	case "", "bus":
		return NewBusSink(busClient), nil
	case "clipboard":
		return NewClipboardSink()
	default:
		return nil, fmt.Errorf("unknown dictation sink %q", cfg.Sink)
	}
}
