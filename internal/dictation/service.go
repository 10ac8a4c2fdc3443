// Package dictation turns recognizer transcripts on the bus into dictated
// text. Each recognizer session owns one textbuild.Builder; stop words hand
// the text to a Sink and reset the session.
package dictation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-dictate/internal/bus"
	"github.com/loqalabs/loqa-dictate/internal/config"
	"github.com/loqalabs/loqa-dictate/internal/eventstore"
	"github.com/loqalabs/loqa-dictate/internal/protocol"
	"github.com/loqalabs/loqa-dictate/internal/textbuild"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

// DefaultSessionID is used for transcripts that carry no session id.
const DefaultSessionID = "default"

// Recorder is the audit trail the service writes to.
type Recorder interface {
	AppendSession(ctx context.Context, sessionID, actorID, privacy string) error
	AppendEvent(ctx context.Context, evt eventstore.Event) error
}

type Service struct {
	cfg      config.DictationConfig
	bus      *bus.Client
	sink     Sink
	recorder Recorder
	metrics  *Metrics
	tracer   trace.Tracer
	log      *slog.Logger
	options  []textbuild.Option
	stops    StopWords
	clock    func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session

	ctx    context.Context
	cancel context.CancelFunc
	subs   []*nats.Subscription
	wg     sync.WaitGroup
	ready  atomic.Bool
}

// NewService wires a dictation service. recorder may be nil; nil metrics are
// discarded.
func NewService(parent context.Context, cfg config.DictationConfig, busClient *bus.Client, sink Sink, recorder Recorder, metrics *Metrics) *Service {
	if metrics == nil {
		metrics, _ = NewMetrics(noop.NewMeterProvider())
	}
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:      cfg,
		bus:      busClient,
		sink:     sink,
		recorder: recorder,
		metrics:  metrics,
		tracer:   otel.Tracer(instrumentationName),
		log:      busClient.Logger().With(slog.String("component", "dictation")),
		options:  BuilderOptions(cfg),
		stops:    StopWordsFromConfig(cfg),
		clock:    time.Now,
		sessions: make(map[string]*Session),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	handlers := []struct {
		subject string
		handler nats.MsgHandler
	}{
		{protocol.SubjectTranscriptAll, s.handleTranscript},
		{protocol.SubjectDictationControl, s.handleControl},
	}
	for _, h := range handlers {
		sub, err := s.bus.Conn().Subscribe(h.subject, h.handler)
		if err != nil {
			s.unsubscribe()
			return fmt.Errorf("subscribe %s: %w", h.subject, err)
		}
		s.subs = append(s.subs, sub)
	}

	if idle := time.Duration(s.cfg.SessionIdleMS) * time.Millisecond; idle > 0 {
		s.wg.Add(1)
		go s.evictLoop(idle)
	}

	s.ready.Store(true)
	s.log.Info("dictation service started", slog.String("sink", s.cfg.Sink))
	return nil
}

func (s *Service) Close() {
	s.cancel()
	s.unsubscribe()
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return !s.cfg.Enabled || s.ready.Load()
}

// SessionCount reports the number of live sessions.
func (s *Service) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Service) unsubscribe() {
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
	s.subs = nil
}

func (s *Service) handleTranscript(msg *nats.Msg) {
	var tr protocol.Transcript
	if err := json.Unmarshal(msg.Data, &tr); err != nil {
		s.log.Warn("failed to decode transcript", slogError(err))
		return
	}
	s.Apply(tr, msg.Subject == protocol.SubjectTranscriptFinal)
}

// Apply routes one transcript to its session and publishes the result.
func (s *Service) Apply(tr protocol.Transcript, final bool) Outcome {
	id := sessionID(tr.SessionID)
	ctx, span := s.tracer.Start(s.ctx, "dictation.apply",
		trace.WithAttributes(
			attribute.String("session.id", id),
			attribute.Bool("final", final),
			attribute.Int64("revision", int64(tr.Revision)),
		))
	defer span.End()

	session := s.session(ctx, id)
	start := time.Now()
	out := session.Apply(tr.Text, final, tr.Revision, s.clock())
	s.metrics.ApplyDuration.Record(ctx, time.Since(start).Seconds())

	span.SetAttributes(
		attribute.String("command", out.Command.String()),
		attribute.Int("tokens", out.Stats.Tokens),
		attribute.Int("rewound", out.Stats.Rewound),
		attribute.Int("replayed", out.Stats.Replayed),
	)

	if out.Dropped != "" {
		s.metrics.Dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", out.Dropped)))
		s.log.Debug("transcript dropped", slog.String("session_id", id), slog.String("reason", out.Dropped))
		return out
	}
	if out.Stats.Rewound > 0 {
		s.metrics.RewoundActions.Add(ctx, int64(out.Stats.Rewound))
	}
	if out.Changed {
		s.metrics.Updates.Add(ctx, 1)
		s.publishUpdate(id, out)
	}

	switch out.Command {
	case CommandSend, CommandEdit:
		s.deliver(ctx, session, out.Delivery, out.Command == CommandEdit)
	case CommandCancel:
		s.cancelled(ctx, id)
	}
	return out
}

func (s *Service) handleControl(msg *nats.Msg) {
	var ctl protocol.Control
	if err := json.Unmarshal(msg.Data, &ctl); err != nil {
		s.log.Warn("failed to decode dictation control", slogError(err))
		return
	}
	if err := s.Control(ctl); err != nil {
		s.log.Warn("dictation control failed", slog.String("action", ctl.Action), slogError(err))
	}
}

// Control executes a command from the mode switcher.
func (s *Service) Control(ctl protocol.Control) error {
	id := sessionID(ctl.SessionID)
	ctx, span := s.tracer.Start(s.ctx, "dictation.control",
		trace.WithAttributes(attribute.String("session.id", id), attribute.String("action", ctl.Action)))
	defer span.End()

	session := s.session(ctx, id)
	switch ctl.Action {
	case protocol.ControlStart:
		session.SetChannel(ctl.Channel)
		s.publishUpdate(id, session.Reset())
	case protocol.ControlReset:
		s.publishUpdate(id, session.Reset())
		s.audit(ctx, id, "dictation.reset", nil)
	case protocol.ControlSend:
		text, out := session.Take()
		s.publishUpdate(id, out)
		s.deliver(ctx, session, text, false)
	case protocol.ControlCancel:
		s.publishUpdate(id, session.Reset())
		s.cancelled(ctx, id)
	default:
		err := fmt.Errorf("unknown control action %q", ctl.Action)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (s *Service) deliver(ctx context.Context, session *Session, text string, editable bool) {
	if text == "" {
		s.log.Debug("send requested on empty buffer", slog.String("session_id", session.ID))
		s.metrics.Deliveries.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "empty")))
		s.audit(ctx, session.ID, "dictation.send_empty", nil)
		s.publishCue(session.ID, protocol.CueSendingError)
		return
	}

	d := protocol.Delivery{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Channel:   session.Channel(),
		Text:      text,
		Editable:  editable,
		Timestamp: s.clock().UTC(),
	}
	s.publishCue(session.ID, protocol.CueSendingStarted)
	if err := s.sink.Deliver(ctx, d); err != nil {
		trace.SpanFromContext(ctx).RecordError(err)
		s.log.Warn("delivery failed", slog.String("session_id", session.ID), slogError(err))
		s.metrics.Deliveries.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failed")))
		s.publishCue(session.ID, protocol.CueSendingError)
		return
	}

	outcome := "sent"
	if editable {
		outcome = "edit"
	}
	s.metrics.Deliveries.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	s.log.Info("dictation delivered",
		slog.String("session_id", session.ID),
		slog.String("delivery_id", d.ID),
		slog.Bool("editable", editable),
		slog.Int("length", len(text)))
	s.audit(ctx, session.ID, "dictation.sent", d)
	s.publishCue(session.ID, protocol.CueSendingComplete)
}

func (s *Service) cancelled(ctx context.Context, id string) {
	s.metrics.Deliveries.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "cancelled")))
	s.audit(ctx, id, "dictation.cancelled", nil)
	s.publishCue(id, protocol.CueEditingCancelled)
}

func (s *Service) publishUpdate(id string, out Outcome) {
	update := protocol.DictationUpdate{
		SessionID: id,
		Text:      out.Text,
		Committed: out.Committed,
		Final:     out.Final,
		Revision:  out.Revision,
		Timestamp: s.clock().UTC(),
	}
	if err := s.bus.PublishJSON(protocol.SubjectDictationUpdate, update); err != nil {
		s.log.Warn("failed to publish dictation update", slogError(err))
	}
}

func (s *Service) publishCue(id, kind string) {
	cue := protocol.Cue{SessionID: id, Kind: kind, Timestamp: s.clock().UTC()}
	if err := s.bus.PublishJSON(protocol.SubjectDictationCue, cue); err != nil {
		s.log.Warn("failed to publish cue", slog.String("kind", kind), slogError(err))
	}
}

func (s *Service) audit(ctx context.Context, id, eventType string, payload any) {
	if s.recorder == nil {
		return
	}
	var data []byte
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			s.log.Warn("failed to marshal audit payload", slogError(err))
			return
		}
	}
	evt := eventstore.Event{
		SessionID: id,
		Type:      eventType,
		Payload:   data,
		Privacy:   s.cfg.PrivacyScope,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		evt.TraceID = sc.TraceID().String()
	}
	if err := s.recorder.AppendEvent(ctx, evt); err != nil {
		s.log.Warn("failed to append audit event", slog.String("type", eventType), slogError(err))
	}
}

func (s *Service) session(ctx context.Context, id string) *Session {
	s.mu.Lock()
	session, ok := s.sessions[id]
	if !ok {
		session = NewSession(id, textbuild.NewBuilder(s.options...), s.stops, s.clock())
		s.sessions[id] = session
	}
	s.mu.Unlock()

	if !ok {
		s.metrics.ActiveSessions.Add(ctx, 1)
		s.log.Debug("dictation session opened", slog.String("session_id", id))
		if s.recorder != nil {
			if err := s.recorder.AppendSession(ctx, id, "", s.cfg.PrivacyScope); err != nil {
				s.log.Warn("failed to record session", slog.String("session_id", id), slogError(err))
			}
		}
	}
	return session
}

// Evict drops sessions that received nothing for the configured idle period
// and returns how many were dropped.
func (s *Service) Evict(now time.Time) int {
	idle := time.Duration(s.cfg.SessionIdleMS) * time.Millisecond
	if idle <= 0 {
		return 0
	}
	cutoff := now.Add(-idle)

	s.mu.Lock()
	var evicted []string
	for id, session := range s.sessions {
		if session.IdleSince(cutoff) {
			delete(s.sessions, id)
			evicted = append(evicted, id)
		}
	}
	s.mu.Unlock()

	if len(evicted) > 0 {
		s.metrics.ActiveSessions.Add(s.ctx, -int64(len(evicted)))
		s.log.Debug("evicted idle dictation sessions", slog.Int("count", len(evicted)))
	}
	return len(evicted)
}

func (s *Service) evictLoop(idle time.Duration) {
	defer s.wg.Done()
	interval := idle / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Evict(s.clock())
		}
	}
}

func sessionID(id string) string {
	if id == "" {
		return DefaultSessionID
	}
	return id
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
