package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-dictate/internal/bus"
	"github.com/loqalabs/loqa-dictate/internal/config"
	"github.com/loqalabs/loqa-dictate/internal/protocol"
	"github.com/nats-io/nats.go"
)

// Service buffers audio frames per session and publishes partial and final
// transcripts. Revisions count up within one utterance and restart after its
// final transcript. Every utterance that receives a final frame ends with a
// final transcript, even when recognition fails.
type Service struct {
	cfg        config.STTConfig
	bus        *bus.Client
	recognizer Recognizer
	log        *slog.Logger
	clock      func() time.Time

	mu         sync.Mutex
	utterances map[string]*utterance

	ctx    context.Context
	cancel context.CancelFunc
	sub    *nats.Subscription
	wg     sync.WaitGroup
	ready  atomic.Bool
}

// utterance is the audio of one session since its last final transcript.
type utterance struct {
	pcm      []byte
	text     string
	revision uint64
	lastRun  time.Time
	running  bool
	// cut is the pcm length handed to a running final; audio past it
	// belongs to the next utterance.
	cut         int
	finalQueued bool
}

// job is one recognizer run, built under the service lock.
type job struct {
	session string
	pcm     []byte
	final   bool
}

func NewService(parent context.Context, cfg config.STTConfig, busClient *bus.Client, recognizer Recognizer) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:        cfg,
		bus:        busClient,
		recognizer: recognizer,
		log:        busClient.Logger().With(slog.String("component", "stt")),
		clock:      time.Now,
		utterances: make(map[string]*utterance),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectAudioFramePrefix+".>", s.handleFrame)
	if err != nil {
		return fmt.Errorf("subscribe audio frames: %w", err)
	}
	s.sub = sub
	s.ready.Store(true)
	s.log.Info("stt service started", slog.String("mode", s.cfg.Mode))
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return !s.cfg.Enabled || s.ready.Load()
}

func (s *Service) handleFrame(msg *nats.Msg) {
	var frame protocol.AudioFrame
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		s.log.Warn("failed to decode audio frame", slogError(err))
		return
	}

	s.mu.Lock()
	u := s.utterances[frame.SessionID]
	if u == nil {
		u = &utterance{}
		s.utterances[frame.SessionID] = u
	}
	u.pcm = append(u.pcm, frame.PCM...)
	next, ok := s.plan(frame.SessionID, u, frame.Final)
	s.mu.Unlock()

	if ok {
		s.run(next)
	}
}

// plan decides whether u needs a recognizer run now. Callers hold s.mu.
func (s *Service) plan(session string, u *utterance, final bool) (job, bool) {
	if u.running {
		if final {
			u.finalQueued = true
		}
		return job{}, false
	}
	now := s.clock()
	if !final {
		if !s.cfg.PublishInterim {
			return job{}, false
		}
		interval := time.Duration(s.cfg.PartialEveryMS) * time.Millisecond
		if !u.lastRun.IsZero() && (interval <= 0 || now.Sub(u.lastRun) < interval) {
			return job{}, false
		}
	}
	u.running = true
	u.lastRun = now
	u.cut = len(u.pcm)
	return job{session: session, pcm: append([]byte(nil), u.pcm...), final: final}, true
}

func (s *Service) run(j job) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, 45*time.Second)
		result, err := s.recognizer.Transcribe(ctx, j.pcm, s.cfg.SampleRate, s.cfg.Channels, j.final)
		cancel()
		if err != nil {
			s.log.Warn("stt transcription failed",
				slog.String("session_id", j.session),
				slog.Bool("final", j.final),
				slogError(err))
		}

		// Publishing under the lock keeps revisions in bus order.
		s.mu.Lock()
		next, ok := s.finish(j, result, err)
		s.mu.Unlock()
		if ok {
			s.run(next)
		}
	}()
}

// finish publishes the outcome of j and returns the follow-up run, if any.
// Callers hold s.mu.
func (s *Service) finish(j job, result TranscriptResult, err error) (job, bool) {
	u := s.utterances[j.session]
	if u == nil {
		return job{}, false
	}
	u.running = false

	text, confidence := result.Text, result.Confidence
	if err != nil {
		// A failed final still closes the utterance with the last hypothesis.
		text, confidence = u.text, 0
	}
	if j.final || (err == nil && text != "" && text != u.text) {
		u.revision++
		u.text = text
		s.publish(j.session, text, confidence, u.revision, j.final)
	}

	if !j.final {
		if u.finalQueued {
			u.finalQueued = false
			return s.plan(j.session, u, true)
		}
		return job{}, false
	}

	delete(s.utterances, j.session)
	rest := u.pcm[u.cut:]
	if len(rest) == 0 {
		return job{}, false
	}
	next := &utterance{pcm: append([]byte(nil), rest...)}
	s.utterances[j.session] = next
	if u.finalQueued {
		return s.plan(j.session, next, true)
	}
	return job{}, false
}

func (s *Service) publish(sessionID, text string, confidence float64, revision uint64, final bool) {
	subject := protocol.SubjectTranscriptPartial
	if final {
		subject = protocol.SubjectTranscriptFinal
	}
	msg := protocol.Transcript{
		SessionID:  sessionID,
		Text:       text,
		Partial:    !final,
		Revision:   revision,
		Timestamp:  s.clock().UTC(),
		Confidence: confidence,
	}
	if err := s.bus.PublishJSON(subject, msg); err != nil {
		s.log.Warn("failed to publish transcript", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
