package dictation

import (
	"strings"
	"sync"
	"time"

	"github.com/loqalabs/loqa-dictate/internal/textbuild"
)

// Outcome describes what one transcript did to a session.
type Outcome struct {
	Text      string
	Committed string
	Final     bool
	// Revision counts the updates this session has published.
	Revision uint64
	Changed  bool
	// Dropped is set when the transcript was not applied: "duplicate",
	// "stale" or "draining".
	Dropped string
	Command Command
	// Delivery is the text captured by a send or edit command. It is empty when
	// the buffer was empty at the time of the command.
	Delivery string
	Stats    textbuild.Stats
}

// Session is one dictation buffer bound to a recognizer session id. Apply
// holds the session lock for exactly one transcript.
type Session struct {
	ID      string
	Started time.Time

	mu           sync.Mutex
	builder      *textbuild.Builder
	stops        StopWords
	channel      string
	lastRevision uint64
	updates      uint64
	prevPartial  string
	draining     bool
	lastSeen     time.Time
}

func NewSession(id string, builder *textbuild.Builder, stops StopWords, now time.Time) *Session {
	return &Session{
		ID:       id,
		Started:  now,
		builder:  builder,
		stops:    stops,
		lastSeen: now,
	}
}

// Apply feeds one recognizer hypothesis into the session.
//
// revision is the recognizer's per-utterance counter; zero disables the
// staleness check and 1 starts a new utterance, freezing a previous one whose
// final never came. After a stop word the session ignores the rest of the
// utterance until its final transcript, so a recognizer that keeps
// re-sending "text + stop word" does not deliver twice.
func (s *Session) Apply(text string, final bool, revision uint64, now time.Time) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSeen = now
	out := Outcome{Final: final}

	// Revision 1 opens a new utterance; close one whose final never arrived.
	if revision == 1 {
		switch {
		case s.draining:
			s.draining = false
		case s.lastRevision > 0:
			s.commitPartial()
		}
	}

	if s.draining {
		if final {
			s.draining = false
			s.lastRevision = 0
		}
		out.Dropped = "draining"
		return s.snapshot(out)
	}
	if revision != 0 && revision <= s.lastRevision {
		out.Dropped = "stale"
		return s.snapshot(out)
	}
	s.lastRevision = revision
	if final {
		s.lastRevision = 0
	}

	tokens := Tokenize(text)
	normalized := strings.Join(tokens, " ")
	if !final && normalized != "" && normalized == s.prevPartial {
		out.Dropped = "duplicate"
		return s.snapshot(out)
	}
	s.prevPartial = normalized
	if final {
		s.prevPartial = ""
	}

	pos, cmd := s.stops.Find(tokens)
	out.Command = cmd
	switch cmd {
	case CommandNone:
		before, committed := s.builder.Text(), s.builder.Committed()
		s.builder.Apply(tokens, final)
		out.Changed = s.builder.Text() != before || s.builder.Committed() != committed
	case CommandSend, CommandEdit:
		s.builder.Apply(tokens[:pos], true)
		out.Delivery = s.builder.Text()
		s.clear(!final)
		out.Changed = true
	case CommandCancel:
		s.clear(!final)
		out.Changed = true
	}

	out.Stats = s.builder.Stats()
	if out.Changed {
		s.updates++
	}
	return s.snapshot(out)
}

// Take captures the current text for an externally triggered send and resets
// the session. The returned outcome is the state right after the reset.
func (s *Session) Take() (string, Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text := s.builder.Text()
	s.clear(false)
	s.updates++
	return text, s.snapshot(Outcome{Changed: true, Stats: s.builder.Stats()})
}

// Reset empties the session without delivering anything and returns the
// state right after it.
func (s *Session) Reset() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clear(false)
	s.updates++
	return s.snapshot(Outcome{Changed: true, Stats: s.builder.Stats()})
}

func (s *Session) SetChannel(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channel = channel
}

func (s *Session) Channel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel
}

// Revision reports the number of updates published for the session.
func (s *Session) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

// IdleSince reports whether nothing reached the session after cutoff.
func (s *Session) IdleSince(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen.Before(cutoff)
}

// Snapshot reports the current text without applying anything.
func (s *Session) Snapshot() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(Outcome{Stats: s.builder.Stats()})
}

// commitPartial freezes the last partial as if its final had arrived.
func (s *Session) commitPartial() {
	if s.prevPartial != "" {
		s.builder.Apply(strings.Fields(s.prevPartial), true)
	}
	s.prevPartial = ""
	s.lastRevision = 0
}

func (s *Session) clear(drain bool) {
	s.builder.Reset()
	s.prevPartial = ""
	s.lastRevision = 0
	s.draining = drain
}

func (s *Session) snapshot(out Outcome) Outcome {
	out.Text = s.builder.Text()
	out.Committed = s.builder.Committed()
	out.Revision = s.updates
	return out
}
