package textbuild

import "fmt"

// Kind tags an Action.
type Kind uint8

const (
	KindAddition Kind = iota + 1
	KindRemoval
)

func (k Kind) String() string {
	switch k {
	case KindAddition:
		return "addition"
	case KindRemoval:
		return "removal"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// none marks a missing log position.
const none = -1

// Span is an inclusive range of raw token indices.
type Span struct {
	First int
	Last  int
}

// Action is one log entry. Base is a log index: for an addition it is the
// entry its text builds on, for a removal it is the entry that becomes
// current again. The remaining fields are set for additions only.
type Action struct {
	Kind   Kind
	Tokens Span
	Base   int

	// Spoken are the words the addition was recognized from. It differs from
	// the raw tokens in Tokens when removals sit inside a phrase.
	Spoken   []string
	Text     string
	Syntax   Syntax
	State    SentenceState
	Rendered string
}

// actionLog is an arena of actions plus the raw-token ownership index.
// Entries are only appended or truncated from the tail.
type actionLog struct {
	entries []Action
	// owner[i] is the position of the entry that first consumed raw token i.
	owner []int
}

func (l *actionLog) len() int { return len(l.entries) }

func (l *actionLog) at(i int) *Action {
	if i < 0 || i >= len(l.entries) {
		panic(fmt.Sprintf("textbuild: log position %d out of range [0,%d)", i, len(l.entries)))
	}
	return &l.entries[i]
}

// append records a and makes it the owner of its last token. Earlier tokens
// of a multi-token span keep the owner that consumed them first.
func (l *actionLog) append(a Action) int {
	pos := len(l.entries)
	if a.Base >= pos || a.Base < none {
		panic(fmt.Sprintf("textbuild: base %d does not precede position %d", a.Base, pos))
	}
	if a.Tokens.Last != len(l.owner) || a.Tokens.First > a.Tokens.Last {
		panic(fmt.Sprintf("textbuild: span %d..%d does not end at next raw token %d", a.Tokens.First, a.Tokens.Last, len(l.owner)))
	}
	l.entries = append(l.entries, a)
	l.owner = append(l.owner, pos)
	return pos
}

// visible returns the position of the addition that is current when the log
// ends at from, or none when the text is empty.
func (l *actionLog) visible(from int) int {
	for j := from; j != none; {
		a := l.at(j)
		if a.Kind == KindAddition {
			return j
		}
		if a.Base >= j {
			panic(fmt.Sprintf("textbuild: removal at %d rewinds forward to %d", j, a.Base))
		}
		j = a.Base
	}
	return none
}

// current is visible from the tail of the log.
func (l *actionLog) current() int {
	return l.visible(len(l.entries) - 1)
}

// rewind drops every entry derived from raw token i onward and forgets the
// ownership of those tokens. It returns the number of dropped entries.
func (l *actionLog) rewind(i int) int {
	if i >= len(l.owner) {
		return 0
	}
	pos := l.owner[i]
	dropped := len(l.entries) - pos
	l.entries = l.entries[:pos]
	l.owner = l.owner[:i]
	return dropped
}

func (l *actionLog) reset() {
	l.entries = l.entries[:0]
	l.owner = l.owner[:0]
}
