// Package textbuild reconstructs dictated text from a stream of revisable
// recognizer token sequences.
//
// A Builder keeps an append-only log of additions (a word or a punctuation
// symbol) and removals (voice "delete" and "clear"). When a partial result
// revises earlier words, the log is rewound to the first invalidated token and
// replayed from there, so committed content is never recomputed.
//
// A Builder is not safe for concurrent use; callers serialize Apply per
// dictation session.
package textbuild

import "slices"

// Default command words.
var (
	DefaultDeleteWords = []string{"удалить"}
	DefaultClearWords  = []string{"очистить"}
)

// Option configures a Builder.
type Option func(*Builder)

// WithPhrases replaces the smart-token table.
func WithPhrases(t *PhraseTable) Option {
	return func(b *Builder) {
		if t != nil {
			b.phrases = t
		}
	}
}

// WithDeleteWords sets the words that undo the last visible addition.
func WithDeleteWords(words ...string) Option {
	return func(b *Builder) {
		if len(words) > 0 {
			b.deleteWords = wordSet(words)
		}
	}
}

// WithClearWords sets the words that empty the text.
func WithClearWords(words ...string) Option {
	return func(b *Builder) {
		if len(words) > 0 {
			b.clearWords = wordSet(words)
		}
	}
}

// WithQuotes sets the opening and closing quote glyphs.
func WithQuotes(q Quotes) Option {
	return func(b *Builder) {
		if q.Open != "" && q.Close != "" {
			b.quotes = q
		}
	}
}

// Stats is a snapshot of builder internals for logging and metrics.
type Stats struct {
	Tokens  int
	Frozen  int
	Actions int
	// Rewound is the number of log entries discarded by the last Apply.
	Rewound int
	// Replayed is the number of raw tokens processed by the last Apply.
	Replayed int
}

// Builder is one dictation session's text state.
type Builder struct {
	phrases     *PhraseTable
	deleteWords map[string]struct{}
	clearWords  map[string]struct{}
	quotes      Quotes

	tokens      []string
	frozen      int
	prevPartial []string
	log         actionLog

	text      string
	committed string
	rewound   int
	replayed  int
}

// NewBuilder returns an empty Builder using the default vocabulary unless
// overridden by opts.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		phrases:     NewPhraseTable(DefaultPhrases()),
		deleteWords: wordSet(DefaultDeleteWords),
		clearWords:  wordSet(DefaultClearWords),
		quotes:      DefaultQuotes,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Text is the current reconstructed text.
func (b *Builder) Text() string { return b.text }

// Committed is the text as of the last final result.
func (b *Builder) Committed() string { return b.committed }

// Stats reports the current log sizes and the work done by the last Apply.
func (b *Builder) Stats() Stats {
	return Stats{
		Tokens:   len(b.tokens),
		Frozen:   b.frozen,
		Actions:  b.log.len(),
		Rewound:  b.rewound,
		Replayed: b.replayed,
	}
}

// Reset empties the session: tokens, log, boundary and text.
func (b *Builder) Reset() {
	b.tokens = b.tokens[:0]
	b.frozen = 0
	b.prevPartial = nil
	b.log.reset()
	b.text = ""
	b.committed = ""
	b.rewound = 0
	b.replayed = 0
}

// Apply merges a recognizer result into the text and returns the current
// text. tokens are the lowercase words of the utterance since the last final
// result. A final result freezes everything received so far.
//
// Empty input and a repeat of the previous partial leave the text unchanged.
func (b *Builder) Apply(tokens []string, final bool) string {
	b.rewound, b.replayed = 0, 0
	if len(tokens) == 0 {
		return b.text
	}

	diff := firstDiff(b.prevPartial, tokens)
	if diff < 0 {
		if final {
			b.finalize()
		}
		return b.text
	}

	b.tokens = append(b.tokens[:b.frozen], tokens...)
	i := b.frozen + diff
	b.rewound = b.log.rewind(i)
	for ; i < len(b.tokens); i++ {
		b.replay(i)
		b.replayed++
	}
	b.text = b.renderedAt(b.log.current())

	if final {
		b.finalize()
	} else {
		b.prevPartial = slices.Clone(tokens)
	}
	return b.text
}

func (b *Builder) finalize() {
	b.frozen = len(b.tokens)
	b.prevPartial = nil
	b.committed = b.text
}

// firstDiff returns the first position where a and b differ, the length of
// the shorter one when one is a prefix of the other, or -1 when they are equal.
func firstDiff(a, b []string) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	if len(a) == len(b) {
		return -1
	}
	return n
}

// replay appends the log entry for raw token i.
func (b *Builder) replay(i int) {
	token := b.tokens[i]

	if _, ok := b.clearWords[token]; ok {
		b.log.append(Action{Kind: KindRemoval, Tokens: Span{i, i}, Base: none})
		return
	}
	if _, ok := b.deleteWords[token]; ok {
		target := none
		if v := b.log.current(); v != none {
			target = b.log.at(v).Base
		}
		b.log.append(Action{Kind: KindRemoval, Tokens: Span{i, i}, Base: target})
		return
	}

	tok, spoken, base, first := b.match(i)
	prevState := initialState
	prev := b.log.visible(base)
	if prev != none {
		prevState = b.log.at(prev).State
	}
	state, text, syntax := prevState.render(tok, b.quotes)

	rendered := text
	if prev != none {
		p := b.log.at(prev)
		if p.Syntax.LeanRight || syntax.LeanLeft {
			rendered = p.Rendered + text
		} else {
			rendered = p.Rendered + " " + text
		}
	}

	b.log.append(Action{
		Kind:     KindAddition,
		Tokens:   Span{first, i},
		Base:     base,
		Spoken:   spoken,
		Text:     text,
		Syntax:   syntax,
		State:    state,
		Rendered: rendered,
	})
}

// match finds the longest phrase that ends at raw token i and spans whole
// visible additions. It returns the smart token, the words it was spoken as,
// the log position the new addition builds on and the first raw token it
// consumes. A plain word builds on the tail of the log.
func (b *Builder) match(i int) (SmartToken, []string, int, int) {
	tail := b.log.len() - 1
	token := b.tokens[i]
	word := SmartToken{Text: token, Syntax: plainWord}
	maxWords := b.phrases.MaxWords()

	// Visible additions newest first, while their words still fit in a
	// phrase together with token i.
	var absorbed []int
	words := 1
	for j := b.log.current(); j != none; {
		a := b.log.at(j)
		words += len(a.Spoken)
		if words > maxWords {
			break
		}
		absorbed = append(absorbed, j)
		j = b.log.visible(a.Base)
	}

	// Candidate windows, longest first: the words of the k most recent
	// visible additions followed by token i.
	windows := make([][]string, 0, len(absorbed)+1)
	for k := len(absorbed); k >= 0; k-- {
		window := make([]string, 0, maxWords)
		for n := k - 1; n >= 0; n-- {
			window = append(window, b.log.at(absorbed[n]).Spoken...)
		}
		windows = append(windows, append(window, token))
	}

	tok, idx, ok := b.phrases.Longest(windows)
	if !ok {
		return word, []string{token}, tail, i
	}
	k := len(absorbed) - idx
	if k == 0 {
		return tok, windows[idx], tail, i
	}
	oldest := b.log.at(absorbed[k-1])
	return tok, windows[idx], oldest.Base, oldest.Tokens.First
}

func (b *Builder) renderedAt(pos int) string {
	if pos == none {
		return ""
	}
	return b.log.at(pos).Rendered
}

func wordSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
