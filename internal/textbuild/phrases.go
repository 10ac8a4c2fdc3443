package textbuild

import "strings"

// Syntax describes how a rendered token joins its neighbours.
type Syntax struct {
	LeanLeft     bool `yaml:"lean_left"`
	LeanRight    bool `yaml:"lean_right"`
	EndsSentence bool `yaml:"ends_sentence"`
	Word         bool `yaml:"-"`
}

var (
	leanNone    = Syntax{}
	leanLeft    = Syntax{LeanLeft: true}
	leanRight   = Syntax{LeanRight: true}
	leanBoth    = Syntax{LeanLeft: true, LeanRight: true}
	sentenceEnd = Syntax{LeanLeft: true, EndsSentence: true}
	plainWord   = Syntax{Word: true}
)

// Phrase is one row of the smart-token table.
type Phrase struct {
	Spoken string `yaml:"spoken"`
	Text   string `yaml:"text"`
	Syntax Syntax `yaml:",inline"`
	Quote  bool   `yaml:"quote"`
}

// SmartToken is the substitution produced for a recognized phrase.
type SmartToken struct {
	Text   string
	Syntax Syntax
	Quote  bool
}

// PhraseTable maps word combinations to smart tokens. It is immutable after
// construction and safe for concurrent use.
type PhraseTable struct {
	tokens   map[string]SmartToken
	maxWords int
}

// NewPhraseTable builds a table from rows. Later rows override earlier rows
// with the same spoken form.
func NewPhraseTable(rows []Phrase) *PhraseTable {
	t := &PhraseTable{tokens: make(map[string]SmartToken, len(rows))}
	for _, row := range rows {
		words := strings.Fields(strings.ToLower(row.Spoken))
		if len(words) == 0 {
			continue
		}
		t.tokens[strings.Join(words, " ")] = SmartToken{Text: row.Text, Syntax: row.Syntax, Quote: row.Quote}
		if len(words) > t.maxWords {
			t.maxWords = len(words)
		}
	}
	return t
}

// MaxWords is the length of the longest phrase in the table.
func (t *PhraseTable) MaxWords() int {
	return t.maxWords
}

// Lookup returns the smart token for exactly this word combination.
func (t *PhraseTable) Lookup(words []string) (SmartToken, bool) {
	if len(words) == 0 || len(words) > t.maxWords {
		return SmartToken{}, false
	}
	tok, ok := t.tokens[strings.Join(words, " ")]
	return tok, ok
}

// Longest tries each candidate window in order and returns the index of the
// first one that matches. Callers pass windows longest first, so the result is
// the longest matching word combination. A miss means the input is a plain
// word.
func (t *PhraseTable) Longest(windows [][]string) (SmartToken, int, bool) {
	for i, w := range windows {
		if tok, ok := t.Lookup(w); ok {
			return tok, i, true
		}
	}
	return SmartToken{}, -1, false
}

// DefaultPhrases is the built-in Russian punctuation vocabulary.
func DefaultPhrases() []Phrase {
	return []Phrase{
		{Spoken: "запятая", Text: ",", Syntax: leanLeft},
		{Spoken: "точка с запятой", Text: ";", Syntax: leanLeft},
		{Spoken: "двоеточие", Text: ":", Syntax: leanLeft},
		{Spoken: "многоточие", Text: "...", Syntax: leanLeft},

		{Spoken: "открывающая скобка", Text: "(", Syntax: leanRight},
		{Spoken: "открыть скобку", Text: "(", Syntax: leanRight},
		{Spoken: "скобка", Text: "(", Syntax: leanRight},
		{Spoken: "закрывающая скобка", Text: ")", Syntax: leanLeft},
		{Spoken: "закрыть скобку", Text: ")", Syntax: leanLeft},

		{Spoken: "кавычки", Quote: true},

		{Spoken: "дефис", Text: "-", Syntax: leanBoth},
		{Spoken: "слэш", Text: "/", Syntax: leanBoth},
		{Spoken: "обратный слэш", Text: `\`, Syntax: leanBoth},
		{Spoken: "пробел", Text: " ", Syntax: leanBoth},

		{Spoken: "тире", Text: "–", Syntax: leanNone},

		{Spoken: "точка", Text: ".", Syntax: sentenceEnd},
		{Spoken: "восклицательный знак", Text: "!", Syntax: sentenceEnd},
		{Spoken: "вопросительный знак", Text: "?", Syntax: sentenceEnd},
	}
}
