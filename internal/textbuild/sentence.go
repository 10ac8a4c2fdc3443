package textbuild

import (
	"unicode"
	"unicode/utf8"
)

// SentenceState is the quote/sentence snapshot left behind by an addition.
type SentenceState struct {
	QuoteOpen   bool
	NewSentence bool
}

// initialState opens a sentence with no quote open.
var initialState = SentenceState{NewSentence: true}

// Quotes holds the glyphs rendered for an opening and a closing quote.
type Quotes struct {
	Open  string
	Close string
}

// DefaultQuotes are Russian guillemets.
var DefaultQuotes = Quotes{Open: "«", Close: "»"}

// render derives the next state from prev and returns the rendered token and
// its effective syntax.
func (s SentenceState) render(tok SmartToken, quotes Quotes) (SentenceState, string, Syntax) {
	next := s
	text, syntax := tok.Text, tok.Syntax

	if tok.Quote {
		next.QuoteOpen = !next.QuoteOpen
		if next.QuoteOpen {
			text, syntax = quotes.Open, leanRight
		} else {
			text, syntax = quotes.Close, leanLeft
		}
	}

	switch {
	case syntax.EndsSentence:
		next.NewSentence = true
	case syntax.Word && next.NewSentence:
		text = capitalize(text)
		next.NewSentence = false
	}
	return next, text, syntax
}

// capitalize upper-cases the first rune only.
func capitalize(word string) string {
	r, size := utf8.DecodeRuneInString(word)
	if r == utf8.RuneError {
		return word
	}
	return string(unicode.ToUpper(r)) + word[size:]
}
