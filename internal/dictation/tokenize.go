package dictation

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Tokenize normalizes a recognizer hypothesis into lowercase words.
func Tokenize(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	// Casers carry state and are not shared between goroutines.
	return strings.Fields(cases.Lower(language.Russian).String(text))
}

// normalizeWords lowercases and trims configured command words the same way
// Tokenize treats recognizer output.
func normalizeWords(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		out = append(out, Tokenize(w)...)
	}
	return out
}

// Command is what a stop word asks the session to do.
type Command int

const (
	CommandNone Command = iota
	CommandSend
	CommandEdit
	CommandCancel
)

func (c Command) String() string {
	switch c {
	case CommandNone:
		return "none"
	case CommandSend:
		return "send"
	case CommandEdit:
		return "edit"
	case CommandCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// StopWords maps a spoken word to the command it triggers.
type StopWords map[string]Command

func NewStopWords(send, edit, cancel []string) StopWords {
	sw := make(StopWords)
	add := func(words []string, c Command) {
		for _, w := range normalizeWords(words) {
			sw[w] = c
		}
	}
	add(send, CommandSend)
	add(edit, CommandEdit)
	add(cancel, CommandCancel)
	return sw
}

// Find returns the position and command of the first stop word in tokens, or
// -1 and CommandNone.
func (sw StopWords) Find(tokens []string) (int, Command) {
	for i, t := range tokens {
		if c, ok := sw[t]; ok {
			return i, c
		}
	}
	return -1, CommandNone
}
