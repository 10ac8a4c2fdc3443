package dictation

import (
	"github.com/loqalabs/loqa-dictate/internal/config"
	"github.com/loqalabs/loqa-dictate/internal/textbuild"
)

// BuilderOptions translates the dictation config into engine options. The
// phrase table is built once and shared by every session.
func BuilderOptions(cfg config.DictationConfig) []textbuild.Option {
	var rows []textbuild.Phrase
	if !cfg.ReplacePhrases {
		rows = textbuild.DefaultPhrases()
	}
	for _, p := range cfg.Phrases {
		rows = append(rows, textbuild.Phrase{
			Spoken: p.Spoken,
			Text:   p.Text,
			Syntax: textbuild.Syntax{
				LeanLeft:     p.LeanLeft,
				LeanRight:    p.LeanRight,
				EndsSentence: p.EndsSentence,
			},
			Quote: p.Quote,
		})
	}

	opts := []textbuild.Option{
		textbuild.WithPhrases(textbuild.NewPhraseTable(rows)),
		textbuild.WithDeleteWords(normalizeWords(cfg.DeleteWords)...),
		textbuild.WithClearWords(normalizeWords(cfg.ClearWords)...),
	}
	if cfg.QuoteOpen != "" && cfg.QuoteClose != "" {
		opts = append(opts, textbuild.WithQuotes(textbuild.Quotes{Open: cfg.QuoteOpen, Close: cfg.QuoteClose}))
	}
	return opts
}

// StopWordsFromConfig collects the send, edit and cancel words.
func StopWordsFromConfig(cfg config.DictationConfig) StopWords {
	return NewStopWords(cfg.SendWords, cfg.EditWords, cfg.CancelWords)
}
