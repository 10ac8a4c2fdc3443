package textbuild

import (
	"strings"
	"testing"
)

func TestPhraseTable_Lookup(t *testing.T) {
	table := NewPhraseTable(DefaultPhrases())

	if got := table.MaxWords(); got != 3 {
		t.Fatalf("MaxWords = %d, want 3", got)
	}

	tests := []struct {
		spoken string
		want   string
		ok     bool
	}{
		{"запятая", ",", true},
		{"точка с запятой", ";", true},
		{"закрывающая скобка", ")", true},
		{"скобка", "(", true},
		{"тире", "–", true},
		{"собака", "", false},
		{"с запятой", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		tok, ok := table.Lookup(strings.Fields(tt.spoken))
		if ok != tt.ok || tok.Text != tt.want {
			t.Errorf("Lookup(%q) = (%q, %v), want (%q, %v)", tt.spoken, tok.Text, ok, tt.want, tt.ok)
		}
	}
}

func TestPhraseTable_LongestPrefersLongerWindow(t *testing.T) {
	table := NewPhraseTable(DefaultPhrases())
	windows := [][]string{
		{"привет", "закрывающая", "скобка"},
		{"закрывающая", "скобка"},
		{"скобка"},
	}
	tok, idx, ok := table.Longest(windows)
	if !ok || idx != 1 || tok.Text != ")" {
		t.Fatalf("Longest = (%q, %d, %v), want (\")\", 1, true)", tok.Text, idx, ok)
	}

	if _, _, ok := table.Longest([][]string{{"просто"}, {"слово"}}); ok {
		t.Fatal("expected plain word fallback")
	}
}

func TestPhraseTable_NormalizesAndOverrides(t *testing.T) {
	table := NewPhraseTable([]Phrase{
		{Spoken: "  Новая   Строка ", Text: "\n", Syntax: Syntax{LeanLeft: true, LeanRight: true}},
		{Spoken: "запятая", Text: ","},
		{Spoken: "запятая", Text: "，"},
		{Spoken: "   "},
	})
	if tok, ok := table.Lookup([]string{"новая", "строка"}); !ok || tok.Text != "\n" {
		t.Fatalf("multi-space phrase not normalized: %+v %v", tok, ok)
	}
	if tok, _ := table.Lookup([]string{"запятая"}); tok.Text != "，" {
		t.Fatalf("later row should win, got %q", tok.Text)
	}
	if table.MaxWords() != 2 {
		t.Fatalf("MaxWords = %d, want 2", table.MaxWords())
	}
}

func TestSentenceState_Render(t *testing.T) {
	word := SmartToken{Text: "ёлка", Syntax: plainWord}

	next, text, _ := initialState.render(word, DefaultQuotes)
	if text != "Ёлка" || next.NewSentence {
		t.Fatalf("first word: %q %+v", text, next)
	}

	quote := SmartToken{Quote: true}
	open, text, syntax := next.render(quote, DefaultQuotes)
	if text != "«" || !open.QuoteOpen || !syntax.LeanRight {
		t.Fatalf("opening quote: %q %+v %+v", text, open, syntax)
	}
	closed, text, syntax := open.render(quote, DefaultQuotes)
	if text != "»" || closed.QuoteOpen || !syntax.LeanLeft {
		t.Fatalf("closing quote: %q %+v %+v", text, closed, syntax)
	}

	end, _, _ := closed.render(SmartToken{Text: ".", Syntax: sentenceEnd}, DefaultQuotes)
	if !end.NewSentence {
		t.Fatal("sentence end must open a new sentence")
	}
}

func TestCapitalize(t *testing.T) {
	tests := map[string]string{
		"привет": "Привет",
		"hello":  "Hello",
		"из-за":  "Из-за",
		"2024":   "2024",
		"":       "",
	}
	for in, want := range tests {
		if got := capitalize(in); got != want {
			t.Errorf("capitalize(%q) = %q, want %q", in, got, want)
		}
	}
}
