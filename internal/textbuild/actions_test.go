package textbuild

import "testing"

func addition(first, last, base int, rendered string) Action {
	return Action{Kind: KindAddition, Tokens: Span{first, last}, Base: base, Rendered: rendered}
}

func TestActionLog_VisibleFollowsRemovals(t *testing.T) {
	var l actionLog
	l.append(addition(0, 0, none, "a"))
	l.append(addition(1, 1, 0, "a b"))
	l.append(Action{Kind: KindRemoval, Tokens: Span{2, 2}, Base: 0})
	l.append(Action{Kind: KindRemoval, Tokens: Span{3, 3}, Base: none})

	cases := []struct {
		from int
		want int
	}{
		{0, 0},
		{1, 1},
		{2, 0},
		{3, none},
		{none, none},
	}
	for _, c := range cases {
		if got := l.visible(c.from); got != c.want {
			t.Errorf("visible(%d) = %d, want %d", c.from, got, c.want)
		}
	}
}

func TestActionLog_RewindKeepsEarlierOwners(t *testing.T) {
	var l actionLog
	l.append(addition(0, 0, none, "Закрывающая"))
	l.append(addition(0, 1, none, ")"))
	l.append(addition(2, 2, 1, ") да"))

	if got := l.rewind(1); got != 2 {
		t.Fatalf("rewind(1) dropped %d entries, want 2", got)
	}
	if l.len() != 1 || len(l.owner) != 1 {
		t.Fatalf("after rewind: %d entries, %d owners", l.len(), len(l.owner))
	}
	if got := l.rewind(5); got != 0 {
		t.Fatalf("rewind past the end dropped %d entries", got)
	}
	if got := l.at(l.current()).Rendered; got != "Закрывающая" {
		t.Fatalf("current = %q", got)
	}
}

func TestActionLog_InvariantViolationsPanic(t *testing.T) {
	tests := []struct {
		name string
		fn   func(l *actionLog)
	}{
		{"base after entry", func(l *actionLog) { l.append(addition(1, 1, 1, "x")) }},
		{"skipped token", func(l *actionLog) { l.append(addition(3, 3, 0, "x")) }},
		{"reconsumed token", func(l *actionLog) { l.append(addition(0, 0, 0, "x")) }},
		{"position out of range", func(l *actionLog) { l.at(7) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var l actionLog
			l.append(addition(0, 0, none, "a"))
			defer func() {
				if recover() == nil {
					t.Fatal("expected panic")
				}
			}()
			tt.fn(&l)
		})
	}
}

func TestKind_String(t *testing.T) {
	if KindAddition.String() != "addition" || KindRemoval.String() != "removal" {
		t.Fatal("unexpected kind names")
	}
	if Kind(9).String() != "kind(9)" {
		t.Fatalf("got %q", Kind(9).String())
	}
}
