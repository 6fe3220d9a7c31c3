package server

import (
	"strings"
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// ---------------------------------------------------------------------------
// Text extraction helpers
// ---------------------------------------------------------------------------

func TestExtractPrefix(t *testing.T) {
	tests := []struct {
		text string
		pos  protocol.Position
		want string
	}{
		{"3 @sq", protocol.Position{Line: 0, Character: 5}, "@sq"},
		{"@box::it", protocol.Position{Line: 0, Character: 8}, "@box::it"},
		{"first\n  du", protocol.Position{Line: 1, Character: 4}, "du"},
		{"(1 + x", protocol.Position{Line: 0, Character: 6}, "x"},
		{"hello", protocol.Position{Line: 0, Character: 0}, ""},
		{"", protocol.Position{Line: 0, Character: 0}, ""},
		{"one line", protocol.Position{Line: 5, Character: 0}, ""},
	}
	for _, tc := range tests {
		if got := extractPrefix(tc.text, tc.pos); got != tc.want {
			t.Errorf("extractPrefix(%q, %v) = %q, want %q", tc.text, tc.pos, got, tc.want)
		}
	}
}

func TestExtractWord(t *testing.T) {
	tests := []struct {
		text string
		pos  protocol.Position
		want string
	}{
		{"3 @sq! print", protocol.Position{Line: 0, Character: 3}, "@sq!"},
		{"3 @sq! print", protocol.Position{Line: 0, Character: 8}, "print"},
		{`"name" is`, protocol.Position{Line: 0, Character: 8}, "is"},
		{"a\n(x + y)", protocol.Position{Line: 1, Character: 1}, "x"},
		{"", protocol.Position{Line: 0, Character: 0}, ""},
	}
	for _, tc := range tests {
		if got := extractWord(tc.text, tc.pos); got != tc.want {
			t.Errorf("extractWord(%q, %v) = %q, want %q", tc.text, tc.pos, got, tc.want)
		}
	}
}

func TestReferenceName(t *testing.T) {
	tests := []struct {
		word string
		want string
		ok   bool
	}{
		{"@sq", "sq", true},
		{"@sq!", "sq", true},
		{"@box::item?$", "box::item", true},
		{"@::inner!", "::inner", true},
		{"@", "", false},
		{"@::", "", false},
		{"print", "", false},
	}
	for _, tc := range tests {
		got, ok := referenceName(tc.word)
		if got != tc.want || ok != tc.ok {
			t.Errorf("referenceName(%q) = %q, %v; want %q, %v", tc.word, got, ok, tc.want, tc.ok)
		}
	}
}

// ---------------------------------------------------------------------------
// Features
// ---------------------------------------------------------------------------

func TestCompleteLabels(t *testing.T) {
	a := Analyze("", `"square" is dup * } "sum" is + } "other" is 0 }`)
	items := complete(a, "@s")
	if len(items) != 2 {
		t.Fatalf("complete(@s) = %d items, want 2", len(items))
	}
	if items[0].Label != "square" || *items[0].InsertText != "@square" {
		t.Errorf("first item = %q / %q", items[0].Label, *items[0].InsertText)
	}
}

func TestCompleteKeywords(t *testing.T) {
	items := complete(Analyze("", ""), "dr")
	if len(items) != 1 || items[0].Label != "drop" {
		t.Fatalf("complete(dr) = %+v", items)
	}
	if *items[0].Detail != "DROP" {
		t.Errorf("detail = %q, want DROP", *items[0].Detail)
	}
}

func TestHover(t *testing.T) {
	a := Analyze("", "\"sq\" is dup * }\n3 @sq! print")

	h := hover(a, "dup")
	if h == nil {
		t.Fatal("no hover for dup")
	}
	content := h.Contents.(protocol.MarkupContent).Value
	if !strings.Contains(content, "DUP") || !strings.Contains(content, "pops 1, pushes 2") {
		t.Errorf("hover(dup) = %q", content)
	}

	h = hover(a, "@sq!")
	if h == nil {
		t.Fatal("no hover for @sq!")
	}
	content = h.Contents.(protocol.MarkupContent).Value
	if !strings.Contains(content, "**sq** label") || !strings.Contains(content, "line 1") {
		t.Errorf("hover(@sq!) = %q", content)
	}

	if hover(a, "@nope") != nil || hover(a, "banana") != nil {
		t.Error("unknown words should have no hover")
	}
}

func TestToProtocolDiagnostics(t *testing.T) {
	out := toProtocolDiagnostics([]Diagnostic{
		{Line: 3, Col: 5, Severity: SeverityError, Msg: "bad"},
		{Line: 1, Col: 1, Severity: SeverityWarning, Msg: "meh"},
	})
	if len(out) != 2 {
		t.Fatalf("got %d diagnostics", len(out))
	}
	if out[0].Range.Start.Line != 2 || out[0].Range.Start.Character != 4 {
		t.Errorf("range = %+v, want 0-based 2:4", out[0].Range)
	}
	if *out[0].Severity != protocol.DiagnosticSeverityError || *out[1].Severity != protocol.DiagnosticSeverityWarning {
		t.Error("severities not mapped")
	}
	if *out[0].Source != lspName {
		t.Errorf("source = %q", *out[0].Source)
	}
}
