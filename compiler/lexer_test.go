package compiler

import (
	"reflect"
	"testing"

	"github.com/chazu/nother/vm"
)

func ops(code []vm.Instruction) []vm.Opcode {
	out := make([]vm.Opcode, len(code))
	for i, in := range code {
		out[i] = in.Op
	}
	return out
}

func mustLex(t *testing.T, src string) []vm.Instruction {
	t.Helper()
	code, refs, err := Lex(src, "test.nth")
	if err != nil {
		t.Fatalf("Lex(%q) failed: %v", src, err)
	}
	if len(code) != len(refs) {
		t.Fatalf("Lex(%q): %d instructions but %d source refs", src, len(code), len(refs))
	}
	return code
}

func TestLexerTokens(t *testing.T) {
	input := `foo (bar) "a b" @x!`
	expected := []struct {
		typ TokenType
		lit string
	}{
		{TokenWord, "foo"},
		{TokenLParen, "("},
		{TokenWord, "bar"},
		{TokenRParen, ")"},
		{TokenString, "a b"},
		{TokenWord, "@x!"},
		{TokenEOF, ""},
	}

	l := NewLexer(input)
	for i, exp := range expected {
		tok := l.NextToken()
		if tok.Type != exp.typ {
			t.Errorf("token[%d] type = %v, want %v", i, tok.Type, exp.typ)
		}
		if tok.Literal != exp.lit {
			t.Errorf("token[%d] literal = %q, want %q", i, tok.Literal, exp.lit)
		}
	}
}

func TestLexerPositions(t *testing.T) {
	l := NewLexer("a\n  bc")
	a := l.NextToken()
	bc := l.NextToken()
	if a.Pos.Line != 1 || a.Pos.Column != 1 {
		t.Errorf("a at %v, want 1:1", a.Pos)
	}
	if bc.Pos.Line != 2 || bc.Pos.Column != 3 {
		t.Errorf("bc at %v, want 2:3", bc.Pos)
	}
}

func TestLexerStrings(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`"hello"`, "hello"},
		{`"two  spaces"`, "two  spaces"},
		{`"say \"hi\""`, `say "hi"`},
		{`"line\nbreak"`, "line\nbreak"},
		{`"tab\tstop"`, "tab\tstop"},
		{`"back\\slash"`, `back\slash`},
		{`""`, ""},
	}

	for _, tc := range tests {
		code := mustLex(t, tc.input)
		if len(code) != 1 || code[0].Op != vm.OpPushText {
			t.Fatalf("Lex(%q) = %v, want one text push", tc.input, code)
		}
		if code[0].Text != tc.want {
			t.Errorf("Lex(%q) text = %q, want %q", tc.input, code[0].Text, tc.want)
		}
	}
}

func TestLexerUnterminatedString(t *testing.T) {
	code := mustLex(t, `1 "runs to the end`)
	if len(code) != 2 || code[1].Text != "runs to the end" {
		t.Fatalf("unexpected lex: %v", code)
	}
	if Balance(`"open`) <= 0 {
		t.Errorf("Balance of an unterminated string should be positive")
	}
}

func TestLexerComments(t *testing.T) {
	code := mustLex(t, "1 // one\n/* two\n 2 */ 3")
	if len(code) != 2 || code[0].Num != 1 || code[1].Num != 3 {
		t.Errorf("comments not stripped: %v", code)
	}
	code = mustLex(t, `"// not a comment"`)
	if len(code) != 1 || code[0].Text != "// not a comment" {
		t.Errorf("comment marker inside string was stripped: %v", code)
	}
}

func TestLexerNumbers(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"42", 42},
		{"-3", -3},
		{"3.5", 3.5},
		{".5", 0.5},
		{"1e3", 1000},
	}
	for _, tc := range tests {
		code := mustLex(t, tc.input)
		if code[0].Op != vm.OpPushNum || code[0].Num != tc.want {
			t.Errorf("Lex(%q) = %v, want number %v", tc.input, code[0], tc.want)
		}
	}

	for _, word := range []string{"inf", "NaN", "-", "x1", "1x"} {
		code := mustLex(t, word)
		if code[0].Op != vm.OpPushText {
			t.Errorf("Lex(%q) = %v, want a text push", word, code[0])
		}
	}
}

func TestLexerKeywords(t *testing.T) {
	code := mustLex(t, `{ "sq" is dup * } priv in lambda jump jump? loop? -> STACK end sub _`)
	want := []vm.Opcode{
		vm.OpPushText, vm.OpBeginDefine, vm.OpDup, vm.OpMul, vm.OpEndDefine,
		vm.OpBeginDefine, vm.OpEndDefine, vm.OpLambda, vm.OpJmp, vm.OpJmpIf, vm.OpLoopIf,
		vm.OpArrowPut, vm.OpStackDump, vm.OpStop, vm.OpSubProg, vm.OpPlaceholder,
	}
	if got := ops(code); !reflect.DeepEqual(got, want) {
		t.Errorf("ops = %v\nwant %v", got, want)
	}
	if code[1].Vis != vm.Public || code[5].Vis != vm.Private {
		t.Errorf("visibility: is=%v priv=%v", code[1].Vis, code[5].Vis)
	}
}

func TestLexerReferenceModifiers(t *testing.T) {
	tests := []struct {
		input string
		want  []vm.Opcode
	}{
		{"@x", []vm.Opcode{vm.OpRefNamed}},
		{"@x!", []vm.Opcode{vm.OpRefNamed, vm.OpJmp}},
		{"@x?", []vm.Opcode{vm.OpRefNamed, vm.OpJmpIf}},
		{"@x$", []vm.Opcode{vm.OpRefNamed, vm.OpGet}},
		{"@x?$", []vm.Opcode{vm.OpRefNamed, vm.OpGet, vm.OpJmpIf}},
		{"@x$!", []vm.Opcode{vm.OpRefNamed, vm.OpJmp, vm.OpGet}},
	}
	for _, tc := range tests {
		code := mustLex(t, tc.input)
		if got := ops(code); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Lex(%q) = %v, want %v", tc.input, got, tc.want)
		}
		if code[0].Text != "x" {
			t.Errorf("Lex(%q) name = %q, want x", tc.input, code[0].Text)
		}
	}
}

func TestLexerRelativeReference(t *testing.T) {
	code := mustLex(t, "@::helper!")
	if code[0].Rel != "::helper" {
		t.Errorf("Rel = %q, want ::helper", code[0].Rel)
	}
	code = mustLex(t, "@ @!")
	if code[0].Op != vm.OpPushText || code[1].Op != vm.OpPushText {
		t.Errorf("bare sigils should lex as text: %v", code)
	}
}

func TestLexerReturnCount(t *testing.T) {
	code := mustLex(t, "_3")
	if got := ops(code); !reflect.DeepEqual(got, []vm.Opcode{vm.OpReturn, vm.OpReturn, vm.OpReturn}) {
		t.Errorf("_3 = %v", got)
	}
	if code := mustLex(t, "_x"); code[0].Op != vm.OpPushText {
		t.Errorf("_x = %v, want text", code[0])
	}
}

func TestLexerReturnCountBounded(t *testing.T) {
	if code := mustLex(t, "_1024"); len(code) != MaxReturns {
		t.Errorf("_1024 lexed to %d instructions, want %d", len(code), MaxReturns)
	}
	for _, lit := range []string{"_1025", "_999999999", "_99999999999999999999999"} {
		code := mustLex(t, lit)
		if len(code) != 1 || code[0].Op != vm.OpPushText || code[0].Text != lit {
			t.Errorf("%s = %v, want a single text push", lit, code)
		}
	}
}

func TestLexerSourceRefs(t *testing.T) {
	_, refs, err := Lex("1\n  @f!", "main.nth")
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 3 {
		t.Fatalf("expected 3 refs, got %d", len(refs))
	}
	if refs[1].File != "main.nth" || refs[1].Line != 2 || refs[1].Col != 3 || refs[1].Token != "@f!" {
		t.Errorf("ref = %+v", refs[1])
	}
	if refs[2] != refs[1] {
		t.Errorf("modifier instruction should share the reference's source: %+v", refs[2])
	}
}

func TestBalance(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"1 2 +", 0},
		{`"f" is`, 1},
		{`"f" is 1 }`, 0},
		{`{ "f" is lambda`, 2},
		{"(1 +", 1},
		{"}", -1},
	}
	for _, tc := range tests {
		if got := Balance(tc.input); got != tc.want {
			t.Errorf("Balance(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}
