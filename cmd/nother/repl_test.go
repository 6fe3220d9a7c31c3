package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/nother/compiler"
	"github.com/chazu/nother/vm"
)

func runREPL(t *testing.T, input string) (string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	st := vm.NewState(vm.WithHost(vm.NewWriterHost(&out, &errOut)), vm.WithLexer(compiler.Lex))
	newREPL(st, &out).run(strings.NewReader(input))
	return out.String(), errOut.String()
}

func TestREPLMultiLine(t *testing.T) {
	out, errOut := runREPL(t, `"sq" is
  dup *
}
4 @sq! print
exit
`)
	if errOut != "" {
		t.Fatalf("unexpected errors: %s", errOut)
	}
	if !strings.Contains(out, "16\n") {
		t.Errorf("output = %q, want 16", out)
	}
	if !strings.Contains(out, ".. ") {
		t.Error("open block should show the continuation prompt")
	}
}

func TestREPLKeepsGoingAfterErrors(t *testing.T) {
	out, errOut := runREPL(t, "drop\n1 2 + print\n")
	if !strings.Contains(errOut, "RUNTIME ERROR") {
		t.Errorf("stderr = %q", errOut)
	}
	if !strings.Contains(out, "3\n") {
		t.Errorf("output = %q, want 3", out)
	}
}

func TestREPLCommands(t *testing.T) {
	img := filepath.Join(t.TempDir(), "repl.img")
	out, _ := runREPL(t, strings.Join([]string{
		`"alpha" is 1 }`,
		"5 6",
		":stack",
		":labels",
		":stats",
		":dis",
		":save " + img,
		":reset",
		":stack",
		":load " + img,
		":labels",
		":bogus",
		":help",
		"quit",
	}, "\n"))

	for _, want := range []string{
		"0: 5",
		"1: 6",
		"alpha",
		"reference cache:",
		"DEFINE",
		"Saved image to",
		"State reset",
		"<empty stack>",
		"Loaded image from",
		"Unknown command: :bogus",
		"REPL Commands:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
