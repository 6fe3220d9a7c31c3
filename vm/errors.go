package vm

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel causes carried by RuntimeError. Use errors.Is to test for them.
var (
	ErrStackUnderflow = errors.New("stack underflow")
	ErrTypeMismatch   = errors.New("type mismatch")
	ErrUnresolved     = errors.New("unresolved label")
	ErrOutOfRange     = errors.New("address out of range")
	ErrBadCell        = errors.New("not a writable cell")
	ErrNoFrame        = errors.New("no enclosing call")
	ErrPlaceholder    = errors.New("placeholder reached")
	ErrInclude        = errors.New("include failed")
	ErrNoLexer        = errors.New("no lexer configured")
	ErrNotFound       = errors.New("not found")
)

// StructuralError reports malformed block structure or an unresolvable
// relative name found while resolving a program.
type StructuralError struct {
	Pos int       // instruction index
	Ref SourceRef // token that produced the instruction
	Msg string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("structural error at %s: %s", e.Ref, e.Msg)
}

// TraceEntry is one active call, innermost first.
type TraceEntry struct {
	Label  string    // label registered at Target, if any
	Target int       // marker index jumped to
	Return int       // index of the jump instruction
	Ref    SourceRef // source of the jump instruction
}

// WindowLine is one instruction around the failure point.
type WindowLine struct {
	Pos  int
	Text string
	Ref  SourceRef
}

// RuntimeError is a fatal execution failure. It records where execution
// stopped, the active call trace and a window of surrounding instructions.
type RuntimeError struct {
	Pos    int
	Ref    SourceRef
	Msg    string
	Trace  []TraceEntry
	Window []WindowLine
	Err    error
}

func (e *RuntimeError) Error() string {
	if e.Ref.Token != "" {
		return fmt.Sprintf("runtime error at %s (%s): %s", e.Ref, e.Ref.Token, e.Msg)
	}
	return fmt.Sprintf("runtime error at %s: %s", e.Ref, e.Msg)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// Render returns a multi-line report with the call trace and the
// instruction window, the failing slot marked with a caret.
func (e *RuntimeError) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "RUNTIME ERROR at %s: %s\n", e.Ref, e.Msg)

	if len(e.Trace) > 0 {
		b.WriteString("\ncall trace (innermost first):\n")
		for i, t := range e.Trace {
			label := t.Label
			if label == "" {
				label = "<anonymous>"
			}
			fmt.Fprintf(&b, "  #%d %s (@%d) called from %s\n", i+1, label, t.Target, t.Ref)
		}
	}

	if len(e.Window) > 0 {
		b.WriteString("\n")
		for _, w := range e.Window {
			marker := "  "
			if w.Pos == e.Pos {
				marker = "> "
			}
			fmt.Fprintf(&b, "%s%5d | %-32s %s\n", marker, w.Pos, w.Text, w.Ref)
			if w.Pos == e.Pos && w.Ref.Token != "" {
				fmt.Fprintf(&b, "        | %s\n", strings.Repeat("^", len(w.Text)))
			}
		}
	}
	return b.String()
}

// window collects up to radius instructions on either side of pos.
func window(p *Program, pos, radius int) []WindowLine {
	lo, hi := pos-radius, pos+radius
	if lo < 0 {
		lo = 0
	}
	if hi >= p.Len() {
		hi = p.Len() - 1
	}
	var out []WindowLine
	for i := lo; i <= hi; i++ {
		out = append(out, WindowLine{Pos: i, Text: p.Code[i].String(), Ref: p.Refs[i]})
	}
	return out
}
