package server

import (
	"errors"
	"sort"
	"strings"

	"github.com/chazu/nother/compiler"
	"github.com/chazu/nother/vm"
)

// Severity of a diagnostic.
type Severity int

const (
	SeverityError Severity = iota + 1
	SeverityWarning
)

// Diagnostic is a problem found in a document. Line and Col are 1-based.
type Diagnostic struct {
	Line     int
	Col      int
	Severity Severity
	Msg      string
}

// Definition locates where a label is introduced. Line and Col are
// 1-based and point at the label text.
type Definition struct {
	Name    string
	Line    int
	Col     int
	Private bool
}

// Analysis is the static view of one document: what lexing and block
// resolution report, and which labels it defines.
type Analysis struct {
	Diagnostics []Diagnostic
	Definitions map[string]Definition
}

// Analyze lexes and resolves text without running it. Public labels are
// keyed by their qualified name; private ones by the name they are given
// at run time.
func Analyze(file, text string) *Analysis {
	a := &Analysis{Definitions: make(map[string]Definition)}

	lx := compiler.NewLexer(text)
	lx.Tokenize()
	if lx.Unterminated() {
		line, col := endOf(text)
		a.addWarning(line, col, "unterminated string or comment")
	}

	code, refs, err := compiler.Lex(text, file)
	if err != nil {
		var se *compiler.SyntaxError
		if errors.As(err, &se) {
			a.addError(se.Pos.Line, se.Pos.Column, se.Msg)
		} else {
			a.addError(1, 1, err.Error())
		}
		return a
	}

	prog := vm.NewProgram()
	prog.Append(code, refs)
	labels := vm.NewLabels()
	if err := vm.Resolve(prog, labels, &vm.BlockIDs{}); err != nil {
		var se *vm.StructuralError
		if errors.As(err, &se) {
			a.addError(se.Ref.Line, se.Ref.Col, se.Msg)
		} else {
			a.addError(1, 1, err.Error())
		}
	}

	for name, index := range labels.Snapshot() {
		ref := prog.Ref(index)
		if index > 0 && prog.Code[index-1].Op == vm.OpPushText {
			ref = prog.Ref(index - 1)
		}
		a.Definitions[name] = Definition{Name: name, Line: ref.Line, Col: ref.Col}
	}

	includes := false
	for i, in := range prog.Code {
		switch {
		case in.Op == vm.OpInclude:
			includes = true
		case in.Op == vm.OpBeginDefine && in.Vis == vm.Private && i > 0 && prog.Code[i-1].Op == vm.OpPushText:
			name := prog.Code[i-1].Text
			if _, ok := a.Definitions[name]; !ok {
				ref := prog.Ref(i - 1)
				a.Definitions[name] = Definition{Name: name, Line: ref.Line, Col: ref.Col, Private: true}
			}
		}
	}

	// Names can come from included files, so unknown ones are only
	// reported for self-contained documents.
	if !includes {
		for i, in := range prog.Code {
			if in.Op != vm.OpRefNamed || in.Rel != "" {
				continue
			}
			if a.Lookup(in.Text) != nil {
				continue
			}
			ref := prog.Ref(i)
			a.addWarning(ref.Line, ref.Col, "label "+in.Text+" is never defined")
		}
	}

	sort.SliceStable(a.Diagnostics, func(i, j int) bool {
		if a.Diagnostics[i].Line != a.Diagnostics[j].Line {
			return a.Diagnostics[i].Line < a.Diagnostics[j].Line
		}
		return a.Diagnostics[i].Col < a.Diagnostics[j].Col
	})
	return a
}

func (a *Analysis) addError(line, col int, msg string) {
	a.Diagnostics = append(a.Diagnostics, Diagnostic{Line: max(line, 1), Col: max(col, 1), Severity: SeverityError, Msg: msg})
}

func (a *Analysis) addWarning(line, col int, msg string) {
	a.Diagnostics = append(a.Diagnostics, Diagnostic{Line: max(line, 1), Col: max(col, 1), Severity: SeverityWarning, Msg: msg})
}

// Lookup finds a label by exact name, then by its last scope segment,
// then as a dynamically qualified private name such as "box::item".
func (a *Analysis) Lookup(name string) *Definition {
	name = strings.TrimPrefix(name, vm.ScopeSep)
	if d, ok := a.Definitions[name]; ok {
		return &d
	}
	for _, n := range a.Names() {
		if strings.HasSuffix(n, vm.ScopeSep+name) {
			d := a.Definitions[n]
			return &d
		}
	}
	segs := vm.SplitScope(name)
	if len(segs) > 1 {
		if d, ok := a.Definitions[segs[len(segs)-1]]; ok {
			return &d
		}
	}
	return nil
}

// Names lists the defined labels in sorted order.
func (a *Analysis) Names() []string {
	names := make([]string, 0, len(a.Definitions))
	for n := range a.Definitions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// endOf returns the 1-based position just past the end of text.
func endOf(text string) (int, int) {
	line := strings.Count(text, "\n") + 1
	col := len(text) - strings.LastIndexByte(text, '\n')
	return line, col
}
