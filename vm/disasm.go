package vm

import (
	"fmt"
	"sort"
	"strings"
)

// Disassemble returns a human-readable listing of the program. Label names
// are printed above the markers they point at and block bodies are
// indented by nesting depth.
func (p *Program) Disassemble(labels *Labels) string {
	return p.DisassembleWithName("", labels)
}

// DisassembleWithName returns a listing with a name header.
func (p *Program) DisassembleWithName(name string, labels *Labels) string {
	var sb strings.Builder

	if name != "" {
		sb.WriteString(fmt.Sprintf("; === %s ===\n", name))
	}
	nlabels := 0
	if labels != nil {
		nlabels = labels.Len()
	}
	sb.WriteString(fmt.Sprintf("; %d instructions, %d labels\n", p.Len(), nlabels))

	byIndex := make(map[int][]string)
	if labels != nil {
		for _, n := range labels.Names() {
			idx, _ := labels.Lookup(n)
			byIndex[idx] = append(byIndex[idx], n)
		}
	}

	depth := 0
	for i, in := range p.Code {
		if in.Op == OpEndDefine && depth > 0 {
			depth--
		}
		names := byIndex[i]
		sort.Strings(names)
		for _, n := range names {
			sb.WriteString(fmt.Sprintf("%s%s:\n", strings.Repeat("  ", depth), n))
		}
		line := fmt.Sprintf("%04d  %s%s", i, strings.Repeat("  ", depth), in.String())
		if ref := p.Refs[i]; ref.Line > 0 {
			line = fmt.Sprintf("%-48s ; %s", line, ref)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
		if in.Op.IsBlockStart() {
			depth++
		}
	}
	return sb.String()
}

// Disassemble lists the session's program with its labels.
func (s *State) Disassemble() string {
	return s.prog.Disassemble(s.labels)
}
