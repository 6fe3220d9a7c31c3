package vm

import "fmt"

// SourceRef maps a program slot back to the token it was lexed from.
type SourceRef struct {
	Token string `cbor:"1,keyasint,omitempty"`
	File  string `cbor:"2,keyasint,omitempty"`
	Line  int    `cbor:"3,keyasint,omitempty"` // 1-based
	Col   int    `cbor:"4,keyasint,omitempty"` // 1-based
}

// String formats the reference as file:line:col.
func (r SourceRef) String() string {
	file := r.File
	if file == "" {
		file = "<input>"
	}
	if r.Line == 0 {
		return file
	}
	return fmt.Sprintf("%s:%d:%d", file, r.Line, r.Col)
}

// Program is the instruction tape together with its parallel source
// references. Code and Refs always have the same length.
type Program struct {
	Code []Instruction `cbor:"1,keyasint"`
	Refs []SourceRef   `cbor:"2,keyasint"`
}

// NewProgram creates an empty program.
func NewProgram() *Program {
	return &Program{
		Code: make([]Instruction, 0, 256),
		Refs: make([]SourceRef, 0, 256),
	}
}

// Len returns the number of instructions.
func (p *Program) Len() int { return len(p.Code) }

// InRange reports whether i addresses an instruction.
func (p *Program) InRange(i int) bool { return i >= 0 && i < len(p.Code) }

// At returns the instruction at i.
func (p *Program) At(i int) (Instruction, bool) {
	if !p.InRange(i) {
		return Instruction{}, false
	}
	return p.Code[i], true
}

// Set overwrites the instruction at i. It reports false when i is out of range.
func (p *Program) Set(i int, in Instruction) bool {
	if !p.InRange(i) {
		return false
	}
	p.Code[i] = in
	return true
}

// Ref returns the source reference of slot i, or the zero SourceRef.
func (p *Program) Ref(i int) SourceRef {
	if !p.InRange(i) {
		return SourceRef{}
	}
	return p.Refs[i]
}

// Append adds instructions at the end. Missing source references are left zero.
func (p *Program) Append(code []Instruction, refs []SourceRef) {
	p.Code = append(p.Code, code...)
	p.Refs = append(p.Refs, alignRefs(code, refs)...)
}

// Splice inserts instructions so that the first one lands at index at.
func (p *Program) Splice(at int, code []Instruction, refs []SourceRef) {
	if at < 0 {
		at = 0
	}
	if at > len(p.Code) {
		at = len(p.Code)
	}
	refs = alignRefs(code, refs)

	newCode := make([]Instruction, 0, len(p.Code)+len(code))
	newCode = append(newCode, p.Code[:at]...)
	newCode = append(newCode, code...)
	newCode = append(newCode, p.Code[at:]...)

	newRefs := make([]SourceRef, 0, len(p.Refs)+len(refs))
	newRefs = append(newRefs, p.Refs[:at]...)
	newRefs = append(newRefs, refs...)
	newRefs = append(newRefs, p.Refs[at:]...)

	p.Code, p.Refs = newCode, newRefs
}

// ShiftAbs moves every absolute reference instruction that points at or past
// from by n slots. Used after a splice so resolved addresses keep pointing at
// the same code.
func (p *Program) ShiftAbs(from, n int) {
	for i := range p.Code {
		if p.Code[i].Op == OpRefAbs && p.Code[i].Index >= from {
			p.Code[i].Index += n
		}
	}
}

// Truncate drops every instruction at or after n.
func (p *Program) Truncate(n int) {
	if n < 0 || n >= len(p.Code) {
		return
	}
	p.Code = p.Code[:n]
	p.Refs = p.Refs[:n]
}

// Clone returns an independent copy of the program.
func (p *Program) Clone() *Program {
	return &Program{
		Code: append([]Instruction(nil), p.Code...),
		Refs: append([]SourceRef(nil), p.Refs...),
	}
}

func alignRefs(code []Instruction, refs []SourceRef) []SourceRef {
	if len(refs) == len(code) {
		return refs
	}
	out := make([]SourceRef, len(code))
	copy(out, refs)
	return out
}
