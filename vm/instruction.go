package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// ScopeSep joins the segments of a qualified label name.
const ScopeSep = "::"

// Visibility says where a BeginDefine takes its label from.
type Visibility uint8

const (
	// Public blocks are named by the push-text instruction right before them.
	Public Visibility = iota
	// Private blocks pop their name off the value stack at run time.
	Private
)

func (v Visibility) String() string {
	if v == Private {
		return "private"
	}
	return "public"
}

// Instruction is one slot of the program tape. Op selects which operand
// fields are meaningful.
type Instruction struct {
	Op     Opcode     `cbor:"1,keyasint"`
	Num    float64    `cbor:"2,keyasint,omitempty"` // OpPushNum
	Text   string     `cbor:"3,keyasint,omitempty"` // OpPushText value, OpRefNamed label
	Offset int        `cbor:"4,keyasint,omitempty"` // OpRefNamed
	Index  int        `cbor:"5,keyasint,omitempty"` // OpRefAbs
	Rel    string     `cbor:"6,keyasint,omitempty"` // OpRefNamed as written, when relative
	Vis    Visibility `cbor:"7,keyasint,omitempty"` // OpBeginDefine
	Skip   int        `cbor:"8,keyasint,omitempty"` // OpBeginDefine, OpLambda
	Block  int        `cbor:"9,keyasint,omitempty"` // synthetic scope id of lambdas and private blocks
	Scope  string     `cbor:"10,keyasint,omitempty"` // qualified name once the block is registered
}

// Simple creates an operand-less instruction.
func Simple(op Opcode) Instruction { return Instruction{Op: op} }

// PushNum creates a number literal.
func PushNum(n float64) Instruction { return Instruction{Op: OpPushNum, Num: n} }

// PushText creates a text literal.
func PushText(s string) Instruction { return Instruction{Op: OpPushText, Text: s} }

// RefNamed creates an unresolved reference push. Names starting with the
// scope separator are relative and get qualified by the resolver.
func RefNamed(name string, offset int) Instruction {
	in := Instruction{Op: OpRefNamed, Text: name, Offset: offset}
	if IsRelative(name) {
		in.Rel = name
	}
	return in
}

// RefAbs creates a resolved reference push.
func RefAbs(index int) Instruction { return Instruction{Op: OpRefAbs, Index: index} }

// Define creates a block opening marker.
func Define(vis Visibility) Instruction { return Instruction{Op: OpBeginDefine, Vis: vis} }

// IsRelative reports whether a label name is relative to the current scope.
func IsRelative(name string) bool { return strings.HasPrefix(name, ScopeSep) }

// Value returns the value a cell instruction pushes. ok is false for
// instructions that are not literal or reference pushes.
func (in Instruction) Value() (v Value, ok bool) {
	switch in.Op {
	case OpPushNum:
		return Num(in.Num), true
	case OpPushText:
		return Str(in.Text), true
	case OpRefNamed:
		return Named(in.Text, in.Offset), true
	case OpRefAbs:
		return Abs(in.Index), true
	}
	return Value{}, false
}

// CellInstruction returns the instruction that pushes v when executed.
func CellInstruction(v Value) Instruction {
	switch v.Kind {
	case KindText:
		return PushText(v.Text)
	case KindNamedRef:
		return Instruction{Op: OpRefNamed, Text: v.Name, Offset: v.Offset}
	case KindAbsRef:
		return RefAbs(v.Index)
	default:
		return PushNum(v.Num)
	}
}

// String renders the instruction for listings.
func (in Instruction) String() string {
	name := in.Op.String()
	switch in.Op {
	case OpPushNum:
		return fmt.Sprintf("%s %s", name, FormatNumber(in.Num))
	case OpPushText:
		return fmt.Sprintf("%s %s", name, strconv.Quote(in.Text))
	case OpRefNamed:
		s := fmt.Sprintf("%s %s", name, in.Text)
		if in.Offset != 0 {
			s += fmt.Sprintf("%+d", in.Offset)
		}
		if in.Rel != "" && in.Rel != in.Text {
			s += " (" + in.Rel + ")"
		}
		return s
	case OpRefAbs:
		return fmt.Sprintf("%s @%d", name, in.Index)
	case OpBeginDefine:
		s := fmt.Sprintf("%s %s skip=%d", name, in.Vis, in.Skip)
		if in.Scope != "" {
			s += " " + in.Scope
		}
		return s
	case OpLambda:
		s := fmt.Sprintf("%s skip=%d", name, in.Skip)
		if in.Scope != "" {
			s += " " + in.Scope
		}
		return s
	}
	return name
}
