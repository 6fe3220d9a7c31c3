package vm

import (
	"fmt"
	"math"
	"strconv"
)

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	KindNumber   ValueKind = iota // 64-bit float
	KindText                      // owned string
	KindNamedRef                  // label name + offset, not yet resolved
	KindAbsRef                    // resolved instruction index
)

// String returns the kind name used in error messages.
func (k ValueKind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindNamedRef:
		return "reference"
	case KindAbsRef:
		return "address"
	default:
		return fmt.Sprintf("ValueKind(%d)", k)
	}
}

// Value is a stack entry. Only the fields that belong to Kind are meaningful:
// Num for numbers, Text for text, Name and Offset for named references and
// Index for absolute references.
type Value struct {
	Kind   ValueKind `cbor:"1,keyasint"`
	Num    float64   `cbor:"2,keyasint,omitempty"`
	Text   string    `cbor:"3,keyasint,omitempty"`
	Name   string    `cbor:"4,keyasint,omitempty"`
	Offset int       `cbor:"5,keyasint,omitempty"`
	Index  int       `cbor:"6,keyasint,omitempty"`
}

// Num creates a number value.
func Num(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// Str creates a text value.
func Str(s string) Value { return Value{Kind: KindText, Text: s} }

// Named creates an unresolved reference to a label.
func Named(name string, offset int) Value {
	return Value{Kind: KindNamedRef, Name: name, Offset: offset}
}

// Abs creates a resolved reference to an instruction index.
func Abs(index int) Value { return Value{Kind: KindAbsRef, Index: index} }

// Bool maps a Go boolean to the numbers 1 and 0.
func Bool(b bool) Value {
	if b {
		return Num(1)
	}
	return Num(0)
}

// IsNumber reports whether v holds a number.
func (v Value) IsNumber() bool { return v.Kind == KindNumber }

// IsText reports whether v holds text.
func (v Value) IsText() bool { return v.Kind == KindText }

// IsRef reports whether v is a named or absolute reference.
func (v Value) IsRef() bool { return v.Kind == KindNamedRef || v.Kind == KindAbsRef }

// Truthy reports whether a number is non-zero.
func (v Value) Truthy() bool { return v.Kind == KindNumber && v.Num != 0 }

// Shift returns a reference moved n instructions along the tape.
// Non-reference values are returned unchanged.
func (v Value) Shift(n int) Value {
	switch v.Kind {
	case KindNamedRef:
		v.Offset += n
	case KindAbsRef:
		v.Index += n
	}
	return v
}

// String returns the form written by print.
func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return FormatNumber(v.Num)
	case KindText:
		return v.Text
	case KindNamedRef:
		if v.Offset != 0 {
			return fmt.Sprintf("%s%+d", v.Name, v.Offset)
		}
		return v.Name
	case KindAbsRef:
		return fmt.Sprintf("@%d", v.Index)
	default:
		return "?"
	}
}

// Repr returns the form used by stack dumps, with text quoted.
func (v Value) Repr() string {
	switch v.Kind {
	case KindText:
		return strconv.Quote(v.Text)
	case KindNamedRef:
		return "@" + v.String()
	default:
		return v.String()
	}
}

// FormatNumber renders a float without a trailing ".0" for integral values.
func FormatNumber(n float64) string {
	switch {
	case math.IsInf(n, 1):
		return "inf"
	case math.IsInf(n, -1):
		return "-inf"
	case math.IsNaN(n):
		return "NaN"
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}
