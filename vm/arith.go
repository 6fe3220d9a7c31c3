package vm

import (
	"fmt"
	"math"
	"strings"
)

// binary applies a two-operand instruction. a was beneath b on the stack.
func (m *Machine) binary(op Opcode, a, b Value) (Value, error) {
	switch op {
	case OpAdd:
		return m.add(a, b)
	case OpSub:
		return m.sub(a, b)
	case OpMul, OpDiv, OpMod:
		if !a.IsNumber() || !b.IsNumber() {
			return Value{}, operandError(op, a, b)
		}
		switch op {
		case OpMul:
			return Num(a.Num * b.Num), nil
		case OpDiv:
			return Num(a.Num / b.Num), nil
		default:
			return Num(math.Mod(a.Num, b.Num)), nil
		}
	case OpEq, OpNe:
		return equality(op, a, b)
	case OpLt, OpLe, OpGt, OpGe:
		return compare(op, a, b)
	case OpAnd, OpOr:
		if !a.IsNumber() || !b.IsNumber() {
			return Value{}, operandError(op, a, b)
		}
		if op == OpAnd {
			return Bool(a.Num != 0 && b.Num != 0), nil
		}
		return Bool(a.Num != 0 || b.Num != 0), nil
	}
	return Value{}, fmt.Errorf("%s is not a binary operation", op)
}

// add handles every operand combination of +:
//
//	number + number  sum
//	text + text      concatenation
//	number + text    character code prepended
//	text + number    character code appended
//	ref + number     reference offset by the number
func (m *Machine) add(a, b Value) (Value, error) {
	switch {
	case a.IsNumber() && b.IsNumber():
		return Num(a.Num + b.Num), nil
	case a.IsText() && b.IsText():
		return Str(a.Text + b.Text), nil
	case a.IsNumber() && b.IsText():
		c, err := charCode(a.Num)
		if err != nil {
			return Value{}, err
		}
		return Str(c + b.Text), nil
	case a.IsText() && b.IsNumber():
		c, err := charCode(b.Num)
		if err != nil {
			return Value{}, err
		}
		return Str(a.Text + c), nil
	case a.IsRef() && b.IsNumber():
		return a.Shift(int(b.Num)), nil
	case a.IsNumber() && b.IsRef():
		return b.Shift(int(a.Num)), nil
	}
	return Value{}, operandError(OpAdd, a, b)
}

// sub subtracts numbers, offsets a reference backwards, or measures the
// distance between two references.
func (m *Machine) sub(a, b Value) (Value, error) {
	switch {
	case a.IsNumber() && b.IsNumber():
		return Num(a.Num - b.Num), nil
	case a.IsRef() && b.IsNumber():
		return a.Shift(-int(b.Num)), nil
	case a.IsRef() && b.IsRef():
		x, err := m.st.lookupRef(a)
		if err != nil {
			return Value{}, err
		}
		y, err := m.st.lookupRef(b)
		if err != nil {
			return Value{}, err
		}
		return Num(float64(x - y)), nil
	}
	return Value{}, operandError(OpSub, a, b)
}

// equality compares numbers with numbers and text with text. Mixed
// number and text operands are never equal.
func equality(op Opcode, a, b Value) (Value, error) {
	var eq bool
	switch {
	case a.IsNumber() && b.IsNumber():
		eq = a.Num == b.Num
	case a.IsText() && b.IsText():
		eq = a.Text == b.Text
	case a.IsNumber() && b.IsText(), a.IsText() && b.IsNumber():
		eq = false
	default:
		return Value{}, operandError(op, a, b)
	}
	if op == OpNe {
		return Bool(!eq), nil
	}
	return Bool(eq), nil
}

func compare(op Opcode, a, b Value) (Value, error) {
	var c int
	switch {
	case a.IsNumber() && b.IsNumber():
		switch {
		case a.Num < b.Num:
			c = -1
		case a.Num > b.Num:
			c = 1
		case a.Num != b.Num:
			// NaN compares false every way
			return Bool(false), nil
		}
	case a.IsText() && b.IsText():
		c = strings.Compare(a.Text, b.Text)
	default:
		return Value{}, operandError(op, a, b)
	}
	switch op {
	case OpLt:
		return Bool(c < 0), nil
	case OpLe:
		return Bool(c <= 0), nil
	case OpGt:
		return Bool(c > 0), nil
	default:
		return Bool(c >= 0), nil
	}
}

// charCode converts a whole number from 0 to 255 to a one-byte string.
func charCode(n float64) (string, error) {
	if n != math.Trunc(n) || n < 0 || n > 255 {
		return "", fmt.Errorf("%w: character code %s is not a whole number from 0 to 255", ErrTypeMismatch, FormatNumber(n))
	}
	return string([]byte{byte(n)}), nil
}

func operandError(op Opcode, a, b Value) error {
	return fmt.Errorf("%w: %s on %s and %s", ErrTypeMismatch, op, a.Kind, b.Kind)
}
