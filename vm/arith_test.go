package vm

import (
	"errors"
	"math"
	"testing"
)

func testMachine() *Machine {
	return newMachine(NewState(), nil)
}

func TestAddTable(t *testing.T) {
	m := testMachine()
	tests := []struct {
		name string
		a, b Value
		want Value
	}{
		{"numbers", Num(2), Num(3), Num(5)},
		{"texts", Str("ab"), Str("cd"), Str("abcd")},
		{"number then text", Num(65), Str("BC"), Str("ABC")},
		{"text then number", Str("A"), Num(66), Str("AB")},
		{"named ref offset", Named("x", 0), Num(3), Named("x", 3)},
		{"number plus ref", Num(2), Abs(4), Abs(6)},
	}
	for _, tc := range tests {
		got, err := m.binary(OpAdd, tc.a, tc.b)
		if err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%s: got %#v, want %#v", tc.name, got, tc.want)
		}
	}

	if _, err := m.binary(OpAdd, Named("x", 0), Str("y")); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("ref + text: err = %v, want type mismatch", err)
	}
}

func TestAddCharacterCodeRange(t *testing.T) {
	m := testMachine()
	got, err := m.binary(OpAdd, Str("x"), Num(255))
	if err != nil || got != Str("x\xff") {
		t.Errorf("x + 255 = %#v, %v", got, err)
	}
	for _, n := range []float64{-1, 256, 321, 65.5, math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := m.binary(OpAdd, Str("x"), Num(n)); !errors.Is(err, ErrTypeMismatch) {
			t.Errorf("text + %v: err = %v, want type mismatch", n, err)
		}
		if _, err := m.binary(OpAdd, Num(n), Str("x")); !errors.Is(err, ErrTypeMismatch) {
			t.Errorf("%v + text: err = %v, want type mismatch", n, err)
		}
	}
}

func TestSubReferences(t *testing.T) {
	m := testMachine()
	m.st.labels.Define("a", 4)
	m.st.labels.Define("b", 10)

	got, err := m.binary(OpSub, Named("b", 0), Named("a", 1))
	if err != nil || got != Num(5) {
		t.Errorf("b - a+1 = %#v, %v; want 5", got, err)
	}
	got, err = m.binary(OpSub, Abs(9), Num(2))
	if err != nil || got != Abs(7) {
		t.Errorf("@9 - 2 = %#v, %v", got, err)
	}
	if _, err := m.binary(OpSub, Named("nope", 0), Abs(1)); !errors.Is(err, ErrUnresolved) {
		t.Errorf("unknown ref distance: err = %v", err)
	}
}

func TestDivisionIsIEEE(t *testing.T) {
	m := testMachine()
	got, _ := m.binary(OpDiv, Num(1), Num(0))
	if !math.IsInf(got.Num, 1) {
		t.Errorf("1/0 = %v, want +Inf", got.Num)
	}
	got, _ = m.binary(OpMod, Num(-7), Num(3))
	if got.Num != -1 {
		t.Errorf("-7 %% 3 = %v, want -1", got.Num)
	}
	got, _ = m.binary(OpMod, Num(1), Num(0))
	if !math.IsNaN(got.Num) {
		t.Errorf("1 %% 0 = %v, want NaN", got.Num)
	}
}

func TestEqualityAcrossKinds(t *testing.T) {
	m := testMachine()
	tests := []struct {
		op   Opcode
		a, b Value
		want float64
	}{
		{OpEq, Str("a"), Str("b"), 0},
		{OpEq, Str("a"), Str("a"), 1},
		{OpEq, Num(1), Str("1"), 0},
		{OpNe, Num(1), Str("1"), 1},
		{OpNe, Num(2), Num(2), 0},
	}
	for _, tc := range tests {
		got, err := m.binary(tc.op, tc.a, tc.b)
		if err != nil || got.Num != tc.want {
			t.Errorf("%v %s %v = %v, %v; want %v", tc.a, tc.op, tc.b, got, err, tc.want)
		}
	}
	if _, err := m.binary(OpEq, Abs(1), Abs(1)); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("comparing refs: err = %v", err)
	}
}

func TestOrdering(t *testing.T) {
	m := testMachine()
	tests := []struct {
		op   Opcode
		a, b Value
		want float64
	}{
		{OpLt, Num(1), Num(2), 1},
		{OpLe, Num(2), Num(2), 1},
		{OpGt, Num(1), Num(2), 0},
		{OpGe, Num(3), Num(2), 1},
		{OpLt, Str("apple"), Str("banana"), 1},
		{OpGt, Num(math.NaN()), Num(1), 0},
		{OpLt, Num(math.NaN()), Num(1), 0},
	}
	for _, tc := range tests {
		got, err := m.binary(tc.op, tc.a, tc.b)
		if err != nil || got.Num != tc.want {
			t.Errorf("%v %s %v = %v, %v; want %v", tc.a, tc.op, tc.b, got, err, tc.want)
		}
	}
	if _, err := m.binary(OpLt, Num(1), Str("x")); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("mixed ordering: err = %v", err)
	}
}

func TestLogic(t *testing.T) {
	m := testMachine()
	if v, _ := m.binary(OpAnd, Num(1), Num(0)); v.Num != 0 {
		t.Errorf("1 and 0 = %v", v)
	}
	if v, _ := m.binary(OpOr, Num(0), Num(-2)); v.Num != 1 {
		t.Errorf("0 or -2 = %v", v)
	}
	if _, err := m.binary(OpAnd, Str("x"), Num(1)); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("text and: err = %v", err)
	}
}
