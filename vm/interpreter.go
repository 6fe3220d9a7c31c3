package vm

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Frame is one active call: where to come back to, where the call
// entered, and the scope prefix in force at the call site.
type Frame struct {
	Return int
	Target int
	Prefix []string
}

// Machine executes a State's program. A fresh Machine is used for each run,
// so the call stack never outlives an Execute.
type Machine struct {
	st     *State
	ip     int
	frames []Frame
	prefix []string
}

func newMachine(s *State, prefix []string) *Machine {
	return &Machine{st: s, prefix: prefix}
}

// run executes from start until the end of the program or a stop.
func (m *Machine) run(start int) error {
	s := m.st
	m.ip = start
	for m.ip < s.prog.Len() {
		in := s.prog.Code[m.ip]

		if s.Trace {
			log.Debugf("[%04d] %-32s sp=%d frames=%d", m.ip, in.String(), len(s.stack), len(m.frames))
		}

		stop, err := m.step(in)
		if err != nil {
			return m.fail(err)
		}
		if stop {
			return nil
		}
		m.ip++
	}
	return nil
}

func (m *Machine) step(in Instruction) (bool, error) {
	s := m.st
	switch in.Op {
	// ============ Stack Operations ============
	case OpNop:
		// Do nothing

	case OpDup:
		v, err := m.peek(in.Op)
		if err != nil {
			return false, err
		}
		m.push(v)

	case OpSwap:
		a, b, err := m.pop2(in.Op)
		if err != nil {
			return false, err
		}
		m.push(b)
		m.push(a)

	case OpDrop:
		if _, err := m.pop(in.Op); err != nil {
			return false, err
		}

	case OpPull:
		return false, m.pull()

	// ============ Literals ============
	case OpPushNum:
		m.push(Num(in.Num))

	case OpPushText:
		m.push(Str(in.Text))

	// ============ References ============
	case OpRefNamed:
		m.push(Named(in.Text, in.Offset))

	case OpRefAbs:
		m.push(Abs(in.Index))

	case OpAddressOf:
		return false, m.addressOf()

	// ============ Self-modification ============
	case OpPut:
		ref, val, err := m.popRefAnd(in.Op)
		if err != nil {
			return false, err
		}
		target, err := s.resolveRef(ref, m.ip)
		if err != nil {
			return false, err
		}
		return false, m.writeCell(target, val)

	case OpGet:
		ref, err := m.pop(in.Op)
		if err != nil {
			return false, err
		}
		target, err := s.resolveRef(ref, m.ip)
		if err != nil {
			return false, err
		}
		v, err := m.readCell(target)
		if err != nil {
			return false, err
		}
		m.push(v)

	case OpArrowPut:
		return false, m.arrowPut()

	// ============ Arithmetic, Comparison, Logic ============
	case OpAdd, OpSub, OpMul, OpDiv, OpMod,
		OpEq, OpNe, OpLt, OpLe, OpGt, OpGe,
		OpAnd, OpOr:
		a, b, err := m.pop2(in.Op)
		if err != nil {
			return false, err
		}
		v, err := m.binary(in.Op, a, b)
		if err != nil {
			return false, err
		}
		m.push(v)

	case OpNot:
		v, err := m.pop(in.Op)
		if err != nil {
			return false, err
		}
		if !v.IsNumber() {
			return false, typeMismatch("a number for not", v)
		}
		m.push(Bool(v.Num == 0))

	// ============ Control Flow ============
	case OpJmp:
		ref, err := m.pop(in.Op)
		if err != nil {
			return false, err
		}
		target, err := s.resolveRef(ref, m.ip)
		if err != nil {
			return false, err
		}
		return false, m.call(target)

	case OpJmpIf:
		ref, cond, err := m.popRefAnd(in.Op)
		if err != nil {
			return false, err
		}
		if !ref.IsRef() {
			return false, typeMismatch("a reference as jump target", ref)
		}
		if !cond.IsNumber() {
			return false, typeMismatch("a number as jump condition", cond)
		}
		if cond.Num == 0 {
			return false, nil
		}
		target, err := s.resolveRef(ref, m.ip)
		if err != nil {
			return false, err
		}
		return false, m.call(target)

	case OpLoopIf:
		cond, err := m.pop(in.Op)
		if err != nil {
			return false, err
		}
		if !cond.IsNumber() {
			return false, typeMismatch("a number as loop condition", cond)
		}
		if cond.Num == 0 {
			return false, nil
		}
		if len(m.frames) == 0 {
			return false, fmt.Errorf("%w: loop? outside of a called block", ErrNoFrame)
		}
		m.ip = m.frames[len(m.frames)-1].Target

	case OpReturn:
		m.ret(m.returnRun())

	case OpEndDefine:
		m.ret(1)

	case OpStop:
		return true, nil

	// ============ Blocks ============
	case OpBeginDefine:
		return false, m.define(in)

	case OpLambda:
		m.push(Abs(m.ip))
		m.ip += in.Skip

	// ============ Host ============
	case OpPrint:
		v, err := m.pop(in.Op)
		if err != nil {
			return false, err
		}
		s.host.WriteLine(v.String())

	case OpStackDump:
		s.host.WriteLine(FormatStack(s.stack))

	case OpInclude:
		name, err := m.pop(in.Op)
		if err != nil {
			return false, err
		}
		if !name.IsText() {
			return false, typeMismatch("text naming an include", name)
		}
		return false, m.include(name.Text)

	case OpPlaceholder:
		return false, fmt.Errorf("%w in %s", ErrPlaceholder, m.callPath())

	case OpSubProg:
		return false, m.subProgram()

	default:
		return false, fmt.Errorf("unknown opcode 0x%02x", byte(in.Op))
	}
	return false, nil
}

// ============ Stack helpers ============

func (m *Machine) push(v Value) {
	m.st.stack = append(m.st.stack, v)
}

func (m *Machine) peek(op Opcode) (Value, error) {
	n := len(m.st.stack)
	if n == 0 {
		return Value{}, underflow(op, 1, 0)
	}
	return m.st.stack[n-1], nil
}

func (m *Machine) pop(op Opcode) (Value, error) {
	v, err := m.peek(op)
	if err != nil {
		return v, err
	}
	m.st.stack = m.st.stack[:len(m.st.stack)-1]
	return v, nil
}

// pop2 pops the second-from-top and top values, in that order.
func (m *Machine) pop2(op Opcode) (Value, Value, error) {
	n := len(m.st.stack)
	if n < 2 {
		return Value{}, Value{}, underflow(op, 2, n)
	}
	a, b := m.st.stack[n-2], m.st.stack[n-1]
	m.st.stack = m.st.stack[:n-2]
	return a, b, nil
}

// popRefAnd pops the top (a reference) and the value beneath it.
func (m *Machine) popRefAnd(op Opcode) (ref, below Value, err error) {
	below, ref, err = m.pop2(op)
	return ref, below, err
}

func (m *Machine) pull() error {
	n, err := m.pop(OpPull)
	if err != nil {
		return err
	}
	if !n.IsNumber() || n.Num != math.Trunc(n.Num) {
		return typeMismatch("an integer index for pull", n)
	}
	depth := len(m.st.stack)
	i := int(n.Num)
	if i < 0 {
		i += depth
	}
	if i < 0 || i >= depth {
		return fmt.Errorf("%w: pull %d on a stack of %d", ErrOutOfRange, int(n.Num), depth)
	}
	m.push(m.st.stack[i])
	return nil
}

// ============ Calls ============

func (m *Machine) call(target int) error {
	if !m.st.prog.InRange(target) {
		return fmt.Errorf("%w: jump to @%d, program has %d instructions", ErrOutOfRange, target, m.st.prog.Len())
	}
	m.frames = append(m.frames, Frame{Return: m.ip, Target: target, Prefix: m.prefix})
	if in := m.st.prog.Code[target]; in.Op.IsBlockStart() && in.Scope != "" {
		m.prefix = SplitScope(in.Scope)
	}
	m.ip = target
	return nil
}

// ret unwinds up to levels calls and continues after the outermost
// unwound call site. With no active call it does nothing.
func (m *Machine) ret(levels int) {
	n := len(m.frames)
	if n == 0 {
		return
	}
	if levels > n {
		levels = n
	}
	f := m.frames[n-levels]
	m.frames = m.frames[:n-levels]
	m.ip = f.Return
	m.prefix = f.Prefix
}

// returnRun counts the consecutive returns starting at ip, so _N unwinds
// N calls at once.
func (m *Machine) returnRun() int {
	n := 1
	for {
		in, ok := m.st.prog.At(m.ip + n)
		if !ok || in.Op != OpReturn {
			return n
		}
		n++
	}
}

// define registers the label of the block at ip and skips its body.
func (m *Machine) define(in Instruction) error {
	s := m.st
	var name string
	if in.Vis == Public {
		label, ok := precedingLabel(s.prog, m.ip)
		if !ok {
			return fmt.Errorf("%w: public definition has no label", ErrTypeMismatch)
		}
		name = label
		if top, err := m.peek(in.Op); err == nil && top.IsText() && top.Text == label {
			m.st.stack = m.st.stack[:len(m.st.stack)-1]
		}
	} else {
		v, err := m.pop(in.Op)
		if err != nil {
			return err
		}
		if !v.IsText() || v.Text == "" || strings.Contains(v.Text, ScopeSep) {
			return typeMismatch("a plain label name", v)
		}
		name = v.Text
	}
	if in.Skip <= 0 {
		return fmt.Errorf("%w: block at @%d was never resolved", ErrBadCell, m.ip)
	}

	q := Qualify(m.prefix, name)
	s.labels.Define(q, m.ip)
	s.prog.Code[m.ip].Scope = q
	if s.Trace {
		log.Debugf("defined %s at @%d", q, m.ip)
	}
	m.ip += in.Skip
	return nil
}

// addressOf turns a label name on the stack into a named reference.
func (m *Machine) addressOf() error {
	v, err := m.pop(OpAddressOf)
	if err != nil {
		return err
	}
	if !v.IsText() {
		return typeMismatch("text naming a label", v)
	}
	name := v.Text
	if IsRelative(name) {
		q, _, ok := m.st.labels.lookupRelative(m.prefix, strings.TrimPrefix(name, ScopeSep))
		if !ok {
			return unresolved(name)
		}
		name = q
	} else if _, ok := m.st.labels.Lookup(name); !ok {
		return unresolved(name)
	}
	m.push(Named(name, 0))
	return nil
}

// ============ Cells ============

func (m *Machine) writeCell(target int, v Value) error {
	cell := target + 1
	in, ok := m.st.prog.At(cell)
	if !ok {
		return fmt.Errorf("%w: cell @%d", ErrOutOfRange, cell)
	}
	if in.Op.IsMarker() {
		return fmt.Errorf("%w: @%d holds %s", ErrBadCell, cell, in.Op)
	}
	m.st.prog.Code[cell] = CellInstruction(v)
	return nil
}

func (m *Machine) readCell(target int) (Value, error) {
	cell := target + 1
	in, ok := m.st.prog.At(cell)
	if !ok {
		return Value{}, fmt.Errorf("%w: cell @%d", ErrOutOfRange, cell)
	}
	v, ok := in.Value()
	if !ok {
		return Value{}, fmt.Errorf("%w: @%d holds %s", ErrBadCell, cell, in.Op)
	}
	return v, nil
}

// arrowPut stores the top of stack into the cell of the reference that
// follows it, then skips that reference.
func (m *Machine) arrowPut() error {
	next, ok := m.st.prog.At(m.ip + 1)
	if !ok || !next.Op.IsRef() {
		return fmt.Errorf("%w: -> must be followed by a reference", ErrTypeMismatch)
	}
	v, err := m.pop(OpArrowPut)
	if err != nil {
		return err
	}
	target, err := m.st.resolveSite(m.ip + 1)
	if err != nil {
		return err
	}
	if err := m.writeCell(target, v); err != nil {
		return err
	}
	m.ip++
	return nil
}

// ============ Include and sub-programs ============

// include splices the named source after the current instruction and
// re-resolves the program.
func (m *Machine) include(name string) error {
	s := m.st
	if s.includer == nil {
		return fmt.Errorf("%w: %q: no include provider", ErrInclude, name)
	}
	if s.lex == nil {
		return ErrNoLexer
	}
	src, err := s.includer.Include(name)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInclude, name, err)
	}
	code, refs, err := s.lex(src, name)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInclude, name, err)
	}

	// Splice and resolve on copies; the live session only changes once
	// the grown program resolves.
	at, n := m.ip+1, len(code)
	prog, labels, ids := s.prog.Clone(), s.labels.Clone(), s.ids
	prog.ShiftAbs(at, n)
	labels.Shift(at, n)
	prog.Splice(at, code, refs)
	if err := Resolve(prog, labels, &ids); err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInclude, name, err)
	}
	s.prog, s.labels, s.ids = prog, labels, ids

	for i := range m.frames {
		if m.frames[i].Return >= at {
			m.frames[i].Return += n
		}
		if m.frames[i].Target >= at {
			m.frames[i].Target += n
		}
	}
	for i, v := range s.stack {
		if v.Kind == KindAbsRef && v.Index >= at {
			s.stack[i].Index += n
		}
	}
	if s.resume >= at {
		s.resume += n
	}
	log.Debugf("included %q: %d instructions at @%d", name, n, at)
	return nil
}

// subProgram runs the code after the current instruction in an isolated
// child session until it stops, then continues after the child's stop
// with the child's top value.
func (m *Machine) subProgram() error {
	child := m.st.fork()
	cm := newMachine(child, m.prefix)
	if err := cm.run(m.ip + 1); err != nil {
		return fmt.Errorf("sub-program: %w", err)
	}
	m.st.cache.Hits += child.cache.Hits
	m.st.cache.Misses += child.cache.Misses
	m.ip = cm.ip
	if n := len(child.stack); n > 0 {
		m.push(child.stack[n-1])
	}
	return nil
}

// ============ Diagnostics ============

// callPath names the active calls, outermost first.
func (m *Machine) callPath() string {
	if len(m.frames) == 0 {
		return "top level"
	}
	parts := make([]string, 0, len(m.frames))
	for _, f := range m.frames {
		name, ok := m.st.labels.NameAt(f.Target)
		if !ok {
			name = "@" + fmt.Sprint(f.Target)
		}
		parts = append(parts, name)
	}
	return strings.Join(parts, " > ")
}

func (m *Machine) traceback() []TraceEntry {
	out := make([]TraceEntry, 0, len(m.frames))
	for i := len(m.frames) - 1; i >= 0; i-- {
		f := m.frames[i]
		label, _ := m.st.labels.NameAt(f.Target)
		out = append(out, TraceEntry{Label: label, Target: f.Target, Return: f.Return, Ref: m.st.prog.Ref(f.Return)})
	}
	return out
}

func (m *Machine) fail(err error) *RuntimeError {
	p := m.st.prog
	re := &RuntimeError{
		Pos:    m.ip,
		Ref:    p.Ref(m.ip),
		Msg:    err.Error(),
		Trace:  m.traceback(),
		Window: window(p, m.ip, 3),
		Err:    err,
	}
	var child *RuntimeError
	if errors.As(err, &child) {
		re.Msg = "sub-program failed: " + child.Msg
	}
	return re
}

func underflow(op Opcode, need, have int) error {
	return fmt.Errorf("%w: %s needs %d operand(s), stack has %d", ErrStackUnderflow, op, need, have)
}

func typeMismatch(want string, got Value) error {
	return fmt.Errorf("%w: expected %s, got %s %s", ErrTypeMismatch, want, got.Kind, got.Repr())
}

func unresolved(name string) error {
	return fmt.Errorf("%w: %s", ErrUnresolved, name)
}
