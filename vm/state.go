package vm

import (
	"fmt"
	"strings"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("nother.vm")

// State is a persistent interpreter session: the program tape, the label
// table and the value stack survive across Execute calls. A State is not
// safe for concurrent use.
type State struct {
	prog   *Program
	labels *Labels
	ids    BlockIDs
	stack  []Value
	resume int

	host     Host
	includer Includer
	lex      LexFunc
	cache    CacheStats

	// Trace logs every executed instruction at debug level.
	Trace bool
}

// Option configures a State.
type Option func(*State)

// WithHost sets the output and error sink.
func WithHost(h Host) Option {
	return func(s *State) { s.host = h }
}

// WithIncluder sets the provider behind the include instruction.
func WithIncluder(i Includer) Option {
	return func(s *State) { s.includer = i }
}

// WithLexer sets the function used to turn source into instructions.
func WithLexer(f LexFunc) Option {
	return func(s *State) { s.lex = f }
}

// WithTrace enables per-instruction trace logging.
func WithTrace(on bool) Option {
	return func(s *State) { s.Trace = on }
}

// NewState creates an empty session. Without WithHost, output is dropped.
func NewState(opts ...Option) *State {
	s := &State{
		prog:   NewProgram(),
		labels: NewLabels(),
		host:   discardHost{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UseLexer installs the lexer after construction.
func (s *State) UseLexer(f LexFunc) { s.lex = f }

// SetHost replaces the output and error sink.
func (s *State) SetHost(h Host) {
	if h == nil {
		h = discardHost{}
	}
	s.host = h
}

// SetIncluder replaces the include provider.
func (s *State) SetIncluder(i Includer) { s.includer = i }

// Host returns the current output sink.
func (s *State) Host() Host { return s.host }

// Program returns the live instruction tape.
func (s *State) Program() *Program { return s.prog }

// Labels returns the live label table.
func (s *State) Labels() *Labels { return s.labels }

// CacheStats returns reference resolution counters.
func (s *State) CacheStats() CacheStats { return s.cache }

// Stack returns a copy of the value stack, bottom first.
func (s *State) Stack() []Value {
	return append([]Value(nil), s.stack...)
}

// Push places values on the stack before the next run.
func (s *State) Push(values ...Value) {
	s.stack = append(s.stack, values...)
}

// InjectArgs pushes each argument as text followed by the argument count.
func (s *State) InjectArgs(args []string) {
	for _, a := range args {
		s.stack = append(s.stack, Str(a))
	}
	s.stack = append(s.stack, Num(float64(len(args))))
}

// Reset discards the program, labels, stack and counters.
func (s *State) Reset() {
	s.prog = NewProgram()
	s.labels = NewLabels()
	s.ids = BlockIDs{}
	s.stack = nil
	s.resume = 0
	s.cache = CacheStats{}
}

// Execute lexes src, appends it to the program, resolves and runs the new
// instructions. Failures are reported to the host and returned.
func (s *State) Execute(src string) error {
	return s.ExecuteFile("", src)
}

// ExecuteFile is Execute with a file name recorded in source references.
func (s *State) ExecuteFile(file, src string) error {
	if err := s.Load(file, src); err != nil {
		s.host.ReportError(err)
		return err
	}
	return s.Run()
}

// Load lexes and resolves src without running it. On failure the program
// and labels are left as they were.
func (s *State) Load(file, src string) error {
	if s.lex == nil {
		return ErrNoLexer
	}
	code, refs, err := s.lex(src, file)
	if err != nil {
		return err
	}
	return s.appendResolved(code, refs)
}

// LoadInstructions appends already-lexed instructions and resolves them.
func (s *State) LoadInstructions(code []Instruction, refs []SourceRef) error {
	return s.appendResolved(code, refs)
}

func (s *State) appendResolved(code []Instruction, refs []SourceRef) error {
	start := s.prog.Len()
	saved := s.labels.Clone()
	savedIDs := s.ids
	s.prog.Append(code, refs)
	if err := Resolve(s.prog, s.labels, &s.ids); err != nil {
		s.prog.Truncate(start)
		s.labels = saved
		s.ids = savedIDs
		if start > 0 {
			// restore structural fields of the surviving prefix
			if rerr := Resolve(s.prog, s.labels, &s.ids); rerr != nil {
				log.Errorf("re-resolving after a failed load: %s", rerr)
			}
		}
		return err
	}
	return nil
}

// Run executes every instruction appended since the previous run.
func (s *State) Run() error {
	start := s.resume
	m := newMachine(s, nil)
	err := m.run(start)
	s.resume = s.prog.Len()
	if err != nil {
		s.host.ReportError(err)
		return err
	}
	return nil
}

// fork returns a child session for a sub-program: a copy of the program
// and labels with an empty stack and the same collaborators.
func (s *State) fork() *State {
	return &State{
		prog:     s.prog.Clone(),
		labels:   s.labels.Clone(),
		ids:      s.ids,
		host:     s.host,
		includer: s.includer,
		lex:      s.lex,
		Trace:    s.Trace,
	}
}

// FormatStack renders the stack bottom first, one value per line.
func FormatStack(stack []Value) string {
	if len(stack) == 0 {
		return "<empty stack>"
	}
	var b strings.Builder
	for i, v := range stack {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%3d: %s", i, v.Repr())
	}
	return b.String()
}
