package vm

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// Host receives everything the engine emits to the outside world.
type Host interface {
	// WriteLine emits one line of program output.
	WriteLine(line string)
	// ReportError is called once for every failed Execute.
	ReportError(err error)
}

// Includer provides the source text behind an include name.
// Implementations return an error wrapping ErrNotFound for unknown names.
type Includer interface {
	Include(name string) (string, error)
}

// IncluderFunc adapts a function to the Includer interface.
type IncluderFunc func(name string) (string, error)

// Include calls f(name).
func (f IncluderFunc) Include(name string) (string, error) { return f(name) }

// LexFunc turns source text into instructions with parallel source refs.
// file names the origin for diagnostics and may be empty.
type LexFunc func(src, file string) ([]Instruction, []SourceRef, error)

// WriterHost writes output lines to Out and rendered errors to Err.
type WriterHost struct {
	Out io.Writer
	Err io.Writer
}

// NewWriterHost creates a host writing to out and errw.
func NewWriterHost(out, errw io.Writer) *WriterHost {
	return &WriterHost{Out: out, Err: errw}
}

func (h *WriterHost) WriteLine(line string) {
	fmt.Fprintln(h.Out, line)
}

func (h *WriterHost) ReportError(err error) {
	if h.Err == nil {
		return
	}
	var re *RuntimeError
	if errors.As(err, &re) {
		fmt.Fprint(h.Err, re.Render())
		return
	}
	fmt.Fprintln(h.Err, err)
}

// BufferHost collects output lines and errors in memory. It is safe for
// concurrent use.
type BufferHost struct {
	mu    sync.Mutex
	lines []string
	errs  []error
}

func (h *BufferHost) WriteLine(line string) {
	h.mu.Lock()
	h.lines = append(h.lines, line)
	h.mu.Unlock()
}

func (h *BufferHost) ReportError(err error) {
	h.mu.Lock()
	h.errs = append(h.errs, err)
	h.mu.Unlock()
}

// Lines returns a copy of the collected output.
func (h *BufferHost) Lines() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.lines...)
}

// Errors returns a copy of the collected errors.
func (h *BufferHost) Errors() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.errs...)
}

// Drain returns and clears the collected output.
func (h *BufferHost) Drain() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.lines
	h.lines = nil
	return out
}

// discardHost drops everything.
type discardHost struct{}

func (discardHost) WriteLine(string)  {}
func (discardHost) ReportError(error) {}
