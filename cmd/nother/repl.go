package main

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/chazu/nother/compiler"
	"github.com/chazu/nother/vm"
)

// repl reads source line by line and executes it against one persistent
// state. Input keeps accumulating while blocks, expressions or strings
// are left open.
type repl struct {
	st  *vm.State
	out io.Writer
}

func newREPL(st *vm.State, out io.Writer) *repl {
	return &repl{st: st, out: out}
}

func (r *repl) run(in io.Reader) {
	fmt.Fprintln(r.out, "nother REPL (type 'exit' to quit, ':help' for commands)")

	scanner := bufio.NewScanner(in)
	lineBuffer := strings.Builder{}

	for {
		// Show prompt
		if lineBuffer.Len() == 0 {
			fmt.Fprint(r.out, ">> ")
		} else {
			fmt.Fprint(r.out, ".. ")
		}

		if !scanner.Scan() {
			break
		}
		line := scanner.Text()

		if lineBuffer.Len() == 0 {
			trimmed := strings.TrimSpace(line)
			if trimmed == "exit" || trimmed == "quit" {
				break
			}
			if strings.HasPrefix(trimmed, ":") {
				r.command(trimmed)
				continue
			}
		}

		if lineBuffer.Len() > 0 {
			lineBuffer.WriteString("\n")
		}
		lineBuffer.WriteString(line)

		input := lineBuffer.String()
		if compiler.Balance(input) > 0 {
			continue
		}
		lineBuffer.Reset()

		if strings.TrimSpace(input) != "" {
			// errors are already reported through the host
			_ = r.st.ExecuteFile("<repl>", input)
		}
	}

	fmt.Fprintln(r.out)
}

// command handles REPL meta-commands.
func (r *repl) command(line string) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case ":help", ":h", ":?":
		fmt.Fprintln(r.out, "REPL Commands:")
		fmt.Fprintln(r.out, "  :help, :h, :?     Show this help")
		fmt.Fprintln(r.out, "  :stack            Show the value stack")
		fmt.Fprintln(r.out, "  :labels           List defined labels")
		fmt.Fprintln(r.out, "  :dis              Disassemble the program")
		fmt.Fprintln(r.out, "  :stats            Show reference cache statistics")
		fmt.Fprintln(r.out, "  :reset            Discard program, labels and stack")
		fmt.Fprintln(r.out, "  :save FILE        Save an image")
		fmt.Fprintln(r.out, "  :load FILE        Load an image")
		fmt.Fprintln(r.out, "  exit, quit        Exit REPL")
	case ":stack":
		fmt.Fprintln(r.out, vm.FormatStack(r.st.Stack()))
	case ":labels":
		labels := r.st.Labels().Snapshot()
		names := make([]string, 0, len(labels))
		for name := range labels {
			names = append(names, name)
		}
		sort.Strings(names)
		if len(names) == 0 {
			fmt.Fprintln(r.out, "<no labels>")
		}
		for _, name := range names {
			fmt.Fprintf(r.out, "  %-24s @%d\n", name, labels[name])
		}
	case ":dis":
		fmt.Fprint(r.out, r.st.Disassemble())
	case ":stats":
		c := r.st.CacheStats()
		fmt.Fprintf(r.out, "%d instructions, %d labels\n", r.st.Program().Len(), r.st.Labels().Len())
		fmt.Fprintf(r.out, "reference cache: %d hits, %d misses (%.0f%% hit rate)\n", c.Hits, c.Misses, c.HitRate()*100)
	case ":reset":
		r.st.Reset()
		fmt.Fprintln(r.out, "State reset")
	case ":save":
		if arg == "" {
			fmt.Fprintln(r.out, "Usage: :save FILE")
			return
		}
		if err := r.st.SaveImage(arg); err != nil {
			fmt.Fprintf(r.out, "Error: %v\n", err)
			return
		}
		fmt.Fprintf(r.out, "Saved image to %s\n", arg)
	case ":load":
		if arg == "" {
			fmt.Fprintln(r.out, "Usage: :load FILE")
			return
		}
		if err := r.st.LoadImage(arg); err != nil {
			fmt.Fprintf(r.out, "Error: %v\n", err)
			return
		}
		fmt.Fprintf(r.out, "Loaded image from %s\n", arg)
	default:
		fmt.Fprintf(r.out, "Unknown command: %s (type :help for commands)\n", cmd)
	}
}
