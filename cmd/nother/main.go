// nother CLI - runs .nth programs, hosts the REPL and starts the servers
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/nother/compiler"
	"github.com/chazu/nother/manifest"
	"github.com/chazu/nother/server"
	"github.com/chazu/nother/source"
	"github.com/chazu/nother/vm"
)

var log = commonlog.GetLogger("nother.cli")

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// options holds the parsed command line.
type options struct {
	verbose     bool
	interactive bool
	eval        string
	trace       bool
	image       string
	saveImage   string
	library     string
	store       string
	serve       bool
	port        int
	grpcPort    int
	lsp         bool
	noRC        bool
	dis         bool
	includes    []string
	file        string
	args        []string

	set map[string]bool // flags given explicitly
}

func parseFlags(argv []string, stderr io.Writer) (*options, error) {
	o := &options{set: make(map[string]bool)}
	fs := flag.NewFlagSet("nother", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.BoolVar(&o.verbose, "v", false, "Verbose logging")
	fs.BoolVar(&o.interactive, "i", false, "Start the REPL after running the file")
	fs.StringVar(&o.eval, "e", "", "Evaluate source text before the file")
	fs.BoolVar(&o.trace, "trace", false, "Log every executed instruction")
	fs.StringVar(&o.image, "image", "", "Start from a saved image")
	fs.StringVar(&o.saveImage, "save-image", "", "Save an image after running")
	fs.StringVar(&o.library, "library", "", "SQLite include library")
	fs.StringVar(&o.store, "store", "", "Import a directory of .nth files into the -library and exit")
	fs.BoolVar(&o.serve, "serve", false, "Start the eval server (Connect HTTP/JSON)")
	fs.IntVar(&o.port, "port", 4567, "Eval server port (used with -serve)")
	fs.IntVar(&o.grpcPort, "grpc-port", 0, "Also serve native gRPC on this port (used with -serve)")
	fs.BoolVar(&o.lsp, "lsp", false, "Start the language server on stdio")
	fs.BoolVar(&o.noRC, "no-rc", false, "Skip loading ~/.notherrc")
	fs.BoolVar(&o.dis, "dis", false, "Print the resolved program instead of running it")
	fs.Func("I", "Add an include directory (repeatable)", func(dir string) error {
		o.includes = append(o.includes, dir)
		return nil
	})

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: nother [options] [file.nth [args...]]\n\n")
		fmt.Fprintf(stderr, "Runs a nother program, or starts the REPL when no file is given.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  nother                          # Start REPL\n")
		fmt.Fprintf(stderr, "  nother main.nth a b             # Run main.nth with two arguments\n")
		fmt.Fprintf(stderr, "  nother -e '2 3 + print'         # Evaluate a snippet\n")
		fmt.Fprintf(stderr, "  nother -dis main.nth            # Show the resolved program\n")
		fmt.Fprintf(stderr, "  nother -library lib.db -store ./lib  # Store ./lib in lib.db\n")
		fmt.Fprintf(stderr, "  nother -serve -port 8080 -grpc-port 9090\n")
	}

	if err := fs.Parse(argv); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	if rest := fs.Args(); len(rest) > 0 {
		o.file = rest[0]
		o.args = rest[1:]
	}
	return o, nil
}

// run is the whole CLI; it returns the process exit code.
func run(argv []string, stdin io.Reader, stdout, stderr io.Writer) int {
	o, err := parseFlags(argv, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cwd, _ := os.Getwd()
	m, err := manifest.FindAndLoad(cwd)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	configureLogging(o, m)
	if m != nil {
		log.Infof("using project %q at %s", m.Project.Name, m.Dir)
	}

	lib, err := openLibrary(o, m)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if lib != nil {
		defer lib.Close()
	}

	if o.store != "" {
		if lib == nil {
			fmt.Fprintf(stderr, "Error: -store needs -library\n")
			return 2
		}
		n, err := lib.Import(os.DirFS(o.store))
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "Stored %d modules in %s\n", n, lib.Path())
		return 0
	}

	if o.lsp {
		if err := server.NewLSP().Run(); err != nil {
			fmt.Fprintf(stderr, "LSP error: %v\n", err)
			return 1
		}
		return 0
	}

	if o.file == "" && m != nil {
		o.file = m.EntryPath()
	}

	includer, err := buildIncluder(o, m, lib, o.serve)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if o.serve {
		return serve(o, m, includer, stderr)
	}

	st := vm.NewState(
		vm.WithHost(vm.NewWriterHost(stdout, stderr)),
		vm.WithLexer(compiler.Lex),
		vm.WithIncluder(includer),
		vm.WithTrace(o.trace),
	)

	if o.image != "" {
		if err := st.LoadImage(o.image); err != nil {
			fmt.Fprintf(stderr, "Error loading image: %v\n", err)
			return 1
		}
	}

	if !o.noRC {
		if err := loadRC(st); err != nil {
			fmt.Fprintf(stderr, "Warning: error loading ~/.notherrc: %v\n", err)
		}
	}

	if o.eval != "" {
		if err := st.ExecuteFile("<eval>", o.eval); err != nil {
			return 1
		}
	}

	if o.file != "" {
		code := runFile(st, o, stdout, stderr)
		if code != 0 {
			return code
		}
	}

	if o.saveImage != "" {
		if err := st.SaveImage(o.saveImage); err != nil {
			fmt.Fprintf(stderr, "Error saving image: %v\n", err)
			return 1
		}
	}

	if o.interactive || (o.file == "" && o.eval == "") {
		newREPL(st, stdout).run(stdin)
	}
	return 0
}

// runFile injects the arguments and runs (or disassembles) the main file.
func runFile(st *vm.State, o *options, stdout, stderr io.Writer) int {
	src, err := os.ReadFile(o.file)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if o.dis {
		if err := st.Load(o.file, string(src)); err != nil {
			st.Host().ReportError(err)
			return 1
		}
		fmt.Fprint(stdout, st.Disassemble())
		return 0
	}

	st.InjectArgs(o.args)
	if err := st.ExecuteFile(o.file, string(src)); err != nil {
		return 1
	}
	return 0
}

// configureLogging applies the manifest's [log] section and the flags.
func configureLogging(o *options, m *manifest.Manifest) {
	verbosity := manifest.DefaultVerbosity
	var path *string
	if m != nil {
		verbosity = m.Log.Verbosity
		if f := m.LogFile(); f != "" {
			path = &f
		}
	}
	if o.verbose {
		verbosity = max(verbosity, 4)
	}
	if o.trace {
		verbosity = 6
	}
	commonlog.Configure(verbosity, path)
}

func openLibrary(o *options, m *manifest.Manifest) (*source.Library, error) {
	path := o.library
	if path == "" && m != nil {
		path = m.LibraryPath()
	}
	if path == "" {
		return nil, nil
	}
	return source.OpenLibrary(path)
}

// buildIncluder orders the include providers: -I directories, the main
// file's directory, project source dirs, dependencies under their prefix,
// the bundled std library, then the SQLite library. A confined includer
// serves remote sessions and never reads outside those directories.
func buildIncluder(o *options, m *manifest.Manifest, lib *source.Library, confined bool) (vm.Includer, error) {
	newDirs := source.NewDirs
	if confined {
		newDirs = source.NewConfinedDirs
	}

	dirs := append([]string(nil), o.includes...)
	if o.file != "" {
		dirs = append(dirs, filepath.Dir(o.file))
	}
	if m != nil {
		dirs = append(dirs, m.SourceDirPaths()...)
	}
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	}

	chain := source.Chain{newDirs(dirs...)}

	if m != nil {
		deps, err := manifest.NewResolver(m).Resolve()
		if err != nil {
			return nil, fmt.Errorf("resolving dependencies: %w", err)
		}
		for _, dep := range deps {
			chain = append(chain, source.Mount{Prefix: dep.Prefix, Inner: newDirs(dep.SourceDirs()...)})
		}
	}

	chain = append(chain, source.Mount{Prefix: manifest.ReservedPrefix, Inner: source.Std()})
	if lib != nil {
		chain = append(chain, lib)
	}
	return chain, nil
}

func serve(o *options, m *manifest.Manifest, includer vm.Includer, stderr io.Writer) int {
	addr := fmt.Sprintf(":%d", o.port)
	var grpcAddr string
	if o.grpcPort != 0 {
		grpcAddr = fmt.Sprintf(":%d", o.grpcPort)
	}
	if m != nil {
		if m.Server.Address != "" && !o.set["port"] {
			addr = m.Server.Address
		}
		if m.Server.GRPCAddress != "" && grpcAddr == "" {
			grpcAddr = m.Server.GRPCAddress
		}
	}

	srv := server.New(server.WithStateFactory(func(host vm.Host) *vm.State {
		return vm.NewState(
			vm.WithHost(host),
			vm.WithLexer(compiler.Lex),
			vm.WithIncluder(includer),
			vm.WithTrace(o.trace),
		)
	}))
	defer srv.Stop()

	errs := make(chan error, 2)
	if grpcAddr != "" {
		go func() { errs <- srv.ListenAndServeGRPC(grpcAddr) }()
	}
	go func() { errs <- srv.ListenAndServe(addr) }()

	if err := <-errs; err != nil {
		fmt.Fprintf(stderr, "Server error: %v\n", err)
		return 1
	}
	return 0
}

// loadRC runs ~/.notherrc if it exists.
func loadRC(st *vm.State) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil // Can't find home dir, skip silently
	}

	rcPath := filepath.Join(home, ".notherrc")
	src, err := os.ReadFile(rcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	log.Infof("loading %s", rcPath)
	return st.ExecuteFile(rcPath, string(src))
}
