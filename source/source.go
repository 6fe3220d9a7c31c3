// Package source provides the text behind include names: a directory search
// path, an fs.FS bundle, a SQLite-backed library and a chain of these.
// Every provider satisfies vm.Includer and reports unknown names with an
// error wrapping vm.ErrNotFound.
package source

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/chazu/nother/vm"
	"github.com/tliron/commonlog"
)

// Ext is the file extension of nother source files.
const Ext = ".nth"

var log = commonlog.GetLogger("nother.source")

// ErrNotFound is returned, wrapped, for names no provider knows.
var ErrNotFound = vm.ErrNotFound

//go:embed std/*.nth
var stdFS embed.FS

// candidates returns the names to try for an include, the bare name first
// and then the name with Ext appended when it has no extension.
func candidates(name string) []string {
	if path.Ext(name) != "" {
		return []string{name}
	}
	return []string{name, name + Ext}
}

func notFound(name string) error {
	return fmt.Errorf("source: %q: %w", name, vm.ErrNotFound)
}

// ---------------------------------------------------------------------------
// Dirs
// ---------------------------------------------------------------------------

// Dirs resolves include names against a list of directories. The first
// directory holding the file wins. Absolute names are read directly unless
// the search path is confined.
type Dirs struct {
	Paths []string

	// Confined restricts names to local paths and reads them through an
	// os.Root per directory, so neither "..", absolute names nor symlinks
	// reach files outside Paths.
	Confined bool
}

// ErrEscape is returned, wrapped, for names a confined search path refuses.
var ErrEscape = errors.New("include name escapes the search path")

// NewDirs creates a directory search path.
func NewDirs(paths ...string) *Dirs {
	return &Dirs{Paths: paths}
}

// NewConfinedDirs creates a search path that never reads outside paths.
func NewConfinedDirs(paths ...string) *Dirs {
	return &Dirs{Paths: paths, Confined: true}
}

// Include reads the named file from the first directory that has it.
func (d *Dirs) Include(name string) (string, error) {
	if d.Confined {
		return d.includeConfined(name)
	}
	for _, cand := range candidates(name) {
		if filepath.IsAbs(cand) {
			if src, ok, err := readFile(cand); ok || err != nil {
				return src, err
			}
			continue
		}
		for _, dir := range d.Paths {
			if src, ok, err := readFile(filepath.Join(dir, filepath.FromSlash(cand))); ok || err != nil {
				return src, err
			}
		}
	}
	return "", notFound(name)
}

func (d *Dirs) includeConfined(name string) (string, error) {
	if !filepath.IsLocal(filepath.FromSlash(name)) {
		return "", fmt.Errorf("source: %q: %w", name, ErrEscape)
	}
	for _, cand := range candidates(name) {
		for _, dir := range d.Paths {
			src, ok, err := readRooted(dir, filepath.FromSlash(cand))
			if ok || err != nil {
				return src, err
			}
		}
	}
	return "", notFound(name)
}

func readRooted(dir, name string) (string, bool, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("source: open %s: %w", dir, err)
	}
	defer root.Close()

	data, err := root.ReadFile(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		if fi, serr := root.Stat(name); serr == nil && fi.IsDir() {
			return "", false, nil
		}
		return "", false, fmt.Errorf("source: read %s in %s: %w", name, dir, err)
	}
	log.Debugf("include %s", filepath.Join(dir, name))
	return string(data), true, nil
}

func readFile(p string) (string, bool, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		if fi, serr := os.Stat(p); serr == nil && fi.IsDir() {
			return "", false, nil
		}
		return "", false, fmt.Errorf("source: read %s: %w", p, err)
	}
	log.Debugf("include %s", p)
	return string(data), true, nil
}

// ---------------------------------------------------------------------------
// Bundle
// ---------------------------------------------------------------------------

// Bundle resolves include names inside an fs.FS, such as an embed.FS.
type Bundle struct {
	FS fs.FS
}

// NewBundle creates a bundle over fsys.
func NewBundle(fsys fs.FS) *Bundle {
	return &Bundle{FS: fsys}
}

// Std returns the bundle of library sources shipped with nother, included
// as "std/<name>".
func Std() *Bundle {
	return NewBundle(stdFS)
}

// Include reads the named file from the bundle.
func (b *Bundle) Include(name string) (string, error) {
	for _, cand := range candidates(name) {
		p := path.Clean(strings.TrimPrefix(cand, "/"))
		if !fs.ValidPath(p) {
			continue
		}
		data, err := fs.ReadFile(b.FS, p)
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("source: read %s: %w", p, err)
		}
	}
	return "", notFound(name)
}

// Names lists the includable names in the bundle, without extension.
func (b *Bundle) Names() ([]string, error) {
	var names []string
	err := fs.WalkDir(b.FS, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && path.Ext(p) == Ext {
			names = append(names, strings.TrimSuffix(p, Ext))
		}
		return nil
	})
	return names, err
}

// ---------------------------------------------------------------------------
// Mount
// ---------------------------------------------------------------------------

// Mount exposes an includer under a name prefix: "prefix/x" is looked up
// as "x" and names outside the prefix are unknown.
type Mount struct {
	Prefix string
	Inner  vm.Includer
}

// Include strips the prefix and asks the inner provider.
func (m Mount) Include(name string) (string, error) {
	rest, ok := strings.CutPrefix(name, m.Prefix+"/")
	if !ok || rest == "" {
		return "", notFound(name)
	}
	return m.Inner.Include(rest)
}

// ---------------------------------------------------------------------------
// Chain
// ---------------------------------------------------------------------------

// Chain tries each provider in order. A provider that does not know a name
// passes it on; any other failure stops the search.
type Chain []vm.Includer

// Include returns the source from the first provider that has name.
func (c Chain) Include(name string) (string, error) {
	for _, p := range c {
		if p == nil {
			continue
		}
		src, err := p.Include(name)
		if err == nil {
			return src, nil
		}
		if !errors.Is(err, vm.ErrNotFound) {
			return "", err
		}
	}
	return "", notFound(name)
}
