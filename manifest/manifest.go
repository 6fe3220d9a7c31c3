// Package manifest handles nother.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file looked for in a project directory.
const FileName = "nother.toml"

// Manifest represents a nother.toml project configuration.
type Manifest struct {
	Project      Project               `toml:"project" json:"project"`
	Source       Source                `toml:"source" json:"source"`
	Dependencies map[string]Dependency `toml:"dependencies" json:"dependencies,omitempty"`
	Log          LogConfig             `toml:"log" json:"log"`
	Server       ServerConfig          `toml:"server" json:"server"`
	Image        ImageConfig           `toml:"image" json:"image"`

	// Dir is the directory containing the nother.toml file (set at load time).
	Dir string `toml:"-" json:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name" json:"name,omitempty"`
	Version string `toml:"version" json:"version,omitempty"`
}

// Source configures where includes are looked up.
type Source struct {
	Dirs    []string `toml:"dirs" json:"dirs"`
	Entry   string   `toml:"entry" json:"entry,omitempty"`
	Library string   `toml:"library" json:"library,omitempty"`
}

// Dependency represents a single project dependency. Its source files are
// included as "<prefix>/<name>".
type Dependency struct {
	Git    string `toml:"git" json:"git,omitempty"`
	Tag    string `toml:"tag" json:"tag,omitempty"`
	Path   string `toml:"path" json:"path,omitempty"`
	Prefix string `toml:"prefix" json:"prefix,omitempty"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity" json:"verbosity"`
	File      string `toml:"file" json:"file,omitempty"`
}

// ServerConfig configures the eval server.
type ServerConfig struct {
	Address     string `toml:"address" json:"address,omitempty"`
	GRPCAddress string `toml:"grpc-address" json:"grpc-address,omitempty"`
}

// ImageConfig configures image output.
type ImageConfig struct {
	Output string `toml:"output" json:"output,omitempty"`
}

// Load parses and validates a nother.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// Parse decodes manifest text, applies defaults and validates the result.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}

	// Defaults
	if len(m.Source.Dirs) == 0 {
		m.Source.Dirs = []string{"src"}
	}
	if m.Log.Verbosity == 0 {
		m.Log.Verbosity = DefaultVerbosity
	}

	if err := Validate(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a nother.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// SourceDirPaths returns absolute paths for the configured source directories.
func (m *Manifest) SourceDirPaths() []string {
	var paths []string
	for _, d := range m.Source.Dirs {
		paths = append(paths, m.abs(d))
	}
	return paths
}

// EntryPath returns the entry file, or "" when none is configured.
func (m *Manifest) EntryPath() string {
	if m.Source.Entry == "" {
		return ""
	}
	return m.abs(m.Source.Entry)
}

// LibraryPath returns the include library database, or "" when none is
// configured.
func (m *Manifest) LibraryPath() string {
	if m.Source.Library == "" {
		return ""
	}
	return m.abs(m.Source.Library)
}

// LogFile returns the log file path, or "" for stderr.
func (m *Manifest) LogFile() string {
	if m.Log.File == "" {
		return ""
	}
	return m.abs(m.Log.File)
}

// DepsDir returns the path to the .nother/deps directory.
func (m *Manifest) DepsDir() string {
	return filepath.Join(m.Dir, ".nother", "deps")
}

// LockFilePath returns the path to .nother/lock.toml.
func (m *Manifest) LockFilePath() string {
	return filepath.Join(m.Dir, ".nother", "lock.toml")
}

func (m *Manifest) abs(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
