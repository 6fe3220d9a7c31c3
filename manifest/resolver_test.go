package manifest

import (
	"path/filepath"
	"testing"
)

func TestResolvePrefix(t *testing.T) {
	tests := []struct {
		name        string
		depName     string
		dep         Dependency
		depManifest *Manifest
		want        string
		wantErr     bool
	}{
		{
			name:        "consumer override wins",
			depName:     "mathx",
			dep:         Dependency{Path: "../m", Prefix: "m"},
			depManifest: &Manifest{Project: Project{Name: "mathx-lib"}},
			want:        "m",
		},
		{
			name:        "producer name when no override",
			depName:     "mathx",
			dep:         Dependency{Path: "../m"},
			depManifest: &Manifest{Project: Project{Name: "mathx-lib"}},
			want:        "mathx-lib",
		},
		{
			name:    "key fallback without manifest",
			depName: "mathx",
			dep:     Dependency{Path: "../m"},
			want:    "mathx",
		},
		{
			name:    "reserved prefix rejected",
			depName: "std",
			dep:     Dependency{Path: "../std"},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := resolvePrefix(tc.depName, tc.dep, tc.depManifest)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got prefix %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("prefix = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestResolvePathDependencies(t *testing.T) {
	root := t.TempDir()
	app := filepath.Join(root, "app")
	helper := filepath.Join(root, "helper")
	plain := filepath.Join(root, "plain")

	writeManifest(t, app, `
[project]
name = "app"

[dependencies]
helper = { path = "../helper" }
`)
	writeManifest(t, helper, `
[project]
name = "help"

[source]
dirs = ["lib"]

[dependencies]
plain = { path = "../plain" }
`)
	writeManifest(t, filepath.Join(plain, "unused"), "[project]\nname = \"unused\"\n")

	m, err := Load(app)
	if err != nil {
		t.Fatal(err)
	}
	deps, err := NewResolver(m).Resolve()
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(deps) != 2 {
		t.Fatalf("expected 2 deps, got %d", len(deps))
	}

	// dependencies come before dependents
	if deps[0].Name != "plain" || deps[1].Name != "helper" {
		t.Errorf("order = %s, %s", deps[0].Name, deps[1].Name)
	}
	if deps[0].Prefix != "plain" || deps[0].Manifest != nil {
		t.Errorf("plain dep = %+v", deps[0])
	}
	if dirs := deps[0].SourceDirs(); len(dirs) != 1 || dirs[0] != plain {
		t.Errorf("plain dirs = %v", dirs)
	}
	if deps[1].Prefix != "help" {
		t.Errorf("helper prefix = %q, want help", deps[1].Prefix)
	}
	if dirs := deps[1].SourceDirs(); len(dirs) != 1 || dirs[0] != filepath.Join(helper, "lib") {
		t.Errorf("helper dirs = %v", dirs)
	}

	lock, err := ReadLock(m.LockFilePath())
	if err != nil || lock == nil {
		t.Fatalf("lock file not written: %v", err)
	}
	if l := lock.FindLockedDep("helper"); l == nil || l.Path != "../helper" {
		t.Errorf("locked helper = %+v", l)
	}
	if l := lock.FindLockedDep("plain"); l == nil || l.Path != "../plain" {
		t.Errorf("locked plain = %+v", l)
	}
}

func TestResolveMissingPath(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[dependencies]\ngone = { path = \"nowhere\" }\n")
	m, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewResolver(m).Resolve(); err == nil {
		t.Error("expected error for missing path dependency")
	}
}

func TestResolvePrefixClash(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "a"), "[project]\nname = \"shared\"\n")
	writeManifest(t, filepath.Join(root, "b"), "[project]\nname = \"shared\"\n")
	app := filepath.Join(root, "app")
	writeManifest(t, app, "[dependencies]\na = { path = \"../a\" }\nb = { path = \"../b\" }\n")

	m, err := Load(app)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewResolver(m).Resolve(); err == nil {
		t.Error("expected error for two dependencies with one prefix")
	}
}
