package source

import (
	"errors"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/chazu/nother/vm"
)

func openLibrary(t *testing.T) *Library {
	t.Helper()
	lib, err := OpenLibrary(filepath.Join(t.TempDir(), "library.db"))
	if err != nil {
		t.Fatalf("OpenLibrary failed: %v", err)
	}
	t.Cleanup(func() { lib.Close() })
	return lib
}

func TestLibraryPutInclude(t *testing.T) {
	lib := openLibrary(t)
	if err := lib.Put("greet.nth", `"hi" print`); err != nil {
		t.Fatal(err)
	}
	src, err := lib.Include("greet")
	if err != nil {
		t.Fatal(err)
	}
	if src != `"hi" print` {
		t.Errorf("Include(greet) = %q", src)
	}

	if err := lib.Put("greet", `"hello" print`); err != nil {
		t.Fatal(err)
	}
	m, err := lib.Get("greet.nth")
	if err != nil {
		t.Fatal(err)
	}
	if m.Source != `"hello" print` || m.UpdatedAt.IsZero() {
		t.Errorf("Get after replace = %+v", m)
	}
}

func TestLibraryNotFound(t *testing.T) {
	lib := openLibrary(t)
	if _, err := lib.Include("nope"); !errors.Is(err, vm.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestLibraryNamesDeleteImport(t *testing.T) {
	lib := openLibrary(t)
	n, err := lib.Import(fstest.MapFS{
		"b.nth":     {Data: []byte("b")},
		"a/x.nth":   {Data: []byte("x")},
		"readme.md": {Data: []byte("skip")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("Import stored %d modules, want 2", n)
	}

	names, err := lib.Names()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "a/x" || names[1] != "b" {
		t.Errorf("Names() = %v", names)
	}

	if err := lib.Delete("b"); err != nil {
		t.Fatal(err)
	}
	if _, err := lib.Include("b"); !errors.Is(err, vm.ErrNotFound) {
		t.Errorf("Expected deleted module to be gone, got %v", err)
	}
}

func TestLibraryPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.db")
	lib, err := OpenLibrary(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := lib.Put("keep", "1"); err != nil {
		t.Fatal(err)
	}
	lib.Close()

	reopened, err := OpenLibrary(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if src, err := reopened.Include("keep"); err != nil || src != "1" {
		t.Errorf("Include(keep) after reopen = %q, %v", src, err)
	}
}
