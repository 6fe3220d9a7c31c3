package server

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chazu/nother/compiler"
	"github.com/chazu/nother/source"
	"github.com/chazu/nother/vm"
)

// newIncludeServer serves sessions whose includes are confined to root.
func newIncludeServer(t *testing.T, root string) *Server {
	t.Helper()
	s := New(
		WithSessionTTL(time.Hour, time.Hour),
		WithStateFactory(func(host vm.Host) *vm.State {
			return vm.NewState(
				vm.WithHost(host),
				vm.WithLexer(compiler.Lex),
				vm.WithIncluder(source.Chain{source.NewConfinedDirs(root)}),
			)
		}),
	)
	t.Cleanup(s.Stop)
	return s
}

func TestEvaluate_IncludeStaysInRoot(t *testing.T) {
	outside, root := t.TempDir(), t.TempDir()
	secret := filepath.Join(outside, "secret.txt")
	if err := os.WriteFile(secret, []byte("secret-token-xyz"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "util.nth"), []byte(`"twice" is 2 * }`), 0644); err != nil {
		t.Fatal(err)
	}
	svc := newIncludeServer(t, root).eval

	resp, err := svc.Evaluate(bg(), connectReq(t, map[string]any{
		"source": `"util" include 21 @twice! print`,
	}))
	if err != nil {
		t.Fatal(err)
	}
	if got := strs(resp.Msg, "output"); !equalStrings(got, []string{"42"}) {
		t.Fatalf("output = %v, want [42] (error %s)", got, field(resp.Msg, "error").GetStringValue())
	}

	rel, err := filepath.Rel(root, secret)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{secret, filepath.ToSlash(rel)} {
		resp, err := svc.Evaluate(bg(), connectReq(t, map[string]any{
			"source": `"` + filepath.ToSlash(name) + `" include`,
		}))
		if err != nil {
			t.Fatal(err)
		}
		if field(resp.Msg, "success").GetBoolValue() {
			t.Errorf("include %q should fail", name)
		}
		for _, key := range []string{"stack", "output"} {
			for _, v := range strs(resp.Msg, key) {
				if strings.Contains(v, "secret-token") {
					t.Errorf("include %q leaked the file through %s", name, key)
				}
			}
		}
		if msg := field(resp.Msg, "error").GetStringValue(); !strings.Contains(msg, "escapes") {
			t.Errorf("error = %q, want an escape error", msg)
		}
	}
}
