package server

import (
	"context"
	"testing"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
)

// newTestServer creates a Server whose sweeper never fires during a test.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	s := New(WithSessionTTL(time.Hour, time.Hour))
	t.Cleanup(s.Stop)
	return s
}

// msg builds a Struct request, failing the test on unsupported values.
func msg(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()
	st, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("NewStruct failed: %v", err)
	}
	return st
}

func connectReq(t *testing.T, fields map[string]any) *connect.Request[structpb.Struct] {
	t.Helper()
	return connect.NewRequest(msg(t, fields))
}

func strs(st *structpb.Struct, name string) []string {
	var out []string
	for _, v := range st.GetFields()[name].GetListValue().GetValues() {
		out = append(out, v.GetStringValue())
	}
	return out
}

func field(st *structpb.Struct, name string) *structpb.Value {
	return st.GetFields()[name]
}

func bg() context.Context {
	return context.Background()
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
