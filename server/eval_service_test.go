package server

import (
	"net/http/httptest"
	"strings"
	"testing"

	"connectrpc.com/connect"
)

// ---------------------------------------------------------------------------
// Evaluate: direct handler calls
// ---------------------------------------------------------------------------

func TestEvaluate_Print(t *testing.T) {
	svc := newTestServer(t).eval

	resp, err := svc.Evaluate(bg(), connectReq(t, map[string]any{
		"source": "(3 + 4) print 5",
	}))
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if !field(resp.Msg, "success").GetBoolValue() {
		t.Fatalf("Evaluate was not successful: %s", field(resp.Msg, "error").GetStringValue())
	}
	if got := strs(resp.Msg, "output"); !equalStrings(got, []string{"7"}) {
		t.Errorf("output = %v, want [7]", got)
	}
	if got := strs(resp.Msg, "stack"); !equalStrings(got, []string{"5"}) {
		t.Errorf("stack = %v, want [5]", got)
	}
	if field(resp.Msg, "session").GetStringValue() == "" {
		t.Error("Evaluate should return a session id")
	}
}

func TestEvaluate_SessionPersists(t *testing.T) {
	svc := newTestServer(t).eval

	first, err := svc.Evaluate(bg(), connectReq(t, map[string]any{
		"source": `"sq" is dup * }`,
	}))
	if err != nil {
		t.Fatal(err)
	}
	id := field(first.Msg, "session").GetStringValue()

	second, err := svc.Evaluate(bg(), connectReq(t, map[string]any{
		"session": id,
		"source":  "6 @sq! print",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if got := strs(second.Msg, "output"); !equalStrings(got, []string{"36"}) {
		t.Errorf("output = %v, want [36]", got)
	}
}

func TestEvaluate_Args(t *testing.T) {
	svc := newTestServer(t).eval

	resp, err := svc.Evaluate(bg(), connectReq(t, map[string]any{
		"source": "print print print",
		"args":   []any{"a", "b"},
	}))
	if err != nil {
		t.Fatal(err)
	}
	if got := strs(resp.Msg, "output"); !equalStrings(got, []string{"2", "b", "a"}) {
		t.Errorf("output = %v, want [2 b a]", got)
	}
}

func TestEvaluate_RuntimeErrorInBand(t *testing.T) {
	svc := newTestServer(t).eval

	resp, err := svc.Evaluate(bg(), connectReq(t, map[string]any{
		"source": "drop",
	}))
	if err != nil {
		t.Fatalf("runtime errors should be reported in the response, got %v", err)
	}
	if field(resp.Msg, "success").GetBoolValue() {
		t.Fatal("Evaluate should not succeed")
	}
	if msg := field(resp.Msg, "error").GetStringValue(); !strings.Contains(msg, "RUNTIME ERROR") {
		t.Errorf("error = %q, want a rendered runtime error", msg)
	}
}

func TestEvaluate_Validation(t *testing.T) {
	svc := newTestServer(t).eval

	tests := []struct {
		name   string
		fields map[string]any
		code   connect.Code
	}{
		{"missing source", map[string]any{}, connect.CodeInvalidArgument},
		{"unknown session", map[string]any{"source": "1", "session": "nope"}, connect.CodeNotFound},
		{"bad args", map[string]any{"source": "1", "args": []any{1.0}}, connect.CodeInvalidArgument},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Evaluate(bg(), connectReq(t, tc.fields))
			if connect.CodeOf(err) != tc.code {
				t.Errorf("code = %v, want %v (err %v)", connect.CodeOf(err), tc.code, err)
			}
		})
	}
}

func TestResetAndLabels(t *testing.T) {
	svc := newTestServer(t).eval

	resp, err := svc.Evaluate(bg(), connectReq(t, map[string]any{
		"source": `"alpha" is 1 } "beta" is "inner" is 2 } }`,
	}))
	if err != nil {
		t.Fatal(err)
	}
	id := field(resp.Msg, "session").GetStringValue()

	labels, err := svc.Labels(bg(), connectReq(t, map[string]any{"session": id, "prefix": "beta"}))
	if err != nil {
		t.Fatal(err)
	}
	got := labels.Msg.GetFields()["labels"].GetStructValue().GetFields()
	if len(got) != 2 {
		t.Errorf("labels = %v, want beta and beta::inner", got)
	}
	if _, ok := got["beta::inner"]; !ok {
		t.Errorf("labels missing beta::inner: %v", got)
	}

	if _, err := svc.Reset(bg(), connectReq(t, map[string]any{"session": id})); err != nil {
		t.Fatal(err)
	}
	labels, err = svc.Labels(bg(), connectReq(t, map[string]any{"session": id}))
	if err != nil {
		t.Fatal(err)
	}
	if n := len(labels.Msg.GetFields()["labels"].GetStructValue().GetFields()); n != 0 {
		t.Errorf("%d labels after Reset, want 0", n)
	}

	if _, err := svc.Reset(bg(), connectReq(t, map[string]any{})); connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("Reset without session: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Over HTTP with the Connect client
// ---------------------------------------------------------------------------

func TestEvalServiceOverHTTP(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	client := NewEvalServiceClient(ts.Client(), ts.URL)

	resp, err := client.Evaluate(bg(), connectReq(t, map[string]any{
		"source": `"hello" print`,
	}))
	if err != nil {
		t.Fatalf("Evaluate over HTTP failed: %v", err)
	}
	if got := strs(resp.Msg, "output"); !equalStrings(got, []string{"hello"}) {
		t.Errorf("output = %v", got)
	}

	_, err = client.Labels(bg(), connectReq(t, map[string]any{"session": "missing"}))
	if connect.CodeOf(err) != connect.CodeNotFound {
		t.Errorf("Labels for unknown session: %v", err)
	}
}

func TestEvalServiceJSON(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	client := NewEvalServiceClient(ts.Client(), ts.URL, connect.WithProtoJSON())
	resp, err := client.Evaluate(bg(), connectReq(t, map[string]any{"source": "1 2 +"}))
	if err != nil {
		t.Fatalf("Evaluate with JSON codec failed: %v", err)
	}
	if got := strs(resp.Msg, "stack"); !equalStrings(got, []string{"3"}) {
		t.Errorf("stack = %v, want [3]", got)
	}
}
