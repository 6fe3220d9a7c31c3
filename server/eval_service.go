package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/chazu/nother/vm"
)

// Procedure names of the evaluation service. Requests and responses are
// google.protobuf.Struct messages; the fields each call reads and writes
// are documented on the handler methods.
const (
	EvalServiceName = "nother.v1.EvalService"

	EvalServiceEvaluateProcedure = "/" + EvalServiceName + "/Evaluate"
	EvalServiceResetProcedure    = "/" + EvalServiceName + "/Reset"
	EvalServiceLabelsProcedure   = "/" + EvalServiceName + "/Labels"
)

// EvalService runs nother source in server-side sessions.
type EvalService struct {
	sessions *SessionStore
}

// NewEvalService creates an EvalService.
func NewEvalService(sessions *SessionStore) *EvalService {
	return &EvalService{sessions: sessions}
}

// NewEvalServiceHandler builds an HTTP handler serving the service over
// the Connect, gRPC and gRPC-Web protocols. It returns the path to mount
// the handler on.
func NewEvalServiceHandler(svc *EvalService, opts ...connect.HandlerOption) (string, http.Handler) {
	evaluate := connect.NewUnaryHandler(EvalServiceEvaluateProcedure, svc.Evaluate, opts...)
	reset := connect.NewUnaryHandler(EvalServiceResetProcedure, svc.Reset, opts...)
	labels := connect.NewUnaryHandler(EvalServiceLabelsProcedure, svc.Labels, opts...)

	return "/" + EvalServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case EvalServiceEvaluateProcedure:
			evaluate.ServeHTTP(w, r)
		case EvalServiceResetProcedure:
			reset.ServeHTTP(w, r)
		case EvalServiceLabelsProcedure:
			labels.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// EvalServiceClient calls the evaluation service over Connect.
type EvalServiceClient struct {
	evaluate *connect.Client[structpb.Struct, structpb.Struct]
	reset    *connect.Client[structpb.Struct, structpb.Struct]
	labels   *connect.Client[structpb.Struct, structpb.Struct]
}

// NewEvalServiceClient creates a client for the service at baseURL.
func NewEvalServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *EvalServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	return &EvalServiceClient{
		evaluate: connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+EvalServiceEvaluateProcedure, opts...),
		reset:    connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+EvalServiceResetProcedure, opts...),
		labels:   connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+EvalServiceLabelsProcedure, opts...),
	}
}

// Evaluate calls nother.v1.EvalService.Evaluate.
func (c *EvalServiceClient) Evaluate(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	return c.evaluate.CallUnary(ctx, req)
}

// Reset calls nother.v1.EvalService.Reset.
func (c *EvalServiceClient) Reset(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	return c.reset.CallUnary(ctx, req)
}

// Labels calls nother.v1.EvalService.Labels.
func (c *EvalServiceClient) Labels(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	return c.labels.CallUnary(ctx, req)
}

// Evaluate appends source to a session's program and runs it.
//
// Request: source (required), session (omit to start a new one), file,
// args (list of strings injected before the run).
// Response: session, success, output (printed lines), stack (value
// representations, bottom first), error (rendered failure).
func (s *EvalService) Evaluate(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	out, err := s.evaluate(ctx, req.Msg)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(out), nil
}

// Reset clears a session's program, labels and stack.
//
// Request: session (required). Response: session.
func (s *EvalService) Reset(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	out, err := s.reset(ctx, req.Msg)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(out), nil
}

// Labels lists a session's labels.
//
// Request: session (required), prefix (optional name filter).
// Response: session, labels (name to instruction index).
func (s *EvalService) Labels(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	out, err := s.labels(ctx, req.Msg)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(out), nil
}

// evalOutcome is what a run hands back from the worker goroutine.
type evalOutcome struct {
	err   error
	stack []vm.Value
}

func (s *EvalService) evaluate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	source := stringField(in, "source")
	if source == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}
	args, err := stringList(in, "args")
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	var session *Session
	if id := stringField(in, "session"); id != "" {
		var ok bool
		if session, ok = s.sessions.Get(id); !ok {
			return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", id))
		}
	} else {
		session = s.sessions.Create(stringField(in, "name"))
	}

	file := stringField(in, "file")
	res, err := session.Do(func(st *vm.State) any {
		if len(args) > 0 {
			st.InjectArgs(args)
		}
		runErr := st.ExecuteFile(file, source)
		return evalOutcome{err: runErr, stack: st.Stack()}
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	outcome := res.(evalOutcome)

	output := make([]any, 0)
	for _, line := range session.host.Drain() {
		output = append(output, line)
	}
	stack := make([]any, len(outcome.stack))
	for i, v := range outcome.stack {
		stack[i] = v.Repr()
	}

	fields := map[string]any{
		"session": session.ID,
		"success": outcome.err == nil,
		"output":  output,
		"stack":   stack,
	}
	if outcome.err != nil {
		fields["error"] = renderError(outcome.err)
	}
	return structpb.NewStruct(fields)
}

func (s *EvalService) reset(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	session, err := s.session(in)
	if err != nil {
		return nil, err
	}
	if _, err := session.Do(func(st *vm.State) any {
		st.Reset()
		return nil
	}); err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	session.host.Drain()
	return structpb.NewStruct(map[string]any{"session": session.ID})
}

func (s *EvalService) labels(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	session, err := s.session(in)
	if err != nil {
		return nil, err
	}
	prefix := stringField(in, "prefix")
	res, err := session.Do(func(st *vm.State) any {
		return st.Labels().Snapshot()
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	snapshot := res.(map[string]int)
	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	labels := make(map[string]any, len(names))
	for _, name := range names {
		labels[name] = float64(snapshot[name])
	}
	return structpb.NewStruct(map[string]any{
		"session": session.ID,
		"labels":  labels,
	})
}

func (s *EvalService) session(in *structpb.Struct) (*Session, error) {
	id := stringField(in, "session")
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("session is required"))
	}
	session, ok := s.sessions.Get(id)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", id))
	}
	return session, nil
}

// renderError formats a failure the way the command line prints it.
func renderError(err error) string {
	var re *vm.RuntimeError
	if errors.As(err, &re) {
		return strings.TrimRight(re.Render(), "\n")
	}
	return err.Error()
}

func stringField(in *structpb.Struct, name string) string {
	if in == nil {
		return ""
	}
	return in.GetFields()[name].GetStringValue()
}

func stringList(in *structpb.Struct, name string) ([]string, error) {
	if in == nil {
		return nil, nil
	}
	v, ok := in.GetFields()[name]
	if !ok {
		return nil, nil
	}
	list := v.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("%s must be a list of strings", name)
	}
	out := make([]string, 0, len(list.GetValues()))
	for _, item := range list.GetValues() {
		sv, ok := item.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, fmt.Errorf("%s must be a list of strings", name)
		}
		out = append(out, sv.StringValue)
	}
	return out, nil
}
