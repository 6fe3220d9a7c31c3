package server

import (
	"context"
	"errors"

	"connectrpc.com/connect"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// EvalServer is the native gRPC view of the evaluation service.
type EvalServer interface {
	Evaluate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reset(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Labels(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// evalServiceDesc describes the service to grpc-go without generated code.
var evalServiceDesc = grpc.ServiceDesc{
	ServiceName: EvalServiceName,
	HandlerType: (*EvalServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Evaluate", Handler: unaryHandler(EvalServiceEvaluateProcedure, EvalServer.Evaluate)},
		{MethodName: "Reset", Handler: unaryHandler(EvalServiceResetProcedure, EvalServer.Reset)},
		{MethodName: "Labels", Handler: unaryHandler(EvalServiceLabelsProcedure, EvalServer.Labels)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "nother/v1/eval.proto",
}

// RegisterEvalServer registers srv with a gRPC server.
func RegisterEvalServer(s grpc.ServiceRegistrar, srv EvalServer) {
	s.RegisterService(&evalServiceDesc, srv)
}

func unaryHandler(method string, call func(EvalServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(EvalServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(EvalServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// grpcEval adapts EvalService to EvalServer, turning Connect errors into
// gRPC status errors. The two share the same code numbering.
type grpcEval struct {
	svc *EvalService
}

func (g grpcEval) Evaluate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	out, err := g.svc.evaluate(ctx, in)
	return out, toStatus(err)
}

func (g grpcEval) Reset(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	out, err := g.svc.reset(ctx, in)
	return out, toStatus(err)
}

func (g grpcEval) Labels(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	out, err := g.svc.labels(ctx, in)
	return out, toStatus(err)
}

func toStatus(err error) error {
	if err == nil {
		return nil
	}
	var ce *connect.Error
	if errors.As(err, &ce) {
		return status.Error(codes.Code(ce.Code()), ce.Message())
	}
	return status.Error(codes.Internal, err.Error())
}

// EvalClient calls the evaluation service over a gRPC connection.
type EvalClient struct {
	cc grpc.ClientConnInterface
}

// NewEvalClient creates a gRPC client.
func NewEvalClient(cc grpc.ClientConnInterface) *EvalClient {
	return &EvalClient{cc: cc}
}

func (c *EvalClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Evaluate calls nother.v1.EvalService.Evaluate.
func (c *EvalClient) Evaluate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, EvalServiceEvaluateProcedure, in, opts...)
}

// Reset calls nother.v1.EvalService.Reset.
func (c *EvalClient) Reset(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, EvalServiceResetProcedure, in, opts...)
}

// Labels calls nother.v1.EvalService.Labels.
func (c *EvalClient) Labels(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, EvalServiceLabelsProcedure, in, opts...)
}
