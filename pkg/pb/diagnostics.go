// Package pb holds the gRPC contract of the diagnostics service.
//
// Messages are well-known protobuf types so no generated message code is
// needed: Invoke takes a Struct {channel, method, arguments} and returns a
// Value, Listen takes the channel as a StringValue and streams Values.
package pb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const ServiceName = "diagnostics.v1.Diagnostics"

const (
	Diagnostics_Invoke_FullMethodName   = "/diagnostics.v1.Diagnostics/Invoke"
	Diagnostics_Listen_FullMethodName   = "/diagnostics.v1.Diagnostics/Listen"
	Diagnostics_Describe_FullMethodName = "/diagnostics.v1.Diagnostics/Describe"
)

// StreamIDHeader is the Listen response header carrying the stream id.
const StreamIDHeader = "x-stream-id"

// Invoke request fields.
const (
	FieldChannel   = "channel"
	FieldMethod    = "method"
	FieldArguments = "arguments"
)

// NewInvokeRequest builds an Invoke request. Arguments must be
// structpb-compatible (nil, bool, numbers, string, []any, map[string]any).
func NewInvokeRequest(channel, method string, args map[string]any) (*structpb.Struct, error) {
	fields := map[string]any{
		FieldChannel: channel,
		FieldMethod:  method,
	}
	if len(args) > 0 {
		fields[FieldArguments] = args
	}
	return structpb.NewStruct(fields)
}

// DiagnosticsClient is the client API for the Diagnostics service.
type DiagnosticsClient interface {
	Invoke(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Value, error)
	Listen(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Value], error)
	Describe(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type diagnosticsClient struct {
	cc grpc.ClientConnInterface
}

func NewDiagnosticsClient(cc grpc.ClientConnInterface) DiagnosticsClient {
	return &diagnosticsClient{cc}
}

func (c *diagnosticsClient) Invoke(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Value, error) {
	out := new(structpb.Value)
	if err := c.cc.Invoke(ctx, Diagnostics_Invoke_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *diagnosticsClient) Listen(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Value], error) {
	stream, err := c.cc.NewStream(ctx, &Diagnostics_ServiceDesc.Streams[0], Diagnostics_Listen_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[wrapperspb.StringValue, structpb.Value]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func (c *diagnosticsClient) Describe(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, Diagnostics_Describe_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// DiagnosticsServer is the server API for the Diagnostics service.
type DiagnosticsServer interface {
	Invoke(context.Context, *structpb.Struct) (*structpb.Value, error)
	Listen(*wrapperspb.StringValue, grpc.ServerStreamingServer[structpb.Value]) error
	Describe(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

func RegisterDiagnosticsServer(s grpc.ServiceRegistrar, srv DiagnosticsServer) {
	s.RegisterService(&Diagnostics_ServiceDesc, srv)
}

func _Diagnostics_Invoke_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DiagnosticsServer).Invoke(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: Diagnostics_Invoke_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DiagnosticsServer).Invoke(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _Diagnostics_Describe_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DiagnosticsServer).Describe(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: Diagnostics_Describe_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DiagnosticsServer).Describe(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _Diagnostics_Listen_Handler(srv any, stream grpc.ServerStream) error {
	m := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(DiagnosticsServer).Listen(m, &grpc.GenericServerStream[wrapperspb.StringValue, structpb.Value]{ServerStream: stream})
}

// Diagnostics_ServiceDesc is the grpc.ServiceDesc for the Diagnostics service.
var Diagnostics_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DiagnosticsServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Invoke",
			Handler:    _Diagnostics_Invoke_Handler,
		},
		{
			MethodName: "Describe",
			Handler:    _Diagnostics_Describe_Handler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Listen",
			Handler:       _Diagnostics_Listen_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "diagnostics/v1/diagnostics.proto",
}
