package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/diagnostics"
	apperrors "github.com/GriffinCanCode/tradein-diagnostics/platform/internal/errors"
	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/trace"
	"github.com/GriffinCanCode/tradein-diagnostics/platform/pkg/pb"
)

// Dispatcher executes channel calls and opens event streams.
type Dispatcher interface {
	Call(ctx context.Context, channel, method string, args diagnostics.Args) (any, error)
	Listen(ctx context.Context, channel string) (*diagnostics.Stream, error)
	Methods(channel string) []string
}

// Server hosts the Diagnostics service and the standard health service.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

// New creates a gRPC server over svc.
func New(svc Dispatcher) *Server {
	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(trace.UnaryServerInterceptor(), unaryStatusInterceptor),
		grpc.ChainStreamInterceptor(trace.StreamServerInterceptor(), streamStatusInterceptor),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             MinClientKeepalive,
			PermitWithoutStream: true,
		}),
	)
	hs := health.NewServer()
	pb.RegisterDiagnosticsServer(gs, &handler{svc: svc})
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus(pb.ServiceName, healthpb.HealthCheckResponse_SERVING)
	return &Server{grpc: gs, health: hs}
}

// Serve accepts connections on lis until ctx is done, then drains.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-stopped:
			return
		}
		s.health.Shutdown()
		done := make(chan struct{})
		go func() {
			s.grpc.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(ShutdownGrace):
			s.grpc.Stop()
		}
	}()
	err := s.grpc.Serve(lis)
	close(stopped)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return apperrors.Wrapf(err, apperrors.CodeUnavailable, "listen on %s", addr)
	}
	return s.Serve(ctx, lis)
}

type handler struct {
	svc Dispatcher
}

func (h *handler) Invoke(ctx context.Context, req *structpb.Struct) (*structpb.Value, error) {
	fields := req.GetFields()
	channel := fields[pb.FieldChannel].GetStringValue()
	method := fields[pb.FieldMethod].GetStringValue()
	if channel == "" || method == "" {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "channel and method are required")
	}
	args := fields[pb.FieldArguments].GetStructValue().AsMap()

	res, err := h.svc.Call(ctx, channel, method, diagnostics.Args(args))
	if err != nil {
		return nil, err
	}
	return toValue(res)
}

func (h *handler) Listen(req *wrapperspb.StringValue, stream grpc.ServerStreamingServer[structpb.Value]) error {
	ctx := stream.Context()
	st, err := h.svc.Listen(ctx, req.GetValue())
	if err != nil {
		return err
	}
	defer st.Close()

	if err := stream.SendHeader(metadata.Pairs(pb.StreamIDHeader, st.ID)); err != nil {
		return err
	}
	for ev := range st.Events() {
		v, err := toValue(ev)
		if err != nil {
			return err
		}
		if err := stream.Send(v); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return st.Err()
}

func (h *handler) Describe(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	methods := make(map[string]any)
	for _, ch := range diagnostics.MethodChannels() {
		methods[ch] = anySlice(h.svc.Methods(ch))
	}
	return structpb.NewStruct(map[string]any{
		"methods": methods,
		"events":  anySlice(diagnostics.EventChannels()),
	})
}

func anySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

// toValue converts a result through its JSON form, so struct results keep
// their json field names.
func toValue(v any) (*structpb.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "encode result")
	}
	out := &structpb.Value{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "encode result")
	}
	return out, nil
}

func unaryStatusInterceptor(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	return resp, toStatus(err)
}

func streamStatusInterceptor(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	return toStatus(handler(srv, ss))
}

// toStatus renders err as a gRPC status, carrying the error code as
// ErrorInfo.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	switch {
	case apperrors.As(err, &appErr):
		return appErr.GRPCStatus().Err()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return apperrors.Wrap(err, apperrors.CodeInternal, err.Error()).GRPCStatus().Err()
}
