// Package grpcclient provides a client for the diagnostics gRPC server
package grpcclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	apperrors "github.com/GriffinCanCode/tradein-diagnostics/platform/internal/errors"
	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/resilience"
	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/trace"
	"github.com/GriffinCanCode/tradein-diagnostics/platform/pkg/pb"
)

// Client wraps the diagnostics and health service clients
type Client struct {
	conn        *grpc.ClientConn
	Diagnostics pb.DiagnosticsClient
	Health      healthpb.HealthClient
	breaker     *resilience.Breaker
}

// New creates a new diagnostics client. Extra options are appended to the
// defaults.
func New(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                DefaultKeepaliveTime,
			Timeout:             DefaultKeepaliveTimeout,
			PermitWithoutStream: true,
		}),
		grpc.WithChainUnaryInterceptor(trace.UnaryClientInterceptor()),
		grpc.WithChainStreamInterceptor(trace.StreamClientInterceptor()),
	}, opts...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeInvalidArgument, "dial %s", addr)
	}

	cfg := resilience.DefaultConfig()
	cfg.Name = addr
	return &Client{
		conn:        conn,
		Diagnostics: pb.NewDiagnosticsClient(conn),
		Health:      healthpb.NewHealthClient(conn),
		breaker:     resilience.New(cfg),
	}, nil
}

// Close closes the gRPC connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Call invokes method on channel and returns the decoded result.
func (c *Client) Call(ctx context.Context, channel, method string, args map[string]any) (any, error) {
	req, err := pb.NewInvokeRequest(channel, method, args)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "encode arguments")
	}

	var result any
	err = c.guard(func() error {
		v, err := c.Diagnostics.Invoke(ctx, req)
		if err != nil {
			return err
		}
		result = v.AsInterface()
		return nil
	})
	return result, err
}

// Listen streams events of channel to onEvent until the server ends the
// stream or ctx is done. onStart, if set, gets the stream id.
func (c *Client) Listen(ctx context.Context, channel string, onStart func(id string), onEvent func(any)) error {
	var stream grpc.ServerStreamingClient[structpb.Value]
	err := c.guard(func() error {
		s, err := c.Diagnostics.Listen(ctx, wrapperspb.String(channel))
		if err != nil {
			return err
		}
		// Headers arrive once the server accepted the channel.
		header, err := s.Header()
		if err != nil {
			return err
		}
		if ids := header.Get(pb.StreamIDHeader); len(ids) > 0 && onStart != nil {
			onStart(ids[0])
		}
		stream = s
		return nil
	})
	if err != nil {
		return err
	}

	for {
		v, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return apperrors.FromGRPCError(err)
		}
		onEvent(v.AsInterface())
	}
}

// Describe lists the server's method and event channels.
func (c *Client) Describe(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.guard(func() error {
		s, err := c.Diagnostics.Describe(ctx, &emptypb.Empty{})
		if err != nil {
			return err
		}
		out = s.AsMap()
		return nil
	})
	return out, err
}

// Healthy reports whether the diagnostics service answers as serving.
func (c *Client) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()
	resp, err := c.Health.Check(ctx, &healthpb.HealthCheckRequest{Service: pb.ServiceName})
	return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
}

// WaitReady polls health until the service is serving or ctx is done.
func (c *Client) WaitReady(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultHealthCheckInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if c.Healthy(ctx) {
			return nil
		}
		slog.Debug("diagnostics server not ready", "target", c.conn.Target())
		select {
		case <-ctx.Done():
			return apperrors.Wrap(ctx.Err(), apperrors.CodeUnavailable, "diagnostics server not ready")
		case <-ticker.C:
		}
	}
}

// guard runs fn under the breaker. Errors the server reported itself mean
// the server is up, so only transport failures count against it.
func (c *Client) guard(fn func() error) error {
	var reported error
	err := c.breaker.Execute(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if answered(err) {
			reported = apperrors.FromGRPCError(err)
			return nil
		}
		return apperrors.FromGRPCError(err)
	})
	if err != nil {
		return err
	}
	return reported
}

// answered reports whether err carries the server's own error details.
func answered(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.GetDomain() == apperrors.ErrorDomain {
			return true
		}
	}
	return false
}
