package rpc

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/diagnostics"
	apperrors "github.com/GriffinCanCode/tradein-diagnostics/platform/internal/errors"
	"github.com/GriffinCanCode/tradein-diagnostics/platform/pkg/pb"
)

type fakeDispatcher struct {
	mu      sync.Mutex
	channel string
	method  string
	args    diagnostics.Args

	result    any
	callErr   error
	events    []any
	live      bool
	streamErr error
	listenErr error
	stopped   chan struct{}
}

func (f *fakeDispatcher) Call(ctx context.Context, channel, method string, args diagnostics.Args) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channel, f.method, f.args = channel, method, args
	return f.result, f.callErr
}

func (f *fakeDispatcher) Listen(ctx context.Context, channel string) (*diagnostics.Stream, error) {
	if f.listenErr != nil {
		return nil, f.listenErr
	}
	values := make(chan any, len(f.events))
	for _, ev := range f.events {
		values <- ev
	}
	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(values)
			if f.stopped != nil {
				close(f.stopped)
			}
		})
	}
	if !f.live {
		stop()
	}
	return diagnostics.NewStream(ctx, diagnostics.StreamSource[any]{
		ID:      "stream-1",
		Channel: channel,
		Values:  values,
		Convert: func(v any) any { return v },
		Stop:    stop,
		Err:     func() error { return f.streamErr },
	}), nil
}

func (f *fakeDispatcher) Methods(channel string) []string {
	if channel == diagnostics.AudioChannel {
		return []string{"testMicrophone"}
	}
	return []string{"getBatteryInfo", "testSpeaker"}
}

func startServer(t *testing.T, d Dispatcher) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- New(d).Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		cancel()
		if err := <-errCh; err != nil {
			t.Errorf("Serve: %v", err)
		}
	})
	return conn
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

type batteryResult struct {
	Level  int    `json:"level"`
	Health string `json:"health"`
}

func TestInvoke(t *testing.T) {
	d := &fakeDispatcher{result: batteryResult{Level: 87, Health: "Good"}}
	client := pb.NewDiagnosticsClient(startServer(t, d))

	req, err := pb.NewInvokeRequest("trade_In.Internal_Data/diagnostics", "getBatteryInfo", nil)
	if err != nil {
		t.Fatal(err)
	}
	v, err := client.Invoke(testContext(t), req)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	fields := v.GetStructValue().GetFields()
	if got := fields["level"].GetNumberValue(); got != 87 {
		t.Errorf("level = %v, want 87", got)
	}
	if got := fields["health"].GetStringValue(); got != "Good" {
		t.Errorf("health = %q, want Good", got)
	}
	if d.channel != "trade_In.Internal_Data/diagnostics" || d.method != "getBatteryInfo" {
		t.Errorf("dispatched %s.%s", d.channel, d.method)
	}
}

func TestInvokePassesArguments(t *testing.T) {
	d := &fakeDispatcher{result: true}
	client := pb.NewDiagnosticsClient(startServer(t, d))

	req, _ := pb.NewInvokeRequest("diagnostics", "testSpeaker", map[string]any{"volume": 0.5})
	v, err := client.Invoke(testContext(t), req)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !v.GetBoolValue() {
		t.Error("result = false, want true")
	}
	if got := d.args["volume"]; got != 0.5 {
		t.Errorf("args[volume] = %v, want 0.5", got)
	}
}

func TestInvokeErrors(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		err      error
		wantGRPC codes.Code
		wantCode apperrors.ErrorCode
	}{
		{
			name:     "not implemented",
			method:   "reboot",
			err:      apperrors.New(apperrors.CodeNotImplemented, "method reboot not implemented").WithMetadata("method", "reboot"),
			wantGRPC: codes.Unimplemented,
			wantCode: apperrors.CodeNotImplemented,
		},
		{
			name:     "hardware unavailable",
			method:   "testVibration",
			err:      apperrors.New(apperrors.CodeHardwareUnavailable, "no motor"),
			wantGRPC: codes.Unavailable,
			wantCode: apperrors.CodeHardwareUnavailable,
		},
		{
			name:     "plain error",
			method:   "getDeviceInfo",
			err:      errors.New("boom"),
			wantGRPC: codes.Internal,
			wantCode: apperrors.CodeInternal,
		},
		{
			name:     "missing method",
			method:   "",
			wantGRPC: codes.InvalidArgument,
			wantCode: apperrors.CodeInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := pb.NewDiagnosticsClient(startServer(t, &fakeDispatcher{callErr: tt.err}))
			req, _ := pb.NewInvokeRequest("diagnostics", tt.method, nil)

			_, err := client.Invoke(testContext(t), req)
			if status.Code(err) != tt.wantGRPC {
				t.Fatalf("status = %v, want %v (%v)", status.Code(err), tt.wantGRPC, err)
			}
			appErr := apperrors.FromGRPCError(err)
			if appErr.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", appErr.Code, tt.wantCode)
			}
		})
	}
}

func TestInvokeErrorMetadata(t *testing.T) {
	d := &fakeDispatcher{callErr: apperrors.New(apperrors.CodeNotImplemented, "nope").WithMetadata("method", "reboot")}
	client := pb.NewDiagnosticsClient(startServer(t, d))

	req, _ := pb.NewInvokeRequest("diagnostics", "reboot", nil)
	_, err := client.Invoke(testContext(t), req)
	if got := apperrors.FromGRPCError(err).Metadata["method"]; got != "reboot" {
		t.Errorf("metadata[method] = %q, want reboot", got)
	}
}

func TestListen(t *testing.T) {
	d := &fakeDispatcher{events: []any{"SCREEN_OFF", "SCREEN_ON", "USER_PRESENT"}}
	client := pb.NewDiagnosticsClient(startServer(t, d))

	stream, err := client.Listen(testContext(t), wrapperspb.String("power_button"))
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	header, err := stream.Header()
	if err != nil {
		t.Fatalf("Header: %v", err)
	}
	if got := header.Get(pb.StreamIDHeader); len(got) != 1 || got[0] != "stream-1" {
		t.Errorf("stream id header = %v", got)
	}

	var got []string
	for {
		v, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		got = append(got, v.GetStringValue())
	}
	want := []string{"SCREEN_OFF", "SCREEN_ON", "USER_PRESENT"}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestListenSourceError(t *testing.T) {
	d := &fakeDispatcher{
		events:    []any{0.0, 1200.0},
		streamErr: apperrors.New(apperrors.CodeSamplingFailed, "read failed"),
	}
	client := pb.NewDiagnosticsClient(startServer(t, d))

	stream, err := client.Listen(testContext(t), wrapperspb.String("audio_amplitude"))
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	var values []float64
	for {
		v, err := stream.Recv()
		if err != nil {
			if code := apperrors.FromGRPCError(err).Code; code != apperrors.CodeSamplingFailed {
				t.Errorf("code = %s, want SAMPLING_FAILED", code)
			}
			break
		}
		values = append(values, v.GetNumberValue())
	}
	if len(values) != 2 || values[1] != 1200 {
		t.Errorf("values = %v", values)
	}
}

func TestListenClientCancelStopsSource(t *testing.T) {
	d := &fakeDispatcher{live: true, stopped: make(chan struct{})}
	client := pb.NewDiagnosticsClient(startServer(t, d))

	ctx, cancel := context.WithCancel(testContext(t))
	stream, err := client.Listen(ctx, wrapperspb.String("volume_buttons"))
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if _, err := stream.Header(); err != nil {
		t.Fatalf("Header: %v", err)
	}
	cancel()

	select {
	case <-d.stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("source not stopped after client cancel")
	}
}

func TestListenUnknownChannel(t *testing.T) {
	d := &fakeDispatcher{listenErr: apperrors.New(apperrors.CodeNotImplemented, "event channel nope not implemented")}
	client := pb.NewDiagnosticsClient(startServer(t, d))

	stream, err := client.Listen(testContext(t), wrapperspb.String("nope"))
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if _, err := stream.Recv(); status.Code(err) != codes.Unimplemented {
		t.Errorf("Recv status = %v, want Unimplemented", status.Code(err))
	}
}

func TestDescribe(t *testing.T) {
	client := pb.NewDiagnosticsClient(startServer(t, &fakeDispatcher{}))

	s, err := client.Describe(testContext(t), &emptypb.Empty{})
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	m := s.AsMap()
	methods := m["methods"].(map[string]any)
	if audio := methods["audio"].([]any); len(audio) != 1 || audio[0] != "testMicrophone" {
		t.Errorf("audio methods = %v", audio)
	}
	if diag := methods["diagnostics"].([]any); len(diag) != 2 {
		t.Errorf("diagnostics methods = %v", diag)
	}
	if events := m["events"].([]any); len(events) != 3 {
		t.Errorf("events = %v", events)
	}
}

func TestHealth(t *testing.T) {
	client := healthpb.NewHealthClient(startServer(t, &fakeDispatcher{}))

	resp, err := client.Check(testContext(t), &healthpb.HealthCheckRequest{Service: pb.ServiceName})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", resp.GetStatus())
	}
}

func TestToStatus(t *testing.T) {
	if toStatus(nil) != nil {
		t.Error("toStatus(nil) != nil")
	}
	if got := status.Code(toStatus(context.Canceled)); got != codes.Canceled {
		t.Errorf("canceled -> %v", got)
	}
	if got := status.Code(toStatus(context.DeadlineExceeded)); got != codes.DeadlineExceeded {
		t.Errorf("deadline -> %v", got)
	}
	orig := status.Error(codes.ResourceExhausted, "slow down")
	if got := toStatus(orig); got != orig {
		t.Errorf("status error rewritten: %v", got)
	}
}
