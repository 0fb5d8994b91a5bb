package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/config"
	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/diagnostics"
	apperrors "github.com/GriffinCanCode/tradein-diagnostics/platform/internal/errors"
)

// mockDispatcher for testing.
type mockDispatcher struct {
	mu       sync.Mutex
	lastArgs diagnostics.Args
	events   []any
	endErr   error
	stopped  chan struct{}
}

func newMockDispatcher() *mockDispatcher {
	return &mockDispatcher{stopped: make(chan struct{}, 1)}
}

func (m *mockDispatcher) Call(_ context.Context, channel, method string, args diagnostics.Args) (any, error) {
	m.mu.Lock()
	m.lastArgs = args
	m.mu.Unlock()
	switch {
	case channel == "diagnostics" && method == "testVibration":
		return true, nil
	case channel == "diagnostics" && method == "getBatteryInfo":
		return nil, apperrors.New(apperrors.CodeBatteryError, "failed to get battery info")
	case channel == "diagnostics" && method == "testMicrophone":
		return nil, apperrors.New(apperrors.CodeHardwareUnavailable, "microphone is in use")
	}
	return nil, apperrors.Newf(apperrors.CodeNotImplemented, "method %s not implemented on channel %s", method, channel)
}

func (m *mockDispatcher) Listen(ctx context.Context, channel string) (*diagnostics.Stream, error) {
	if channel != "power_button" {
		return nil, apperrors.Newf(apperrors.CodeNotImplemented, "event channel %s not implemented", channel)
	}
	src := make(chan string)
	done := make(chan struct{})
	var once sync.Once
	go func() {
		defer close(src)
		for _, e := range m.events {
			select {
			case src <- e.(string):
			case <-done:
				return
			}
		}
		if m.endErr == nil {
			<-done
		}
	}()
	return diagnostics.NewStream(ctx, diagnostics.StreamSource[string]{
		ID:      "stream-1",
		Channel: channel,
		Values:  src,
		Convert: func(s string) any { return s },
		Stop: func() {
			once.Do(func() {
				close(done)
				m.stopped <- struct{}{}
			})
		},
		Err: func() error { return m.endErr },
	}), nil
}

func testConfig() *config.Config {
	return &config.Config{AllowedOrigins: []string{"*"}, RateLimitPerSec: 0}
}

func TestCORSMiddleware(t *testing.T) {
	handler := corsMiddleware([]string{"*"}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Test OPTIONS request
	req := httptest.NewRequest("OPTIONS", "/test", http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("OPTIONS status = %d, want %d", rec.Code, http.StatusOK)
	}
	if v := rec.Header().Get("Access-Control-Allow-Origin"); v != "*" {
		t.Errorf("CORS origin = %q, want %q", v, "*")
	}
	if v := rec.Header().Get("Access-Control-Allow-Methods"); v != "GET, POST, OPTIONS" {
		t.Errorf("CORS methods = %q, want %q", v, "GET, POST, OPTIONS")
	}
}

func TestCORSAllowList(t *testing.T) {
	handler := corsMiddleware([]string{"http://kiosk.local"}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	tests := []struct {
		origin string
		want   string
	}{
		{"http://kiosk.local", "http://kiosk.local"},
		{"http://evil.example", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/healthz", http.NoBody)
		req.Header.Set("Origin", tt.origin)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if v := rec.Header().Get("Access-Control-Allow-Origin"); v != tt.want {
			t.Errorf("origin %s: Allow-Origin = %q, want %q", tt.origin, v, tt.want)
		}
	}
}

func doCall(t *testing.T, h http.Handler, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.RemoteAddr = "192.0.2.10:41000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not JSON: %q", rec.Body.String())
	}
	return rec, out
}

func TestHandleCall(t *testing.T) {
	m := newMockDispatcher()
	h := New(m, testConfig(), "local").Handler()

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"success", "/api/channels/diagnostics/testVibration", `{"arguments":{"pulseMs":250}}`, http.StatusOK, ""},
		{"empty body", "/api/channels/diagnostics/testVibration", ``, http.StatusOK, ""},
		{"not implemented", "/api/channels/diagnostics/factoryReset", `{}`, http.StatusNotImplemented, "NOT_IMPLEMENTED"},
		{"battery error", "/api/channels/diagnostics/getBatteryInfo", `{}`, http.StatusInternalServerError, "BATTERY_ERROR"},
		{"hardware busy", "/api/channels/diagnostics/testMicrophone", `{}`, http.StatusServiceUnavailable, "HARDWARE_UNAVAILABLE"},
		{"bad json", "/api/channels/diagnostics/testVibration", `{"arguments":`, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"empty key", "/api/channels/diagnostics/testVibration", `{"arguments":{"":1}}`, http.StatusBadRequest, "INVALID_ARGUMENT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, out := doCall(t, h, tt.path, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body.String())
			}
			if rec.Header().Get(RequestIDHeader) == "" {
				t.Error("missing request id header")
			}
			if tt.code == "" {
				if out["result"] != true {
					t.Errorf("result = %v", out["result"])
				}
				if out["trace_id"] == "" || out["trace_id"] == nil {
					t.Error("missing trace_id")
				}
				return
			}
			errBody, _ := out["error"].(map[string]any)
			if errBody["code"] != tt.code {
				t.Errorf("error code = %v, want %s", errBody["code"], tt.code)
			}
		})
	}
}

func TestHandleCallPassesArguments(t *testing.T) {
	m := newMockDispatcher()
	h := New(m, testConfig(), "local").Handler()
	doCall(t, h, "/api/channels/diagnostics/testVibration", `{"arguments":{"pulseMs":250}}`)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastArgs["pulseMs"] != 250.0 {
		t.Errorf("arguments = %v", m.lastArgs)
	}
}

func TestHealthz(t *testing.T) {
	h := New(newMockDispatcher(), testConfig(), "adb").Handler()
	req := httptest.NewRequest("GET", "/healthz", http.NoBody)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK || out["status"] != "ok" || out["backend"] != "adb" {
		t.Errorf("healthz = %d %v", rec.Code, out)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitPerSec = 1
	h := New(newMockDispatcher(), cfg, "local").Handler()

	limited := 0
	for i := 0; i < IPRateBurst+3; i++ {
		rec, _ := doCall(t, h, "/api/channels/diagnostics/testVibration", `{}`)
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	if limited == 0 {
		t.Error("no request was rate limited")
	}
}

func TestIPLimiterCleanup(t *testing.T) {
	l := newIPLimiter(1, 1)
	now := time.Unix(1700000000, 0)
	l.now = func() time.Time { return now }

	if !l.allow("198.51.100.1") {
		t.Fatal("first request denied")
	}
	if l.allow("198.51.100.1") {
		t.Error("burst of 1 allowed a second immediate request")
	}
	l.allow("198.51.100.2")
	if l.size() != 2 {
		t.Fatalf("size = %d, want 2", l.size())
	}

	now = now.Add(IPRateLimitEntryTTL + IPRateLimitCleanupInterval + time.Second)
	l.allow("198.51.100.3")
	if l.size() != 1 {
		t.Errorf("size after cleanup = %d, want 1", l.size())
	}
}

func dialStream(t *testing.T, srvURL, channel string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return websocket.Dial(ctx, "ws"+strings.TrimPrefix(srvURL, "http")+"/ws/"+channel, nil)
}

func TestWebSocketStream(t *testing.T) {
	m := newMockDispatcher()
	m.events = []any{"SCREEN_OFF", "SCREEN_ON"}
	m.endErr = apperrors.New(apperrors.CodeSamplingFailed, "getevent exited")
	srv := httptest.NewServer(New(m, testConfig(), "adb").Handler())
	defer srv.Close()

	conn, _, err := dialStream(t, srv.URL, "power_button")
	if err != nil {
		t.Fatalf("Dial() = %v", err)
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var connected ConnectedMessage
	if err := wsjson.Read(ctx, conn, &connected); err != nil {
		t.Fatal(err)
	}
	if connected.Type != "connected" || connected.StreamID != "stream-1" {
		t.Errorf("connected = %+v", connected)
	}

	for _, want := range m.events {
		var ev EventMessage
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			t.Fatal(err)
		}
		if ev.Type != "event" || ev.Channel != "power_button" || ev.Event != want {
			t.Errorf("event = %+v, want %v", ev, want)
		}
	}

	var end EndMessage
	if err := wsjson.Read(ctx, conn, &end); err != nil {
		t.Fatal(err)
	}
	if end.Type != "end" || end.Error == nil || end.Error.Code != "SAMPLING_FAILED" {
		t.Errorf("end = %+v", end)
	}
}

func TestWebSocketClientCloseStopsStream(t *testing.T) {
	m := newMockDispatcher()
	srv := httptest.NewServer(New(m, testConfig(), "local").Handler())
	defer srv.Close()

	conn, _, err := dialStream(t, srv.URL, "power_button")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var connected ConnectedMessage
	if err := wsjson.Read(ctx, conn, &connected); err != nil {
		t.Fatal(err)
	}
	conn.Close(websocket.StatusNormalClosure, "bye")

	select {
	case <-m.stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("stream not released after client close")
	}
}

func TestWebSocketUnknownChannel(t *testing.T) {
	srv := httptest.NewServer(New(newMockDispatcher(), testConfig(), "local").Handler())
	defer srv.Close()

	_, resp, err := dialStream(t, srv.URL, "gyroscope")
	if err == nil {
		t.Fatal("Dial() succeeded for unknown channel")
	}
	if resp == nil || resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("response = %+v, want 501", resp)
	}
}
