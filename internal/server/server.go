// Package server provides HTTP and WebSocket handlers
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-playground/validator/v10"

	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/config"
	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/diagnostics"
	apperrors "github.com/GriffinCanCode/tradein-diagnostics/platform/internal/errors"
	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/trace"
)

// Dispatcher executes channel calls and opens event streams.
type Dispatcher interface {
	Call(ctx context.Context, channel, method string, args diagnostics.Args) (any, error)
	Listen(ctx context.Context, channel string) (*diagnostics.Stream, error)
}

// CallRequest is the body of a method call.
type CallRequest struct {
	Arguments map[string]any `json:"arguments" validate:"omitempty,max=32,dive,keys,required,max=64,endkeys"`
}

// CallResponse carries a method result.
type CallResponse struct {
	Result  any    `json:"result"`
	TraceID string `json:"trace_id,omitempty"`
}

// ErrorBody describes a failed call.
type ErrorBody struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type ErrorResponse struct {
	Error   ErrorBody `json:"error"`
	TraceID string    `json:"trace_id,omitempty"`
}

// WebSocket frames.
type ConnectedMessage struct {
	Type     string `json:"type"`
	Channel  string `json:"channel"`
	StreamID string `json:"stream_id"`
}

type EventMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	Event   any    `json:"event"`
}

type EndMessage struct {
	Type  string     `json:"type"`
	Error *ErrorBody `json:"error,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Use JSON tag names in error messages instead of struct field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	svc     Dispatcher
	backend string
	origins []string
	limiter *ipLimiter
}

// New creates a new server.
func New(svc Dispatcher, cfg *config.Config, backend string) *Server {
	s := &Server{svc: svc, backend: backend, origins: cfg.AllowedOrigins}
	if cfg.RateLimitPerSec > 0 {
		s.limiter = newIPLimiter(cfg.RateLimitPerSec, IPRateBurst)
	}
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Event streams
	mux.HandleFunc("GET /ws/{channel}", s.handleWebSocket)

	// REST API
	var call http.Handler = http.HandlerFunc(s.handleCall)
	if s.limiter != nil {
		call = s.limiter.middleware(call)
	}
	mux.Handle("POST /api/channels/{channel}/{method}", call)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	// Apply middleware: request id -> trace -> CORS
	return corsMiddleware(s.origins, trace.Middleware(requestIDMiddleware(mux)))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "backend": s.backend})
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	channel, method := r.PathValue("channel"), r.PathValue("method")

	var req CallRequest
	body := http.MaxBytesReader(w, r.Body, MaxRequestBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "invalid JSON body"), 0)
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, r, validationError(err), 0)
		return
	}

	res, err := s.svc.Call(ctx, channel, method, req.Arguments)
	if err != nil {
		writeError(w, r, err, 0)
		return
	}
	tc, _ := trace.FromContext(ctx)
	writeJSON(w, http.StatusOK, CallResponse{Result: res, TraceID: tc.TraceID})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	channel := r.PathValue("channel")
	log := trace.Logger(ctx)

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := s.svc.Listen(streamCtx, channel)
	if err != nil {
		writeError(w, r, err, 0)
		return
	}
	defer stream.Close()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns(),
	})
	if err != nil {
		log.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, WSCloseReason) }()

	log = log.With("channel", stream.Channel, "stream_id", stream.ID)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	// Client frames are not expected; a close or read error ends the stream.
	readCtx := conn.CloseRead(streamCtx)

	if err := s.write(readCtx, conn, ConnectedMessage{Type: "connected", Channel: stream.Channel, StreamID: stream.ID}); err != nil {
		return
	}

	for {
		select {
		case <-readCtx.Done():
			log.Debug("websocket client gone")
			return
		case ev, ok := <-stream.Events():
			if !ok {
				end := EndMessage{Type: "end"}
				if err := stream.Err(); err != nil {
					body := errorBody(err)
					end.Error = &body
				}
				_ = s.write(readCtx, conn, end)
				log.Info("websocket stream ended", "error", stream.Err())
				return
			}
			if err := s.write(readCtx, conn, EventMessage{Type: "event", Channel: stream.Channel, Event: ev}); err != nil {
				log.Debug("websocket write error", "error", err)
				return
			}
		}
	}
}

func (s *Server) write(ctx context.Context, conn *websocket.Conn, msg any) error {
	ctx, cancel := context.WithTimeout(ctx, WSWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}

func (s *Server) originPatterns() []string {
	if len(s.origins) == 0 {
		return []string{"*"}
	}
	patterns := make([]string, 0, len(s.origins))
	for _, o := range s.origins {
		// Accept matches against the origin host, without the scheme.
		if i := strings.Index(o, "://"); i >= 0 {
			o = o[i+3:]
		}
		patterns = append(patterns, o)
	}
	return patterns
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.Wrap(err, apperrors.CodeInvalidArgument, "invalid request")
	}
	appErr := apperrors.New(apperrors.CodeInvalidArgument, "invalid request")
	for _, fe := range verrs {
		appErr = appErr.WithMetadata(fe.Namespace(), fe.Tag())
	}
	return appErr
}

func errorBody(err error) ErrorBody {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return ErrorBody{Code: appErr.Code.String(), Message: appErr.Message, Metadata: appErr.Metadata}
	}
	return ErrorBody{Code: apperrors.CodeInternal.String(), Message: err.Error()}
}

// writeError renders err; a zero status derives it from the error code.
func writeError(w http.ResponseWriter, r *http.Request, err error, status int) {
	if status == 0 {
		status = http.StatusInternalServerError
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			status = appErr.HTTPStatus()
		}
	}
	tc, _ := trace.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		trace.Logger(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: errorBody(err), TraceID: tc.TraceID})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// shutdownGrace bounds how long in-flight streams get on shutdown.
const shutdownGrace = 5 * time.Second

// Serve runs the HTTP server on addr until ctx is done.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
