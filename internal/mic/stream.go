package mic

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/GriffinCanCode/tradein-diagnostics/platform/internal/errors"
	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/trace"
)

// State is the lifecycle of a Stream.
type State uint32

const (
	Idle     State = iota // created, not started
	Sampling              // reading blocks
	Stopped               // window expired, cancelled or failed
	Released              // source closed, channel closed
)

func (s State) String() string {
	return [...]string{"idle", "sampling", "stopped", "released"}[s]
}

// ErrStreamStarted is returned when Start is called twice.
var ErrStreamStarted = apperrors.New(apperrors.CodeInvalidArgument, "amplitude stream already started")

// Stream emits one block amplitude per successful read for a single window.
// It is not restartable.
type Stream struct {
	ID string

	tester  *Tester
	out     chan float64
	done    chan struct{}
	state   atomic.Uint32
	started atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	err    error
}

// NewStream creates an idle amplitude stream.
func (t *Tester) NewStream() *Stream {
	return &Stream{
		ID:     uuid.NewString(),
		tester: t,
		out:    make(chan float64, StreamBufferSize),
		done:   make(chan struct{}),
	}
}

// Values returns the emission channel. It is closed once the stream is Released.
func (s *Stream) Values() <-chan float64 { return s.out }

// Done is closed once the stream is Released.
func (s *Stream) Done() <-chan struct{} { return s.done }

// State returns the current lifecycle state.
func (s *Stream) State() State { return State(s.state.Load()) }

// Err returns the failure that stopped the stream, if any. Valid after Done.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Start launches sampling on its own goroutine.
func (s *Stream) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrStreamStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.state.Store(uint32(Sampling))
	go s.run(ctx)
	return nil
}

// Cancel requests a cooperative stop between iterations.
func (s *Stream) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Stream) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *Stream) run(ctx context.Context) {
	ctx, span := trace.StartSpan(ctx, "mic_stream")
	defer span.End()
	log := trace.Logger(ctx).With("stream_id", s.ID)

	defer close(s.done)
	defer close(s.out)
	defer s.Cancel()

	if err := ctx.Err(); err != nil {
		s.fail(apperrors.Wrap(err, apperrors.CodeCancelled, "amplitude stream cancelled before sampling"))
		s.state.Store(uint32(Stopped))
		s.state.Store(uint32(Released))
		return
	}

	t := s.tester
	if !t.busy.CompareAndSwap(false, true) {
		s.fail(apperrors.New(apperrors.CodeHardwareUnavailable, "microphone is in use"))
		s.emit(ctx, Sentinel)
		s.state.Store(uint32(Stopped))
		s.state.Store(uint32(Released))
		return
	}
	defer t.busy.Store(false)

	sess, err := openSession(t.newSource(), t.cfg.SampleRate, t.cfg.BlockFloor)
	defer func() {
		if cerr := sess.close(); cerr != nil {
			log.Debug("microphone release error", "error", cerr)
		}
		s.state.Store(uint32(Released))
	}()
	if err != nil {
		log.Warn("microphone unavailable", "error", err)
		s.fail(err)
		s.emit(ctx, Sentinel)
		s.state.Store(uint32(Stopped))
		return
	}

	emitted := s.sample(ctx, sess)
	s.state.Store(uint32(Stopped))
	span.SetAttr("emitted", emitted)
	log.Debug("amplitude stream stopped", "emitted", emitted, "error", s.Err())
}

// sample runs the window loop and returns the number of amplitudes emitted.
func (s *Stream) sample(ctx context.Context, sess *session) int {
	t := s.tester
	emitted := 0
	timer := time.NewTimer(t.cfg.StreamInterval)
	defer timer.Stop()

	start := t.now()
	for t.now().Sub(start) < t.cfg.Window {
		if ctx.Err() != nil {
			return emitted
		}

		n, err := sess.read()
		if err != nil {
			s.fail(err)
			// A sentinel after real values would be indistinguishable from a
			// reading; consumers see the truncated stream and Err instead.
			if emitted == 0 {
				s.emit(ctx, Sentinel)
			}
			return emitted
		}
		if n > 0 {
			if !s.emit(ctx, BlockAmplitude(sess.buf[:n])) {
				return emitted
			}
			emitted++
		}

		timer.Reset(t.cfg.StreamInterval)
		select {
		case <-ctx.Done():
			return emitted
		case <-timer.C:
		}
	}
	return emitted
}

func (s *Stream) emit(ctx context.Context, v float64) bool {
	select {
	case s.out <- v:
		return true
	case <-ctx.Done():
		return false
	}
}
