package diagnostics

import (
	"context"
	"sync"

	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/buttons"
	apperrors "github.com/GriffinCanCode/tradein-diagnostics/platform/internal/errors"
	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/trace"
)

// Stream is one listener on an event channel.
type Stream struct {
	ID      string
	Channel string

	out  chan any
	done chan struct{}
	once sync.Once

	stop  func()
	errFn func() error
}

// Events is closed when the source ends or the stream is closed.
func (s *Stream) Events() <-chan any { return s.out }

// Err reports why the source ended. Valid after Events is closed.
func (s *Stream) Err() error {
	if s.errFn == nil {
		return nil
	}
	return s.errFn()
}

// Close cancels the listener and releases its source. Safe to call more than
// once.
func (s *Stream) Close() {
	s.once.Do(func() {
		close(s.done)
		s.stop()
	})
}

// Listen subscribes to an event channel until ctx is done or Close is called.
// Unknown channels are NOT_IMPLEMENTED.
func (s *Service) Listen(ctx context.Context, channel string) (*Stream, error) {
	channel = NormalizeChannel(channel)
	log := trace.Logger(ctx)

	switch channel {
	case AmplitudeChannel:
		ms := s.hw.Mic.NewStream()
		if err := ms.Start(ctx); err != nil {
			return nil, err
		}
		st := NewStream(ctx, StreamSource[float64]{
			ID:      ms.ID,
			Channel: channel,
			Values:  ms.Values(),
			Convert: func(v float64) any { return v },
			Stop:    ms.Cancel,
			Err:     ms.Err,
		})
		log.Info("listener attached", "channel", channel, "stream_id", st.ID)
		return st, nil

	case PowerChannel, VolumeChannel:
		sub, err := s.hw.Buttons.Subscribe(ctx, buttons.Channel(channel))
		if err != nil {
			return nil, err
		}
		st := NewStream(ctx, StreamSource[buttons.Event]{
			ID:      sub.ID,
			Channel: channel,
			Values:  sub.Events(),
			Convert: func(e buttons.Event) any { return string(e) },
			Stop:    sub.Close,
			Err:     sub.Err,
		})
		log.Info("listener attached", "channel", channel, "stream_id", st.ID)
		return st, nil

	default:
		return nil, apperrors.Newf(apperrors.CodeNotImplemented, "event channel %s not implemented", channel).
			WithMetadata("channel", channel)
	}
}

// EventChannels lists the channels Listen accepts.
func EventChannels() []string {
	return []string{AmplitudeChannel, PowerChannel, VolumeChannel}
}

// StreamSource describes a typed event source to expose as a Stream.
type StreamSource[T any] struct {
	ID      string
	Channel string
	Values  <-chan T
	Convert func(T) any
	// Stop releases the source; it must eventually close Values.
	Stop func()
	Err  func() error
}

// NewStream exposes src as a Stream, forwarding on its own goroutine.
func NewStream[T any](ctx context.Context, src StreamSource[T]) *Stream {
	stop := src.Stop
	if stop == nil {
		stop = func() {}
	}
	st := &Stream{
		ID:      src.ID,
		Channel: src.Channel,
		out:     make(chan any),
		done:    make(chan struct{}),
		stop:    stop,
		errFn:   src.Err,
	}
	go forward(ctx, st, src.Values, src.Convert)
	return st
}

// forward copies src to st until either side stops.
func forward[T any](ctx context.Context, st *Stream, src <-chan T, conv func(T) any) {
	defer close(st.out)
	defer trace.Logger(ctx).Debug("listener detached", "channel", st.Channel, "stream_id", st.ID)
	for {
		select {
		case <-ctx.Done():
			st.Close()
			return
		case <-st.done:
			return
		case v, ok := <-src:
			if !ok {
				st.Close()
				return
			}
			select {
			case st.out <- conv(v):
			case <-ctx.Done():
				st.Close()
				return
			case <-st.done:
				return
			}
		}
	}
}
