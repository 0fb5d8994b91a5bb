package buttons

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/GriffinCanCode/tradein-diagnostics/platform/internal/errors"
	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/syncx"
	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/trace"
)

// Hub fans translated events out to subscribers. The raw source runs only
// while at least one subscriber is registered.
type Hub struct {
	source       Source
	unlockWindow time.Duration
	bufferSize   int

	state *syncx.RWGuard[hubState]
}

type hubState struct {
	subs   map[string]*Subscription
	gen    uint64
	cancel context.CancelFunc
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithUnlockWindow overrides DefaultUnlockWindow.
func WithUnlockWindow(d time.Duration) HubOption {
	return func(h *Hub) { h.unlockWindow = d }
}

// WithBufferSize overrides DefaultBufferSize.
func WithBufferSize(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.bufferSize = n
		}
	}
}

// NewHub creates a hub over source.
func NewHub(source Source, opts ...HubOption) *Hub {
	h := &Hub{
		source:       source,
		unlockWindow: DefaultUnlockWindow,
		bufferSize:   DefaultBufferSize,
		state:        syncx.NewGuard(hubState{subs: make(map[string]*Subscription)}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscription is one listener on a channel.
type Subscription struct {
	ID      string
	Channel Channel

	hub  *Hub
	ch   chan Event
	once sync.Once
	err  error
}

// Events is closed when the subscription is closed or the source fails.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Err reports why the source stopped. Valid after Events is closed.
func (s *Subscription) Err() error {
	return syncx.Read(s.hub.state, func(hubState) error { return s.err })
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.state.Write(func(st *hubState) {
		if _, ok := st.subs[s.ID]; !ok {
			return
		}
		delete(st.subs, s.ID)
		s.closeLocked(nil)
		if len(st.subs) == 0 && st.cancel != nil {
			st.cancel()
			st.cancel = nil
		}
	})
}

func (s *Subscription) closeLocked(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.ch)
	})
}

// Subscribe registers a listener on channel, starting the source if it is
// the first one.
func (h *Hub) Subscribe(ctx context.Context, channel Channel) (*Subscription, error) {
	if channel != PowerChannel && channel != VolumeChannel {
		return nil, apperrors.Newf(apperrors.CodeInvalidArgument, "unknown button channel %q", channel)
	}
	sub := &Subscription{
		ID:      uuid.NewString(),
		Channel: channel,
		hub:     h,
		ch:      make(chan Event, h.bufferSize),
	}
	started := syncx.Update(h.state, func(st *hubState) bool {
		st.subs[sub.ID] = sub
		if st.cancel != nil {
			return false
		}
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		st.gen++
		st.cancel = cancel
		go h.run(runCtx, st.gen)
		return true
	})
	trace.Logger(ctx).Debug("button listener registered",
		"channel", channel, "subscription", sub.ID, "source_started", started)
	return sub, nil
}

// Subscribers returns the number of registered listeners.
func (h *Hub) Subscribers() int {
	return syncx.Read(h.state, func(st hubState) int { return len(st.subs) })
}

func (h *Hub) run(ctx context.Context, gen uint64) {
	tr := NewTranslator(h.unlockWindow)
	err := h.source.Run(ctx, func(ev KeyEvent) {
		if ch, e, ok := tr.Translate(ev); ok {
			h.publish(ctx, ch, e)
		}
	})
	if err != nil {
		trace.Logger(ctx).Warn("button source stopped", "error", err)
	}

	h.state.Write(func(st *hubState) {
		if st.gen != gen {
			return
		}
		if st.cancel != nil {
			st.cancel()
			st.cancel = nil
		}
		if err == nil {
			return
		}
		for id, sub := range st.subs {
			sub.closeLocked(err)
			delete(st.subs, id)
		}
	})
}

// publish delivers without blocking; a full subscriber drops the event.
func (h *Hub) publish(ctx context.Context, channel Channel, e Event) {
	dropped := syncx.Read(h.state, func(st hubState) []string {
		var ids []string
		for _, sub := range st.subs {
			if sub.Channel != channel {
				continue
			}
			select {
			case sub.ch <- e:
			default:
				ids = append(ids, sub.ID)
			}
		}
		return ids
	})
	for _, id := range dropped {
		trace.Logger(ctx).Debug("dropping button event", "subscription", id, "event", e)
	}
}
