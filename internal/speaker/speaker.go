// Package speaker implements the loudspeaker self-test: play a short tone and
// check that the output device accepts it.
package speaker

import (
	"context"
	"time"

	apperrors "github.com/GriffinCanCode/tradein-diagnostics/platform/internal/errors"
	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/trace"
)

// DefaultTimeout bounds how long the test waits for playback to finish.
const DefaultTimeout = 3000 * time.Millisecond

// DefaultTones is the fallback order of tones to try. The notification tone
// is retried last since a transient open failure is the common case.
var DefaultTones = []string{"notification", "alarm", "notification"}

// Playback is a tone in progress.
type Playback interface {
	Done() <-chan struct{}
	Err() error
	// Stop ends playback and releases the output. Safe to call repeatedly.
	Stop() error
}

// Player starts tones by name.
type Player interface {
	Start(ctx context.Context, tone string) (Playback, error)
}

// PlayerFunc adapts a function to Player.
type PlayerFunc func(ctx context.Context, tone string) (Playback, error)

// Start calls f.
func (f PlayerFunc) Start(ctx context.Context, tone string) (Playback, error) { return f(ctx, tone) }

// Result is the outcome of one speaker test.
type Result struct {
	Pass bool
	Tone string
	// Completed is false when the tone was still playing at the deadline.
	Completed bool
	Err       error
}

// Tester runs the speaker test.
type Tester struct {
	player  Player
	tones   []string
	timeout time.Duration
}

// NewTester creates a tester. Zero timeout or empty tones use the defaults.
func NewTester(player Player, timeout time.Duration, tones ...string) *Tester {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if len(tones) == 0 {
		tones = DefaultTones
	}
	return &Tester{player: player, tones: tones, timeout: timeout}
}

// Test returns only the verdict.
func (t *Tester) Test(ctx context.Context) bool { return t.Run(ctx).Pass }

// Run plays the first tone that starts and waits up to the timeout. A tone
// still playing at the deadline counts as a pass.
func (t *Tester) Run(ctx context.Context) Result {
	ctx, span := trace.StartSpan(ctx, "speaker_test")
	defer span.End()
	log := trace.Logger(ctx)

	pb, tone, err := t.start(ctx)
	if err != nil {
		log.Warn("speaker unavailable", "error", err)
		return Result{Err: err}
	}
	defer func() {
		if err := pb.Stop(); err != nil {
			log.Debug("speaker release error", "error", err)
		}
	}()
	span.SetAttr("tone", tone)

	timer := time.NewTimer(t.timeout)
	defer timer.Stop()

	select {
	case <-pb.Done():
		if err := pb.Err(); err != nil {
			log.Warn("speaker playback failed", "tone", tone, "error", err)
			return Result{Tone: tone, Err: err}
		}
		log.Info("speaker test complete", "tone", tone, "completed", true)
		return Result{Pass: true, Tone: tone, Completed: true}
	case <-timer.C:
		log.Info("speaker test complete", "tone", tone, "completed", false)
		return Result{Pass: true, Tone: tone}
	case <-ctx.Done():
		return Result{Tone: tone, Err: apperrors.Wrap(ctx.Err(), apperrors.CodeCancelled, "speaker test interrupted")}
	}
}

func (t *Tester) start(ctx context.Context) (Playback, string, error) {
	var lastErr error
	for _, tone := range t.tones {
		if err := ctx.Err(); err != nil {
			return nil, "", apperrors.Wrap(err, apperrors.CodeCancelled, "speaker test interrupted")
		}
		pb, err := t.player.Start(ctx, tone)
		if err == nil && pb != nil {
			return pb, tone, nil
		}
		trace.Logger(ctx).Debug("tone did not start", "tone", tone, "error", err)
		lastErr = err
	}
	if lastErr == nil {
		lastErr = apperrors.New(apperrors.CodeHardwareUnavailable, "no tone could be played")
	}
	if !apperrors.IsCode(lastErr, apperrors.CodeHardwareUnavailable) {
		lastErr = apperrors.Wrap(lastErr, apperrors.CodeHardwareUnavailable, "no tone could be played")
	}
	return nil, "", lastErr
}
