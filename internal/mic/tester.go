package mic

import (
	"context"
	"sync/atomic"
	"time"

	apperrors "github.com/GriffinCanCode/tradein-diagnostics/platform/internal/errors"
	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/trace"
)

// Config holds sampling parameters.
type Config struct {
	SampleRate     int
	BlockFloor     int
	Window         time.Duration
	StreamInterval time.Duration
}

// DefaultConfig returns the production sampling parameters.
func DefaultConfig() Config {
	return Config{
		SampleRate:     SampleRate,
		BlockFloor:     MinBlockSamples,
		Window:         TestWindow,
		StreamInterval: StreamInterval,
	}
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = SampleRate
	}
	if c.BlockFloor <= 0 {
		c.BlockFloor = MinBlockSamples
	}
	if c.Window <= 0 {
		c.Window = TestWindow
	}
	if c.StreamInterval <= 0 {
		c.StreamInterval = StreamInterval
	}
	return c
}

// Option customizes a Tester.
type Option func(*Tester)

// WithClock replaces the wall clock that bounds the sampling window.
func WithClock(now func() time.Time) Option {
	return func(t *Tester) { t.now = now }
}

// Tester runs microphone self-tests against sources from its factory.
// Invocations are exclusive: a call made while another is sampling is
// reported as hardware unavailable without touching the device.
type Tester struct {
	newSource SourceFactory
	cfg       Config
	now       func() time.Time
	busy      atomic.Bool
}

// NewTester creates a tester.
func NewTester(newSource SourceFactory, cfg Config, opts ...Option) *Tester {
	t := &Tester{newSource: newSource, cfg: cfg.withDefaults(), now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Config returns the effective sampling parameters.
func (t *Tester) Config() Config { return t.cfg }

// Result is the outcome of one batch test.
type Result struct {
	Pass  bool
	Stats Stats
	Err   error
}

// Test runs the batch verdict mode and returns only the verdict.
func (t *Tester) Test(ctx context.Context) bool {
	return t.Run(ctx).Pass
}

// Run samples for one window and classifies the collected block amplitudes.
// Hardware and sampling errors yield Pass=false with Err set.
func (t *Tester) Run(ctx context.Context) Result {
	ctx, span := trace.StartSpan(ctx, "mic_test")
	defer span.End()
	log := trace.Logger(ctx)

	if err := ctx.Err(); err != nil {
		return Result{Err: apperrors.Wrap(err, apperrors.CodeCancelled, "microphone test cancelled")}
	}
	if !t.busy.CompareAndSwap(false, true) {
		return Result{Err: apperrors.New(apperrors.CodeHardwareUnavailable, "microphone is in use")}
	}
	defer t.busy.Store(false)

	sess, err := openSession(t.newSource(), t.cfg.SampleRate, t.cfg.BlockFloor)
	defer func() {
		if cerr := sess.close(); cerr != nil {
			log.Debug("microphone release error", "error", cerr)
		}
	}()
	if err != nil {
		log.Warn("microphone unavailable", "error", err)
		return Result{Err: err}
	}

	amplitudes, err := t.collect(ctx, sess)
	if err != nil {
		span.SetAttr("error", err.Error())
		log.Warn("microphone sampling failed", "error", err, "blocks", len(amplitudes))
		return Result{Err: err}
	}

	stats := Evaluate(amplitudes)
	span.SetAttr("blocks", stats.Blocks)
	log.Info("microphone test complete",
		"blocks", stats.Blocks, "avg", stats.Average, "max", stats.Max,
		"active_ratio", stats.ActiveRatio, "pass", stats.Pass())
	return Result{Pass: stats.Pass(), Stats: stats}
}

func (t *Tester) collect(ctx context.Context, sess *session) ([]float64, error) {
	var amplitudes []float64
	start := t.now()
	for t.now().Sub(start) < t.cfg.Window {
		if err := ctx.Err(); err != nil {
			return amplitudes, apperrors.Wrap(err, apperrors.CodeSamplingFailed, "microphone test interrupted")
		}
		n, err := sess.read()
		if err != nil {
			return amplitudes, err
		}
		if n > 0 {
			amplitudes = append(amplitudes, BlockAmplitude(sess.buf[:n]))
		}
	}
	return amplitudes, nil
}
