// Package vibration implements the vibration motor self-test.
package vibration

import (
	"context"
	"time"

	apperrors "github.com/GriffinCanCode/tradein-diagnostics/platform/internal/errors"
	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/trace"
)

// DefaultPulse is the length of the one-shot test pulse.
const DefaultPulse = 500 * time.Millisecond

// Motor is a vibration actuator.
type Motor interface {
	HasVibrator(ctx context.Context) (bool, error)
	Vibrate(ctx context.Context, d time.Duration) error
}

// Tester runs the vibration test.
type Tester struct {
	motor Motor
	pulse time.Duration
}

// NewTester creates a tester; a zero pulse uses DefaultPulse.
func NewTester(motor Motor, pulse time.Duration) *Tester {
	if pulse <= 0 {
		pulse = DefaultPulse
	}
	return &Tester{motor: motor, pulse: pulse}
}

// Test issues one pulse. It is false when no motor is present or the pulse
// could not be issued.
func (t *Tester) Test(ctx context.Context) bool {
	return t.Run(ctx) == nil
}

// Run issues one pulse and reports why it could not, if it could not.
func (t *Tester) Run(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "vibration_test")
	defer span.End()
	log := trace.Logger(ctx)

	ok, err := t.motor.HasVibrator(ctx)
	if err != nil {
		log.Warn("vibrator probe failed", "error", err)
		return apperrors.Wrap(err, apperrors.CodeHardwareUnavailable, "vibrator probe failed")
	}
	if !ok {
		log.Info("no vibrator present")
		return apperrors.New(apperrors.CodeHardwareUnavailable, "no vibrator present")
	}
	if err := t.motor.Vibrate(ctx, t.pulse); err != nil {
		log.Warn("vibration failed", "error", err)
		return err
	}
	log.Info("vibration test complete", "pulse", t.pulse)
	return nil
}
