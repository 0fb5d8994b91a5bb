package vibration

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/adb"
	apperrors "github.com/GriffinCanCode/tradein-diagnostics/platform/internal/errors"
)

// ADBMotor drives the vibrator of an attached Android device.
type ADBMotor struct {
	shell adb.Shell
}

// NewADBMotor creates a motor over shell.
func NewADBMotor(shell adb.Shell) *ADBMotor {
	return &ADBMotor{shell: shell}
}

// HasVibrator asks the vibrator manager (Android 12+) for vibrator ids and
// falls back to the service registry on older releases.
func (m *ADBMotor) HasVibrator(ctx context.Context) (bool, error) {
	out, err := m.shell.Run(ctx, "cmd", "vibrator_manager", "list")
	if err == nil && !isUsageText(out) {
		return strings.TrimSpace(out) != "", nil
	}
	if apperrors.IsCode(err, apperrors.CodeUnavailable) {
		return false, err
	}

	out, err = m.shell.Run(ctx, "service", "check", "vibrator")
	if err != nil {
		return false, err
	}
	return strings.Contains(out, ": found"), nil
}

// Vibrate issues a one-shot pulse.
func (m *ADBMotor) Vibrate(ctx context.Context, d time.Duration) error {
	ms := strconv.FormatInt(d.Milliseconds(), 10)
	out, err := m.shell.Run(ctx, "cmd", "vibrator_manager", "synced", "oneshot", ms)
	if err == nil && !isUsageText(out) {
		return nil
	}
	if apperrors.IsCode(err, apperrors.CodeUnavailable) {
		return err
	}
	if _, err := m.shell.Run(ctx, "cmd", "vibrator", "vibrate", ms); err != nil {
		return apperrors.Wrap(err, apperrors.CodeHardwareUnavailable, "vibration command failed")
	}
	return nil
}

// isUsageText detects help output printed by shells that do not know a
// subcommand but still exit zero.
func isUsageText(out string) bool {
	lower := strings.ToLower(out)
	return strings.Contains(lower, "unknown command") || strings.HasPrefix(lower, "usage:") ||
		strings.Contains(lower, "can't find service")
}
