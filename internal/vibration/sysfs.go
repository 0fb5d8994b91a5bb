package vibration

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"time"

	apperrors "github.com/GriffinCanCode/tradein-diagnostics/platform/internal/errors"
)

// SysfsMotor drives a vibrator exposed by the kernel, either through the LED
// class trigger (leds/vibrator) or the legacy timed_output class.
type SysfsMotor struct {
	root string
}

// NewSysfsMotor creates a motor under root, normally /sys.
func NewSysfsMotor(root string) *SysfsMotor {
	return &SysfsMotor{root: root}
}

func (m *SysfsMotor) ledDir() string   { return filepath.Join(m.root, "class", "leds", "vibrator") }
func (m *SysfsMotor) timedDir() string { return filepath.Join(m.root, "class", "timed_output", "vibrator") }

// HasVibrator reports whether either interface is present.
func (m *SysfsMotor) HasVibrator(ctx context.Context) (bool, error) {
	for _, p := range []string{
		filepath.Join(m.ledDir(), "activate"),
		filepath.Join(m.timedDir(), "enable"),
	} {
		if _, err := os.Stat(p); err == nil {
			return true, nil
		}
	}
	return false, nil
}

// Vibrate starts a one-shot pulse. The kernel times the pulse; Vibrate does
// not wait for it to end.
func (m *SysfsMotor) Vibrate(ctx context.Context, d time.Duration) error {
	ms := strconv.FormatInt(d.Milliseconds(), 10)

	if _, err := os.Stat(filepath.Join(m.ledDir(), "activate")); err == nil {
		if err := writeAttr(filepath.Join(m.ledDir(), "duration"), ms); err != nil {
			return err
		}
		return writeAttr(filepath.Join(m.ledDir(), "activate"), "1")
	}
	return writeAttr(filepath.Join(m.timedDir(), "enable"), ms)
}

func writeAttr(path, value string) error {
	if err := os.WriteFile(path, []byte(value), 0o644); err != nil {
		if os.IsPermission(err) {
			return apperrors.Wrap(err, apperrors.CodeHardwareUnavailable, "vibrator not writable").
				WithMetadata("path", path)
		}
		return apperrors.Wrap(err, apperrors.CodeHardwareUnavailable, "vibrator write failed").
			WithMetadata("path", path)
	}
	return nil
}
