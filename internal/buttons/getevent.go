package buttons

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"

	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/adb"
	apperrors "github.com/GriffinCanCode/tradein-diagnostics/platform/internal/errors"
)

// GeteventSource follows `getevent -lq` on an attached Android device.
type GeteventSource struct {
	shell adb.Shell
	now   func() time.Time
}

// NewGeteventSource creates a source over shell.
func NewGeteventSource(shell adb.Shell) *GeteventSource {
	return &GeteventSource{shell: shell, now: time.Now}
}

// Run implements Source.
func (s *GeteventSource) Run(ctx context.Context, emit func(KeyEvent)) error {
	rc, err := s.shell.Stream(ctx, "getevent", "-lq")
	if err != nil {
		return err
	}
	defer rc.Close()

	err = scanGetevent(rc, s.now, emit)
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeSamplingFailed, "getevent stream failed")
	}
	return apperrors.New(apperrors.CodeSamplingFailed, "getevent exited")
}

func scanGetevent(r io.Reader, now func() time.Time, emit func(KeyEvent)) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ev, ok := parseGeteventLine(sc.Text()); ok {
			ev.Time = now()
			emit(ev)
		}
	}
	return sc.Err()
}

// parseGeteventLine parses lines such as
// "/dev/input/event0: EV_KEY       KEY_POWER            DOWN".
func parseGeteventLine(line string) (KeyEvent, bool) {
	fields := strings.Fields(line)
	for i, f := range fields {
		if f != "EV_KEY" || i+2 >= len(fields) {
			continue
		}
		code, ok := keyNames[fields[i+1]]
		if !ok {
			return KeyEvent{}, false
		}
		var action KeyAction
		switch fields[i+2] {
		case "DOWN":
			action = KeyDown
		case "UP":
			action = KeyUp
		case "REPEAT":
			action = KeyRepeat
		default:
			return KeyEvent{}, false
		}
		return KeyEvent{Code: code, Action: action}, true
	}
	return KeyEvent{}, false
}
