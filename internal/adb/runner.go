// Package adb runs commands on an Android device attached over the Android
// Debug Bridge.
package adb

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/GriffinCanCode/tradein-diagnostics/platform/internal/errors"
	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/resilience"
	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/trace"
)

// DefaultCommandTimeout bounds a single shell invocation.
const DefaultCommandTimeout = 10 * time.Second

// Shell runs one-shot shell commands on a device. Streams keep a command
// running and expose its stdout.
type Shell interface {
	Run(ctx context.Context, args ...string) (string, error)
	Stream(ctx context.Context, args ...string) (io.ReadCloser, error)
}

// Runner executes `adb [-s serial] shell ...` through the local adb binary.
type Runner struct {
	path    string
	serial  string
	timeout time.Duration
	breaker *resilience.Breaker
	retry   resilience.RetryConfig
}

// NewRunner creates a runner for the adb binary at path. An empty serial
// targets the only attached device.
func NewRunner(path, serial string) *Runner {
	if path == "" {
		path = "adb"
	}
	r := &Runner{
		path:    path,
		serial:  serial,
		timeout: DefaultCommandTimeout,
		retry:   resilience.DeviceRetryConfig(),
	}
	r.breaker = resilience.New(resilience.DeviceConfig("adb")).WithHook(r.linkChanged)
	return r
}

// linkChanged reports the device link going down or coming back.
func (r *Runner) linkChanged(from, to resilience.State) {
	log := slog.With("serial", r.serial, "from", from.String())
	switch to {
	case resilience.Open:
		log.Warn("adb device link lost; failing fast")
	case resilience.Closed:
		log.Info("adb device link restored")
	}
}

func (r *Runner) baseArgs() []string {
	if r.serial == "" {
		return []string{"shell"}
	}
	return []string{"-s", r.serial, "shell"}
}

// Run executes a shell command and returns its trimmed stdout.
func (r *Runner) Run(ctx context.Context, args ...string) (string, error) {
	ctx, span := trace.StartSpan(ctx, "adb_shell")
	defer span.End()
	span.SetAttr("command", strings.Join(args, " "))

	var out string
	err := resilience.Retry(ctx, r.retry, func() error {
		var err error
		out, err = resilience.ExecuteWithResult(r.breaker, func() (string, error) {
			return r.runOnce(ctx, args)
		})
		return err
	})
	if err != nil {
		trace.Logger(ctx).Debug("adb command failed", "args", args, "error", err)
		return "", err
	}
	return out, nil
}

func (r *Runner) runOnce(ctx context.Context, args []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.path, append(r.baseArgs(), args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", classify(ctx, err, stderr.String())
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Stream starts a long-running shell command. The returned reader is closed
// and the process killed when ctx is cancelled or Close is called.
func (r *Runner) Stream(ctx context.Context, args ...string) (io.ReadCloser, error) {
	if err := r.breaker.Allow(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, r.path, append(r.baseArgs(), args...)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "adb stdout pipe")
	}
	if err := cmd.Start(); err != nil {
		cancel()
		r.breaker.Failure()
		return nil, apperrors.Wrap(err, apperrors.CodeADBFailed, "adb could not be started")
	}
	r.breaker.Success()
	return &streamReader{ReadCloser: stdout, cmd: cmd, cancel: cancel}, nil
}

type streamReader struct {
	io.ReadCloser
	cmd    *exec.Cmd
	cancel context.CancelFunc
}

func (s *streamReader) Close() error {
	s.cancel()
	_ = s.ReadCloser.Close()
	_ = s.cmd.Wait()
	return nil
}

// classify maps a failed invocation to an error code. Failures reported by
// adb itself ("error: ..." / "adb: ...") are transport problems; any other
// non-zero exit means the command ran on the device and failed there.
func classify(ctx context.Context, err error, stderr string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.Wrap(err, apperrors.CodeTimeout, "adb command timed out")
	}
	if ctx.Err() != nil {
		return apperrors.Wrap(ctx.Err(), apperrors.CodeCancelled, "adb command cancelled")
	}
	var execErr *exec.Error
	var pathErr *fs.PathError
	if errors.As(err, &execErr) || errors.As(err, &pathErr) {
		return apperrors.Wrap(err, apperrors.CodeUnavailable, "adb binary not runnable")
	}
	msg := firstLine(stderr)
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "unauthorized"):
		return apperrors.Wrap(err, apperrors.CodeUnavailable, "device unauthorized").WithMetadata("stderr", msg)
	case strings.Contains(lower, "no devices/emulators found"),
		strings.Contains(lower, "device '") && strings.Contains(lower, "not found"):
		return apperrors.Wrap(err, apperrors.CodeUnavailable, "device not attached").WithMetadata("stderr", msg)
	case strings.HasPrefix(lower, "error:"), strings.HasPrefix(lower, "adb:"):
		return apperrors.Wrap(err, apperrors.CodeADBFailed, "adb command failed").WithMetadata("stderr", msg)
	}

	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	return apperrors.Wrap(err, apperrors.CodeCommandFailed, "device command failed").
		WithMetadata("stderr", msg).
		WithMetadata("exit_code", strconv.Itoa(exitCode))
}

func firstLine(s string) string {
	sc := bufio.NewScanner(strings.NewReader(s))
	if sc.Scan() {
		return strings.TrimSpace(sc.Text())
	}
	return ""
}

// ParseProps parses `getprop` output lines of the form `[key]: [value]`.
func ParseProps(out string) map[string]string {
	props := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		key, val, ok := strings.Cut(line, "]: [")
		if !ok || !strings.HasPrefix(key, "[") || !strings.HasSuffix(val, "]") {
			continue
		}
		props[key[1:]] = val[:len(val)-1]
	}
	return props
}
