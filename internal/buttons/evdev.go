package buttons

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math/bits"
	"os"
	"path/filepath"
	"sync"
	"time"

	apperrors "github.com/GriffinCanCode/tradein-diagnostics/platform/internal/errors"
	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/trace"
)

// DefaultInputGlob matches the evdev nodes scanned when no devices are configured.
const DefaultInputGlob = "/dev/input/event*"

const evKey = 1

// eventLayout describes struct input_event: a timeval of two C longs followed
// by type(2) code(2) value(4). Longs are 8 bytes on 64-bit kernels and 4 on
// 32-bit ones.
type eventLayout struct {
	word  int
	order binary.ByteOrder
}

// nativeLayout matches the kernel ABI of the running binary.
var nativeLayout = eventLayout{word: bits.UintSize / 8, order: binary.NativeEndian}

func (l eventLayout) size() int { return 2*l.word + 8 }

func (l eventLayout) long(b []byte) int64 {
	if l.word == 4 {
		return int64(int32(l.order.Uint32(b)))
	}
	return int64(l.order.Uint64(b))
}

// Source produces raw key transitions until ctx is done or it fails.
type Source interface {
	Run(ctx context.Context, emit func(KeyEvent)) error
}

// EvdevSource reads key records from Linux input event nodes.
type EvdevSource struct {
	paths []string
}

// NewEvdevSource creates a source over paths. Empty paths scan DefaultInputGlob.
func NewEvdevSource(paths []string) *EvdevSource {
	return &EvdevSource{paths: paths}
}

func (s *EvdevSource) devices() []string {
	if len(s.paths) > 0 {
		return s.paths
	}
	matches, _ := filepath.Glob(DefaultInputGlob)
	return matches
}

// Run implements Source. Unreadable nodes are skipped; if none can be opened
// the source is unavailable.
func (s *EvdevSource) Run(ctx context.Context, emit func(KeyEvent)) error {
	log := trace.Logger(ctx)

	var files []*os.File
	for _, p := range s.devices() {
		f, err := os.Open(p)
		if err != nil {
			log.Debug("skipping input device", "path", p, "error", err)
			continue
		}
		files = append(files, f)
	}
	if len(files) == 0 {
		return apperrors.New(apperrors.CodeHardwareUnavailable, "no readable input devices")
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		stop = make(chan struct{})
	)
	for _, f := range files {
		wg.Add(1)
		go func(f *os.File) {
			defer wg.Done()
			err := readEvents(f, nativeLayout, func(ev KeyEvent) {
				mu.Lock()
				defer mu.Unlock()
				emit(ev)
			})
			if err != nil && ctx.Err() == nil {
				log.Warn("input device read failed", "path", f.Name(), "error", err)
			}
		}(f)
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		for _, f := range files {
			f.Close()
		}
	}()

	wg.Wait()
	close(stop)
	if ctx.Err() != nil {
		return nil
	}
	return apperrors.New(apperrors.CodeSamplingFailed, "all input devices closed")
}

// readEvents decodes input_event records from r until EOF or error.
func readEvents(r io.Reader, l eventLayout, emit func(KeyEvent)) error {
	buf := make([]byte, l.size())
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if ev, ok := l.decode(buf); ok {
			emit(ev)
		}
	}
}

func (l eventLayout) decode(b []byte) (KeyEvent, bool) {
	sec := l.long(b[0:])
	usec := l.long(b[l.word:])
	rest := b[2*l.word:]
	typ := l.order.Uint16(rest[0:2])
	code := l.order.Uint16(rest[2:4])
	value := int32(l.order.Uint32(rest[4:8]))
	if typ != evKey {
		return KeyEvent{}, false
	}
	return KeyEvent{
		Code:   code,
		Action: KeyAction(value),
		Time:   time.Unix(sec, usec*int64(time.Microsecond)),
	}, true
}
