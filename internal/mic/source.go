package mic

import (
	"sync"

	apperrors "github.com/GriffinCanCode/tradein-diagnostics/platform/internal/errors"
)

// SampleSource is a live audio input yielding mono 16-bit PCM blocks.
type SampleSource interface {
	// Open acquires the device. The returned block size is the platform
	// minimum for sampleRate; callers raise it to their own floor.
	Open(sampleRate, minBlockSize int) (blockSize int, err error)
	// Read blocks until samples are available or the device fails.
	Read(buf []int16) (int, error)
	// Close releases the device. Safe to call on an unopened source.
	Close() error
}

// SourceFactory yields a fresh, unopened source for a single invocation.
type SourceFactory func() SampleSource

// session owns one acquisition of a SampleSource.
type session struct {
	src       SampleSource
	buf       []int16
	closeOnce sync.Once
	closeErr  error
}

// openSession acquires a source. The returned session must be closed even
// when err is non-nil.
func openSession(src SampleSource, sampleRate, floor int) (*session, error) {
	s := &session{src: src}
	blockSize, err := src.Open(sampleRate, floor)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeHardwareUnavailable) {
			return s, err
		}
		return s, apperrors.Wrap(err, apperrors.CodeHardwareUnavailable, "microphone could not be initialized")
	}
	s.buf = make([]int16, max(blockSize, floor))
	return s, nil
}

func (s *session) read() (int, error) {
	n, err := s.src.Read(s.buf)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.CodeSamplingFailed, "microphone read failed")
	}
	return min(n, len(s.buf)), nil
}

func (s *session) close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.src.Close()
	})
	return s.closeErr
}
