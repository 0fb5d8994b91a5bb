//go:build cgo

package audio

import (
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	apperrors "github.com/GriffinCanCode/tradein-diagnostics/platform/internal/errors"
)

// Source captures mono int16 PCM from the best available input device.
// A Source is single-use: open it, read it, close it.
type Source struct {
	stream    *portaudio.Stream
	buf       []int16
	device    string
	initDone  bool
	closeOnce sync.Once
	closeErr  error
}

// NewSource returns an unopened source.
func NewSource() *Source { return &Source{} }

// Open initializes PortAudio and starts an input stream at sampleRate. The
// frame count is the device's low-latency minimum, raised to minBlockSize.
func (s *Source) Open(sampleRate, minBlockSize int) (int, error) {
	if err := portaudio.Initialize(); err != nil {
		return 0, apperrors.Wrap(err, apperrors.CodeHardwareUnavailable, "portaudio initialization failed")
	}
	s.initDone = true

	dev, err := selectInput()
	if err != nil {
		return 0, err
	}
	s.device = dev.Name

	frames := max(blockSizeFor(dev.DefaultLowInputLatency, sampleRate), minBlockSize)
	s.buf = make([]int16, frames)
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: frames,
	}

	stream, err := portaudio.OpenStream(params, s.buf)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.CodeHardwareUnavailable, "microphone could not be opened").
			WithMetadata("device", dev.Name)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return 0, apperrors.Wrap(err, apperrors.CodeHardwareUnavailable, "microphone could not be started").
			WithMetadata("device", dev.Name)
	}
	s.stream = stream
	slog.Debug("microphone opened", "device", dev.Name, "rate", sampleRate, "frames", frames)
	return frames, nil
}

// Read blocks for one buffer of frames and copies it into buf. Input
// overflows drop samples upstream but the delivered block is still valid.
func (s *Source) Read(buf []int16) (int, error) {
	if s.stream == nil {
		return 0, apperrors.New(apperrors.CodeHardwareUnavailable, "microphone not open")
	}
	if err := s.stream.Read(); err != nil && err != portaudio.InputOverflowed {
		return 0, err
	}
	return copy(buf, s.buf), nil
}

// Close stops the stream and releases PortAudio.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		if s.stream != nil {
			_ = s.stream.Stop()
			s.closeErr = s.stream.Close()
		}
		if s.initDone {
			if err := portaudio.Terminate(); err != nil && s.closeErr == nil {
				s.closeErr = err
			}
		}
	})
	return s.closeErr
}

func selectInput() (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeHardwareUnavailable, "listing audio devices failed")
	}

	var best *portaudio.DeviceInfo
	for _, dev := range devices {
		if dev.MaxInputChannels < 1 || isLoopback(dev.Name) {
			continue
		}
		if best == nil || preferInput(dev.Name, best.Name) {
			best = dev
		}
	}
	if best != nil {
		return best, nil
	}

	dev, err := portaudio.DefaultInputDevice()
	if err != nil || dev == nil {
		return nil, apperrors.New(apperrors.CodeHardwareUnavailable, "no microphone present")
	}
	return dev, nil
}
