//go:build cgo

package audio

import (
	"context"
	"sync"

	"github.com/gordonklaus/portaudio"

	apperrors "github.com/GriffinCanCode/tradein-diagnostics/platform/internal/errors"
)

// Player plays built-in tones on the default output device.
type Player struct {
	SampleRate int
}

// NewPlayer creates a player at the default output rate.
func NewPlayer() *Player { return &Player{SampleRate: DefaultOutputRate} }

// Start begins playing the named tone and returns immediately. The output
// stream is released once playback ends for any reason, ctx included.
func (p *Player) Start(ctx context.Context, name string) (*Playback, error) {
	tone, err := LookupTone(name)
	if err != nil {
		return nil, err
	}
	rate := p.SampleRate
	if rate <= 0 {
		rate = DefaultOutputRate
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeHardwareUnavailable, "portaudio initialization failed")
	}
	frame := make([]float32, OutputFramesPerBuf)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(rate), len(frame), frame)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, apperrors.Wrap(err, apperrors.CodeHardwareUnavailable, "speaker could not be opened")
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, apperrors.Wrap(err, apperrors.CodeHardwareUnavailable, "speaker could not be started")
	}

	var once sync.Once
	release := func() error {
		var err error
		once.Do(func() {
			_ = stream.Stop()
			err = stream.Close()
			_ = portaudio.Terminate()
		})
		return err
	}
	write := func() error {
		if err := stream.Write(); err != nil && err != portaudio.OutputUnderflowed {
			return err
		}
		return nil
	}

	pb := startPlayback(Synthesize(tone, rate), frame, write, release)
	go func() {
		select {
		case <-ctx.Done():
			_ = pb.Stop()
		case <-pb.Done():
		}
	}()
	return pb, nil
}
