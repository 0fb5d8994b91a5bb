//go:build !cgo

package audio

import (
	"context"

	apperrors "github.com/GriffinCanCode/tradein-diagnostics/platform/internal/errors"
)

var errNoCGO = apperrors.New(apperrors.CodeHardwareUnavailable, "audio requires a cgo-enabled build")

// Source is a stub when cgo is disabled.
type Source struct{}

// NewSource returns a stub source.
func NewSource() *Source { return &Source{} }

// Open always reports the microphone as unavailable.
func (s *Source) Open(sampleRate, minBlockSize int) (int, error) { return 0, errNoCGO }

// Read always fails.
func (s *Source) Read(buf []int16) (int, error) { return 0, errNoCGO }

// Close is a no-op.
func (s *Source) Close() error { return nil }

// Player is a stub when cgo is disabled.
type Player struct {
	SampleRate int
}

// NewPlayer returns a stub player.
func NewPlayer() *Player { return &Player{SampleRate: DefaultOutputRate} }

// Start always reports the speaker as unavailable.
func (p *Player) Start(ctx context.Context, name string) (*Playback, error) {
	if _, err := LookupTone(name); err != nil {
		return nil, err
	}
	return nil, errNoCGO
}
