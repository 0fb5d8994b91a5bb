// Package audio binds microphone capture and tone playback to the host's
// sound devices through PortAudio. Builds without cgo get stubs that report
// the hardware as unavailable.
package audio

import (
	"math"
	"strings"
	"sync"
	"time"

	apperrors "github.com/GriffinCanCode/tradein-diagnostics/platform/internal/errors"
)

// Playback defaults.
const (
	DefaultOutputRate  = 44100
	OutputFramesPerBuf = 512
	toneAmplitude      = 0.5
	fadeSamples        = 64
)

// Segment is one constant-frequency stretch of a tone. Zero Hz is silence.
type Segment struct {
	Hz  float64
	Dur time.Duration
}

// Tone is a named synthetic sound played by the speaker test.
type Tone struct {
	Name     string
	Segments []Segment
}

// Duration returns the total length of the tone.
func (t Tone) Duration() time.Duration {
	var d time.Duration
	for _, s := range t.Segments {
		d += s.Dur
	}
	return d
}

// Built-in tones, addressed by name.
var tones = map[string]Tone{
	"notification": {Name: "notification", Segments: []Segment{
		{Hz: 880, Dur: 150 * time.Millisecond},
		{Hz: 0, Dur: 100 * time.Millisecond},
		{Hz: 1320, Dur: 200 * time.Millisecond},
	}},
	"alarm": {Name: "alarm", Segments: []Segment{
		{Hz: 1000, Dur: 250 * time.Millisecond},
		{Hz: 1250, Dur: 250 * time.Millisecond},
		{Hz: 1000, Dur: 250 * time.Millisecond},
		{Hz: 1250, Dur: 250 * time.Millisecond},
	}},
}

// LookupTone returns the named tone.
func LookupTone(name string) (Tone, error) {
	t, ok := tones[name]
	if !ok {
		return Tone{}, apperrors.Newf(apperrors.CodeNotFound, "unknown tone %q", name)
	}
	return t, nil
}

// Synthesize renders a tone as mono float32 PCM at rate. Each segment is
// faded in and out to avoid clicks.
func Synthesize(t Tone, rate int) []float32 {
	var out []float32
	for _, seg := range t.Segments {
		n := int(seg.Dur.Seconds() * float64(rate))
		start := len(out)
		out = append(out, make([]float32, n)...)
		if seg.Hz <= 0 {
			continue
		}
		step := 2 * math.Pi * seg.Hz / float64(rate)
		for i := 0; i < n; i++ {
			gain := toneAmplitude
			if edge := min(i, n-1-i); edge < fadeSamples {
				gain *= float64(edge) / fadeSamples
			}
			out[start+i] = float32(gain * math.Sin(step*float64(i)))
		}
	}
	return out
}

// Playback pushes samples to an output in fixed-size frames on its own
// goroutine and releases the output once, however it ends.
type Playback struct {
	done     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once

	mu  sync.Mutex
	err error
}

func startPlayback(samples []float32, frame []float32, write func() error, release func() error) *Playback {
	p := &Playback{done: make(chan struct{}), stop: make(chan struct{})}
	go func() {
		defer close(p.done)
		defer func() {
			if err := release(); err != nil {
				p.setErr(err)
			}
		}()
		for off := 0; off < len(samples); off += len(frame) {
			select {
			case <-p.stop:
				return
			default:
			}
			n := copy(frame, samples[off:])
			clear(frame[n:])
			if err := write(); err != nil {
				p.setErr(apperrors.Wrap(err, apperrors.CodeHardwareUnavailable, "speaker write failed"))
				return
			}
		}
	}()
	return p
}

func (p *Playback) setErr(err error) {
	p.mu.Lock()
	if p.err == nil {
		p.err = err
	}
	p.mu.Unlock()
}

// Done is closed when playback finished, failed or was stopped.
func (p *Playback) Done() <-chan struct{} { return p.done }

// Err reports the playback failure, if any. Valid after Done.
func (p *Playback) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Stop ends playback and waits for the output to be released.
func (p *Playback) Stop() error {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done
	return p.Err()
}

var (
	loopbackKeywords = []string{"blackhole", "vb-cable", "loopback", "monitor", "soundflower"}
	builtinKeywords  = []string{"built-in", "macbook", "internal", "headset"}
)

// isLoopback reports whether a device captures system output rather than a
// physical microphone.
func isLoopback(name string) bool {
	return containsAny(name, loopbackKeywords)
}

// preferInput reports whether candidate is a better microphone than current.
func preferInput(candidate, current string) bool {
	return containsAny(candidate, builtinKeywords) && !containsAny(current, builtinKeywords)
}

func containsAny(s string, keywords []string) bool {
	s = strings.ToLower(s)
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// blockSizeFor converts a device latency into a frame count at rate.
func blockSizeFor(latency time.Duration, rate int) int {
	return int(math.Ceil(latency.Seconds() * float64(rate)))
}
