// Package mic implements the microphone self-test: a bounded sampling window
// classified from per-block amplitudes, plus a streaming amplitude mode.
package mic

import "time"

// Sampling setup
const (
	SampleRate      = 44100
	MinBlockSamples = 4096 // floor applied to the platform-reported minimum

	TestWindow     = 5000 * time.Millisecond
	StreamInterval = 50 * time.Millisecond // pacing between streamed reads
)

// Verdict thresholds (mean absolute sample value of 16-bit PCM)
const (
	PassAverage     = 500.0
	PassPeak        = 1000.0
	ActiveThreshold = 600.0
	PassActiveRatio = 0.25
)

// Sentinel is emitted by the streaming mode in place of a measurement when the
// hardware is unavailable or sampling failed.
const Sentinel = -1.0

// StreamBufferSize bounds emissions queued for a slow consumer.
const StreamBufferSize = 16
