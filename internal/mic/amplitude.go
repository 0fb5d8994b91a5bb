package mic

// BlockAmplitude returns the mean absolute value of the samples in one block.
func BlockAmplitude(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum int64
	for _, s := range samples {
		v := int64(s) // widen first: -32768 has no int16 absolute value
		if v < 0 {
			v = -v
		}
		sum += v
	}
	return float64(sum) / float64(len(samples))
}

// Stats aggregates the block amplitudes of one sampling window.
type Stats struct {
	Blocks      int     `json:"blocks"`
	Average     float64 `json:"average"`
	Max         float64 `json:"max"`
	ActiveRatio float64 `json:"activeRatio"`
}

// Evaluate computes window statistics. An empty sequence yields zero Stats.
func Evaluate(amplitudes []float64) Stats {
	if len(amplitudes) == 0 {
		return Stats{}
	}

	var sum, peak float64
	active := 0
	for _, a := range amplitudes {
		sum += a
		if a > peak {
			peak = a
		}
		if a > ActiveThreshold {
			active++
		}
	}

	n := float64(len(amplitudes))
	return Stats{
		Blocks:      len(amplitudes),
		Average:     sum / n,
		Max:         peak,
		ActiveRatio: float64(active) / n,
	}
}

// Pass reports the verdict. A window with no blocks never passes.
func (s Stats) Pass() bool {
	if s.Blocks == 0 {
		return false
	}
	return s.Average > PassAverage && s.Max > PassPeak && s.ActiveRatio > PassActiveRatio
}
