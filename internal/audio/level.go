package audio

import "math"

// levelFloor keeps the running sum from drifting below zero through float
// cancellation.
const levelFloor = 0.01

// LevelMonitor keeps a moving average of per-sample-frame magnitudes over the
// last capacity sample frames. It is not safe for concurrent use; Capture
// guards it with its own lock.
type LevelMonitor struct {
	ring  []float32
	pos   int
	sum   float32
	count int
}

func newLevelMonitor(capacity int) LevelMonitor {
	if capacity < 1 {
		capacity = 1
	}
	return LevelMonitor{ring: make([]float32, capacity)}
}

// observe folds interleaved samples into the monitor. Each sample frame
// contributes the mean absolute value across its channels.
func (m *LevelMonitor) observe(data []float32, channels int) {
	if channels < 1 {
		channels = 1
	}
	frames := len(data) / channels
	for f := 0; f < frames; f++ {
		m.sum -= m.ring[m.pos]
		m.sum = max(levelFloor, m.sum)

		var v float32
		for _, s := range data[f*channels : f*channels+channels] {
			v += float32(math.Abs(float64(s)))
		}
		v /= float32(channels)

		m.sum += v
		m.ring[m.pos] = v
		m.pos = (m.pos + 1) % len(m.ring)
	}
	m.count = min(m.count+frames, len(m.ring))
}

// level returns sum/count, or 0 before anything was observed.
func (m *LevelMonitor) level() float32 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float32(m.count)
}
