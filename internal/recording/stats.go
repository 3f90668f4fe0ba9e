package recording

import (
	"sync"
	"time"
)

// Stats counts what one recording produced.
type Stats struct {
	mu sync.RWMutex

	FramesEncoded  uint64
	FramesRendered uint64
	AudioSamples   uint64
	startTime      time.Time
}

func newStats(start time.Time) *Stats {
	return &Stats{startTime: start}
}

func (s *Stats) RecordFrame(rendered bool, samples int) {
	s.mu.Lock()
	s.FramesEncoded++
	if rendered {
		s.FramesRendered++
	}
	s.AudioSamples += uint64(samples)
	s.mu.Unlock()
}

// StatsSnapshot is a point-in-time copy of Stats for logging.
type StatsSnapshot struct {
	FramesEncoded   uint64
	FramesRendered  uint64
	AudioSamples    uint64
	Duration        time.Duration
	ActualFramerate float64
	VideoFramerate  float64
}

func (s *Stats) Snapshot(now time.Time) StatsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d := now.Sub(s.startTime)
	snap := StatsSnapshot{
		FramesEncoded:  s.FramesEncoded,
		FramesRendered: s.FramesRendered,
		AudioSamples:   s.AudioSamples,
		Duration:       d,
	}
	if secs := d.Seconds(); secs > 0 {
		snap.ActualFramerate = float64(s.FramesEncoded) / secs
		snap.VideoFramerate = float64(s.FramesRendered) / secs
	}
	return snap
}
