package recording

import "time"

// Pacer turns irregular tick intervals into a steady render rate. Time
// left over after a frame is carried into the next one, capped at one
// frame period, and at most one frame is released per tick.
type Pacer struct {
	period   time.Duration
	elapsed  time.Duration
	overflow time.Duration
}

func NewPacer(fps uint32) *Pacer {
	p := &Pacer{}
	p.SetFramerate(fps)
	return p
}

// SetFramerate changes the target rate. fps 0 is treated as 1.
func (p *Pacer) SetFramerate(fps uint32) {
	p.period = time.Second / time.Duration(max(fps, 1))
}

func (p *Pacer) Period() time.Duration { return p.period }

// Advance adds dt to the stopwatch and reports whether a frame is due.
func (p *Pacer) Advance(dt time.Duration) bool {
	if dt > 0 {
		p.elapsed += dt
	}
	if p.elapsed+p.overflow < p.period {
		return false
	}
	p.overflow = min(p.elapsed+p.overflow-p.period, p.period-1)
	p.elapsed = 0
	return true
}

// Reset clears the stopwatch and the carried time.
func (p *Pacer) Reset() {
	p.elapsed = 0
	p.overflow = 0
}
