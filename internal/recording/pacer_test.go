package recording

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPacerRendersTargetRateRegardlessOfChunking(t *testing.T) {
	splits := map[string][]time.Duration{
		"uniform 60Hz": evenSplit(time.Second, 60),
		"uniform 90Hz": evenSplit(time.Second, 90),
		"exact period": append(repeat(time.Second/30, 30), time.Second-30*(time.Second/30)),
		"1ms steps":    repeat(time.Millisecond, 1000),
		"random":       randomSplit(time.Second, 33*time.Millisecond, 7),
		"random fine":  randomSplit(time.Second, 5*time.Millisecond, 11),
	}

	for name, deltas := range splits {
		t.Run(name, func(t *testing.T) {
			var total time.Duration
			for _, d := range deltas {
				total += d
			}
			assert.Equal(t, time.Second, total)

			p := NewPacer(30)
			rendered := 0
			for _, d := range deltas {
				if p.Advance(d) {
					rendered++
				}
			}
			assert.Equal(t, 30, rendered)
		})
	}
}

func TestPacerAtMostOneFramePerTick(t *testing.T) {
	p := NewPacer(30)
	assert.True(t, p.Advance(time.Second))
	// The carry is capped below one period, so a single empty tick cannot
	// release a backlog.
	assert.False(t, p.Advance(0))
	assert.Less(t, p.overflow, p.Period())
}

func TestPacerNoFrameBeforePeriod(t *testing.T) {
	p := NewPacer(10)
	assert.False(t, p.Advance(0))
	assert.False(t, p.Advance(99*time.Millisecond))
	assert.True(t, p.Advance(time.Millisecond))
	assert.False(t, p.Advance(50*time.Millisecond))
}

func TestPacerFramerateChange(t *testing.T) {
	p := NewPacer(0)
	assert.Equal(t, time.Second, p.Period())
	p.SetFramerate(60)
	assert.Equal(t, time.Second/60, p.Period())
	p.Advance(10 * time.Millisecond)
	p.Reset()
	assert.False(t, p.Advance(time.Second/60-1))
}

func repeat(d time.Duration, n int) []time.Duration {
	out := make([]time.Duration, n)
	for i := range out {
		out[i] = d
	}
	return out
}

// evenSplit cuts total into n equal pieces, the last one absorbing the
// rounding remainder.
func evenSplit(total time.Duration, n int) []time.Duration {
	out := repeat(total/time.Duration(n), n)
	out[n-1] += total - total/time.Duration(n)*time.Duration(n)
	return out
}

// randomSplit cuts total into pieces no longer than maxStep.
func randomSplit(total, maxStep time.Duration, seed uint64) []time.Duration {
	r := rand.New(rand.NewPCG(seed, seed))
	var out []time.Duration
	for total > 0 {
		d := min(time.Duration(r.Int64N(int64(maxStep)))+1, total)
		out = append(out, d)
		total -= d
	}
	return out
}
