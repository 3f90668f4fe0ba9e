package audio

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(from, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(from + i)
	}
	return out
}

func TestCaptureDrainsWholeFramesInOrder(t *testing.T) {
	c := NewCapture("game", 4)
	c.EnableCapture()
	for i := 0; i < 5; i++ {
		c.Capture(seq(i*4, 4), 2)
	}

	// Two chunks per frame, five chunks queued.
	assert.Equal(t, 2, c.AvailableFrames(8))

	got := c.Drain(8, 5)
	require.Len(t, got, 16)
	assert.Equal(t, seq(0, 16), got)
	assert.Equal(t, 1, c.Queued())
	assert.Equal(t, 0, c.AvailableFrames(8))
}

func TestCaptureDrainRespectsCount(t *testing.T) {
	c := NewCapture("game", 4)
	c.EnableCapture()
	for i := 0; i < 4; i++ {
		c.Capture(seq(i*4, 4), 2)
	}

	got := c.Drain(4, 1)
	assert.Equal(t, seq(0, 4), got)
	assert.Equal(t, 3, c.AvailableFrames(4))

	assert.Empty(t, c.Drain(4, 0))
	assert.Equal(t, 3, c.Queued())
}

func TestCaptureFrameSmallerThanChunkCountsOneChunkPerFrame(t *testing.T) {
	c := NewCapture("game", 8)
	c.EnableCapture()
	c.Capture(seq(0, 8), 2)
	c.Capture(seq(8, 8), 2)

	assert.Equal(t, 2, c.AvailableFrames(4))
	assert.Len(t, c.Drain(4, 1), 8)
}

func TestCaptureScalesByVolume(t *testing.T) {
	c := NewCapture("game", 4)
	c.SetVolume(0.5)
	c.EnableCapture()
	c.Capture([]float32{1, -1, 0.5, 2}, 2)

	assert.Equal(t, []float32{0.5, -0.5, 0.25, 1}, c.Drain(4, 1))
}

func TestCaptureIgnoredWhileDisabled(t *testing.T) {
	c := NewCapture("game", 4)
	c.Capture([]float32{0.5, 0.5, 0.5, 0.5}, 2)

	assert.Equal(t, 0, c.Queued())
	assert.InDelta(t, 0.505, c.Level(), 1e-6, "level keeps updating while idle")
}

func TestCaptureDisableKeepsQueuedChunks(t *testing.T) {
	c := NewCapture("game", 4)
	c.EnableCapture()
	c.Capture(seq(0, 4), 2)
	c.DisableCapture()
	c.Capture(seq(4, 4), 2)

	assert.Equal(t, seq(0, 4), c.Drain(4, 10))
}

func TestCaptureReblocksIrregularCallbacks(t *testing.T) {
	c := NewCapture("game", 4)
	c.EnableCapture()
	c.Capture(seq(0, 3), 1)
	c.Capture(seq(3, 3), 1)
	assert.Equal(t, 1, c.Queued())

	c.Capture(seq(6, 4), 1)
	assert.Equal(t, 2, c.Queued())

	assert.Equal(t, seq(0, 8), c.Drain(4, 2))
}

func TestMicrophoneMutesLiveOutput(t *testing.T) {
	c := NewMicrophone("mic", 4)
	c.EnableCapture()
	data := []float32{0.1, 0.2, 0.3, 0.4}
	c.Capture(data, 2)

	assert.Equal(t, []float32{0, 0, 0, 0}, data)
	assert.Equal(t, []float32{0.1, 0.2, 0.3, 0.4}, c.Drain(4, 1))
	assert.Equal(t, Microphone, c.Kind())
}

func TestGenericCaptureLeavesLiveOutput(t *testing.T) {
	c := NewCapture("game", 4)
	c.EnableCapture()
	data := []float32{0.1, 0.2, 0.3, 0.4}
	c.Capture(data, 2)

	assert.Equal(t, []float32{0.1, 0.2, 0.3, 0.4}, data)
}

func TestLevelIsZeroBeforeAnySample(t *testing.T) {
	c := NewCapture("game", 4)
	assert.Zero(t, c.Level())
}

func TestLevelUsesUnscaledInput(t *testing.T) {
	c := NewCapture("game", 4)
	c.SetVolume(0)
	c.Capture([]float32{0.5, -0.5, 0.5, -0.5}, 2)

	// (0.01 + 0.5 + 0.5) / 2 sample frames
	assert.InDelta(t, 0.505, c.Level(), 1e-6)
}

func TestLevelWindowIsBoundedByChunkSize(t *testing.T) {
	c := NewCapture("game", 4)
	loud := []float32{1, 1, 1, 1}
	for i := 0; i < 10; i++ {
		c.Capture(loud, 1)
	}
	assert.InDelta(t, 1.0, c.Level(), 0.01)

	quiet := []float32{0, 0, 0, 0}
	c.Capture(quiet, 1)
	assert.InDelta(t, 0.0025, c.Level(), 1e-3, "old samples leave the window")
	assert.GreaterOrEqual(t, c.Level(), float32(0))
}

func TestCaptureConcurrentProducerConsumer(t *testing.T) {
	const chunks = 500
	c := NewCapture("game", 4)
	c.EnableCapture()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < chunks; i++ {
			c.Capture(seq(i*4, 4), 2)
		}
	}()

	var got []float32
	for len(got) < chunks*4 {
		got = append(got, c.Drain(4, c.AvailableFrames(4))...)
		_ = c.Level()
	}
	wg.Wait()

	assert.Equal(t, seq(0, chunks*4), got)
}

func TestCaptureReblockScalesByVolume(t *testing.T) {
	c := NewCapture("game", 4)
	c.SetVolume(0.5)
	c.EnableCapture()
	c.Capture([]float32{2, 4, 6}, 1)
	c.Capture([]float32{8, 10, 12}, 1)

	assert.Equal(t, []float32{1, 2, 3, 4}, c.Drain(4, 1))
}

func TestCaptureSmallCallbacksDoNotAllocate(t *testing.T) {
	c := NewCapture("game", 1024)
	c.EnableCapture()
	c.Capture(make([]float32, 100), 2)

	small := []float32{0.1, 0.2, 0.3, 0.4}
	allocs := testing.AllocsPerRun(100, func() {
		c.Capture(small, 2)
	})
	assert.Zero(t, allocs)
	assert.Zero(t, c.Queued())
}

func TestEnableCaptureDropsStaleChunks(t *testing.T) {
	c := NewCapture("game", 4)
	c.EnableCapture()
	c.Capture(seq(0, 4), 2)
	c.Capture(seq(4, 2), 2)
	c.DisableCapture()
	require.Equal(t, 1, c.Queued())

	c.EnableCapture()
	assert.Zero(t, c.Queued())

	c.Capture(seq(10, 4), 2)
	assert.Equal(t, seq(10, 4), c.Drain(4, 10), "partial chunk from the last session is gone")
}

func TestEnableCaptureTwiceKeepsQueue(t *testing.T) {
	c := NewCapture("game", 4)
	c.EnableCapture()
	c.Capture(seq(0, 4), 2)
	c.EnableCapture()

	assert.Equal(t, 1, c.Queued())
}

func TestFollowClockQueuesMatchingSilence(t *testing.T) {
	mic := NewMicrophone("mic", 4)
	tap := NewCapture("default-output", 4)
	tap.FollowClock(mic)
	mic.EnableCapture()
	tap.EnableCapture()

	mic.Capture(seq(1, 3), 1)
	mic.Capture(seq(4, 6), 1)
	mic.Capture(seq(10, 3), 1)

	assert.Equal(t, 3, mic.Queued())
	assert.Equal(t, 3, tap.Queued())
	assert.Equal(t, make([]float32, 12), tap.Drain(4, 3))

	tap.Unfollow(mic)
	mic.Capture(seq(0, 4), 1)
	assert.Zero(t, tap.Queued())
}

func TestFollowerIgnoresClockWhileDisabled(t *testing.T) {
	mic := NewMicrophone("mic", 4)
	tap := NewCapture("default-output", 4)
	tap.FollowClock(mic)

	mic.Capture(seq(0, 4), 1)
	assert.Zero(t, tap.Queued())
}
