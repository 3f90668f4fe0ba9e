package audio

import (
	"math"
	"sync"
	"sync/atomic"
)

// Capture accumulates interleaved float samples delivered by a real-time
// audio callback into a FIFO of fixed-size chunks. The audio thread is the
// only producer; the mixer is the only consumer and only removes a prefix.
type Capture struct {
	name       string
	kind       Kind
	chunkSize  int
	muteOutput bool

	capturing atomic.Bool
	volume    atomic.Uint32 // float32 bits
	follower  atomic.Pointer[Capture]

	chunks sync.Pool

	mu      sync.Mutex
	queue   []*[]float32
	pending *[]float32 // partially filled chunk when callbacks are not chunk-sized
	level   LevelMonitor
}

// Option customizes a Capture.
type Option func(*Capture)

// WithMutedOutput zeroes the device's live output buffer after every
// callback, so the captured signal is recorded but not played back.
func WithMutedOutput() Option {
	return func(c *Capture) { c.muteOutput = true }
}

// WithKind sets the source kind reported to the mixer.
func WithKind(k Kind) Option {
	return func(c *Capture) { c.kind = k }
}

// NewCapture creates a capture whose chunks hold chunkSize interleaved
// samples. chunkSize is the device buffer length times two.
func NewCapture(name string, chunkSize int, opts ...Option) *Capture {
	if chunkSize < 1 {
		chunkSize = 1
	}
	c := &Capture{
		name:      name,
		chunkSize: chunkSize,
		level:     newLevelMonitor(chunkSize),
	}
	c.chunks.New = func() any {
		buf := make([]float32, chunkSize)
		return &buf
	}
	c.volume.Store(math.Float32bits(1))
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewMicrophone creates a microphone capture. Its live output is muted so the
// microphone is not heard through the speakers and re-captured.
func NewMicrophone(name string, chunkSize int) *Capture {
	return NewCapture(name, chunkSize, WithKind(Microphone), WithMutedOutput())
}

func (c *Capture) Name() string   { return c.name }
func (c *Capture) Kind() Kind     { return c.kind }
func (c *Capture) ChunkSize() int { return c.chunkSize }

func (c *Capture) Volume() float32 {
	return math.Float32frombits(c.volume.Load())
}

func (c *Capture) SetVolume(v float32) {
	c.volume.Store(math.Float32bits(v))
}

// EnableCapture starts queueing. Chunks left over from a previous capture
// are discarded so a new recording starts in step across sources.
func (c *Capture) EnableCapture() {
	if c.capturing.CompareAndSwap(false, true) {
		c.mu.Lock()
		c.reset()
		c.mu.Unlock()
	}
}

// DisableCapture stops queueing samples. Already queued chunks stay
// available to Drain and the level keeps updating.
func (c *Capture) DisableCapture() {
	c.capturing.Store(false)
}

func (c *Capture) IsCapturing() bool {
	return c.capturing.Load()
}

// FollowClock makes c queue silence whenever src receives a callback, the
// same number of samples each time. It keeps a capture with no device of its
// own in step with one that has a device.
func (c *Capture) FollowClock(src *Capture) {
	if src == nil {
		return
	}
	src.follower.Store(c)
}

// Unfollow detaches c from whatever clock src was driving.
func (c *Capture) Unfollow(src *Capture) {
	if src != nil {
		src.follower.CompareAndSwap(c, nil)
	}
}

// Capture is the audio callback entry point. data holds interleaved samples
// for channels channels and may be zeroed in place when output muting is on.
func (c *Capture) Capture(data []float32, channels int) {
	c.mu.Lock()
	if c.capturing.Load() && len(data) > 0 {
		vol := c.Volume()
		if len(data) == c.chunkSize && c.pending == nil {
			chunk := c.chunks.Get().(*[]float32)
			scaleInto(*chunk, data, vol)
			c.queue = append(c.queue, chunk)
		} else {
			c.reblock(data, vol)
		}
	}
	c.level.observe(data, channels)
	c.mu.Unlock()

	if f := c.follower.Load(); f != nil {
		f.silence(len(data))
	}
	if c.muteOutput {
		clear(data)
	}
}

func scaleInto(dst, src []float32, vol float32) {
	for i, s := range src {
		dst[i] = s * vol
	}
}

// reblock scales irregularly sized callback data straight into fixed-size
// pooled chunks.
func (c *Capture) reblock(samples []float32, vol float32) {
	for len(samples) > 0 {
		p := c.pendingChunk()
		start := len(*p)
		n := min(c.chunkSize-start, len(samples))
		*p = (*p)[:start+n]
		scaleInto((*p)[start:], samples[:n], vol)
		samples = samples[n:]
		c.flushPending()
	}
}

// silence queues n zero samples while capturing.
func (c *Capture) silence(n int) {
	if !c.capturing.Load() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for n > 0 {
		p := c.pendingChunk()
		start := len(*p)
		k := min(c.chunkSize-start, n)
		*p = (*p)[:start+k]
		clear((*p)[start:])
		n -= k
		c.flushPending()
	}
}

func (c *Capture) pendingChunk() *[]float32 {
	if c.pending == nil {
		buf := c.chunks.Get().(*[]float32)
		*buf = (*buf)[:0]
		c.pending = buf
	}
	return c.pending
}

func (c *Capture) flushPending() {
	if len(*c.pending) == c.chunkSize {
		c.queue = append(c.queue, c.pending)
		c.pending = nil
	}
}

// reset returns every queued and pending chunk to the pool. c.mu is held.
func (c *Capture) reset() {
	for i, chunk := range c.queue {
		*chunk = (*chunk)[:c.chunkSize]
		c.chunks.Put(chunk)
		c.queue[i] = nil
	}
	c.queue = c.queue[:0]
	if c.pending != nil {
		*c.pending = (*c.pending)[:c.chunkSize]
		c.chunks.Put(c.pending)
		c.pending = nil
	}
}

func (c *Capture) chunksPerFrame(frameSize int) int {
	return max(1, frameSize/c.chunkSize)
}

// AvailableFrames returns the number of whole frames queued.
func (c *Capture) AvailableFrames(frameSize int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue) / c.chunksPerFrame(frameSize)
}

// Drain removes min(count, available) whole frames from the head of the
// queue and returns their samples concatenated.
func (c *Capture) Drain(frameSize, count int) []float32 {
	if count < 0 {
		count = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cpf := c.chunksPerFrame(frameSize)
	take := min(count*cpf, cpf*(len(c.queue)/cpf))
	out := make([]float32, take*c.chunkSize)
	for i := 0; i < take; i++ {
		copy(out[i*c.chunkSize:], *c.queue[i])
		c.chunks.Put(c.queue[i])
	}

	n := copy(c.queue, c.queue[take:])
	clear(c.queue[n:])
	c.queue = c.queue[:n]
	return out
}

// Level returns the moving average magnitude of the unscaled input.
func (c *Capture) Level() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level.level()
}

// Queued returns the number of chunks waiting to be drained.
func (c *Capture) Queued() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}
