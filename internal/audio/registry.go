package audio

import "sync"

// Provider is where the mixer discovers its sources.
type Provider interface {
	// Captures returns explicitly registered capture sources in
	// registration order.
	Captures() []Source
	// OutputTap returns a capture attached to the default output. existed is
	// false when no output listener was active and one had to be created.
	OutputTap() (src Source, existed bool)
	// NewMicrophone returns a microphone source, or nil when the host has no
	// input device.
	NewMicrophone() Source
}

// Registry is the default Provider. Device backends register their captures
// here; the factories create fallbacks on demand.
type Registry struct {
	mu        sync.Mutex
	captures  []Source
	tap       Source
	mic       Source
	fallback  *Capture // tap created by NewTap, fed by the microphone clock
	chunkSize int

	// NewTap creates a default output capture when none is registered.
	NewTap func(chunkSize int) Source
	// NewMic creates a desktop microphone capture.
	NewMic func(chunkSize int) Source
}

// NewRegistry creates a registry whose fallback captures use chunkSize.
func NewRegistry(chunkSize int) *Registry {
	return &Registry{
		chunkSize: chunkSize,
		NewTap: func(n int) Source {
			return NewCapture("default-output", n)
		},
		NewMic: func(n int) Source {
			return NewMicrophone("microphone", n)
		},
	}
}

// Register adds an explicit capture source. Registering the same source twice
// is a no-op.
func (r *Registry) Register(src Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.captures {
		if s == src {
			return
		}
	}
	r.captures = append(r.captures, src)
}

func (r *Registry) Unregister(src Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.captures {
		if s == src {
			r.captures = append(r.captures[:i], r.captures[i+1:]...)
			return
		}
	}
}

// SetOutputTap installs the capture attached to the active output listener.
// A fallback tap created earlier stops receiving silence.
func (r *Registry) SetOutputTap(src Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fallback != nil {
		if mic, ok := r.mic.(*Capture); ok {
			r.fallback.Unfollow(mic)
		}
		r.fallback = nil
	}
	r.tap = src
}

func (r *Registry) Captures() []Source {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Source, len(r.captures))
	copy(out, r.captures)
	return out
}

func (r *Registry) OutputTap() (Source, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tap != nil {
		return r.tap, true
	}
	r.tap = r.NewTap(r.chunkSize)
	if c, ok := r.tap.(*Capture); ok {
		r.fallback = c
		r.link()
	}
	return r.tap, false
}

// NewMicrophone creates the desktop microphone on first use and returns the
// same source afterwards, so rediscovery does not open the device twice.
func (r *Registry) NewMicrophone() Source {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mic == nil && r.NewMic != nil {
		r.mic = r.NewMic(r.chunkSize)
		r.link()
	}
	return r.mic
}

// link feeds the fallback tap silence on every microphone callback. With no
// output listener the microphone is the only device clock, and a tap that
// never fills would hold the mixer at zero frames. r.mu is held.
func (r *Registry) link() {
	mic, ok := r.mic.(*Capture)
	if !ok || r.fallback == nil {
		return
	}
	r.fallback.FollowClock(mic)
}
