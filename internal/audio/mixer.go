package audio

import (
	"errors"
	"math"
	"sync"

	"github.com/lck-sdk/recorder/internal/logging"
)

var log = logging.L("mixer")

var (
	ErrNoSources            = errors.New("audio: no audio sources")
	ErrMicrophonePermission = errors.New("audio: the app has not been granted microphone permissions")
)

// Mixer sums every discovered source into one interleaved stream. All
// sources are drained by the same number of frames per Mix call so they
// stay in step.
type Mixer struct {
	provider  Provider
	platform  Platform
	nativeMic func(open bool) error

	mu        sync.Mutex
	sources   []Source
	micIndex  int
	mic       Source
	micOpen   bool
	gameMuted bool
}

// MixerOption customizes a Mixer.
type MixerOption func(*Mixer)

// WithNativeMicrophone routes SetMicrophoneOpen to the encoder on platforms
// where the encoder records the microphone.
func WithNativeMicrophone(fn func(open bool) error) MixerOption {
	return func(m *Mixer) { m.nativeMic = fn }
}

// NewMixer creates a mixer and runs an initial discovery.
func NewMixer(provider Provider, platform Platform, opts ...MixerOption) *Mixer {
	m := &Mixer{
		provider: provider,
		platform: platform,
		micIndex: -1,
		micOpen:  true,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.mu.Lock()
	m.discover()
	m.mu.Unlock()
	return m
}

// Discover rebuilds the source list from the provider.
func (m *Mixer) Discover() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discover()
}

func (m *Mixer) discover() {
	m.sources = nil
	m.micIndex = -1
	m.mic = nil

	captures := m.provider.Captures()
	if len(captures) > 0 {
		for i, src := range captures {
			m.sources = append(m.sources, src)
			if src.Kind() == Microphone {
				m.micIndex = i
				if m.platform.MicrophonePermission() {
					m.mic = src
				}
			}
		}
	} else {
		tap, existed := m.provider.OutputTap()
		if !existed {
			log.Error("no audio output listener found, created a default output capture")
		}
		m.sources = append(m.sources, tap)
	}

	if m.mic == nil && m.platform.MicrophonePermission() && m.platform.DesktopMicrophone() {
		if mic := m.provider.NewMicrophone(); mic != nil {
			m.mic = mic
			m.sources = append(m.sources, mic)
			m.micIndex = len(m.sources) - 1
		}
	}

	m.applyMicrophoneVolume()
	m.applyGameVolume()
	log.Debug("audio sources discovered", "count", len(m.sources), "microphone", m.mic != nil)
}

// EnableCapture rediscovers sources and starts queueing on all of them.
func (m *Mixer) EnableCapture() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discover()
	for _, src := range m.sources {
		src.EnableCapture()
	}
}

func (m *Mixer) DisableCapture() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, src := range m.sources {
		src.DisableCapture()
	}
}

// Sources returns a snapshot of the current source list.
func (m *Mixer) Sources() []Source {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Source, len(m.sources))
	copy(out, m.sources)
	return out
}

// Mix drains the same number of whole frames from every source and sums
// them sample by sample. The first source's buffer is the accumulator and
// carries no other meaning. Samples are not clipped.
func (m *Mixer) Mix(frameSize int) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sources) == 0 {
		log.Error("no audio sources to mix")
		return nil, ErrNoSources
	}

	frames := math.MaxInt
	for _, src := range m.sources {
		frames = min(frames, src.AvailableFrames(frameSize))
	}

	mixed := m.sources[0].Drain(frameSize, frames)
	length := len(mixed)
	tracks := make([][]float32, 0, len(m.sources)-1)
	for i, src := range m.sources[1:] {
		track := src.Drain(frameSize, frames)
		if len(track) != len(mixed) {
			log.Warn("mixer track length mismatch", "accumulator", len(mixed), "track", i+1, "length", len(track))
		}
		length = min(length, len(track))
		tracks = append(tracks, track)
	}

	mixed = mixed[:length]
	for _, track := range tracks {
		for i := range mixed {
			mixed[i] += track[i]
		}
	}
	return mixed, nil
}

// SetMicrophoneOpen opens or closes the microphone by setting its volume to
// 1 or 0. The source stays in the mix either way.
func (m *Mixer) SetMicrophoneOpen(open bool) error {
	if !m.platform.MicrophonePermission() {
		return ErrMicrophonePermission
	}
	if m.platform.NativeMicrophone() && m.nativeMic != nil {
		if err := m.nativeMic(open); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.micOpen = open
	m.applyMicrophoneVolume()
	return nil
}

func (m *Mixer) IsMicrophoneMuted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.micOpen
}

// SetGameAudioMute sets every non-microphone source's volume to 0 or 1.
func (m *Mixer) SetGameAudioMute(muted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gameMuted = muted
	m.applyGameVolume()
}

func (m *Mixer) IsGameAudioMuted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gameMuted
}

func (m *Mixer) applyMicrophoneVolume() {
	if m.mic == nil {
		return
	}
	m.mic.SetVolume(unitVolume(m.micOpen))
}

func (m *Mixer) applyGameVolume() {
	for i, src := range m.sources {
		if i != m.micIndex {
			src.SetVolume(unitVolume(!m.gameMuted))
		}
	}
}

func unitVolume(on bool) float32 {
	if on {
		return 1
	}
	return 0
}

// MicrophoneLevel returns the microphone level, or 0 while it is closed.
func (m *Mixer) MicrophoneLevel() float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mic == nil {
		log.Error("microphone not found")
		return 0
	}
	if !m.micOpen {
		return 0
	}
	return m.mic.Level()
}

// GameLevel returns the level of the first non-microphone source, or 0 while
// game audio is muted.
func (m *Mixer) GameLevel() float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, src := range m.sources {
		if i == m.micIndex {
			continue
		}
		if m.gameMuted {
			return 0
		}
		return src.Level()
	}
	log.Error("game audio source not found")
	return 0
}
