// Package native is the boundary to the video encoder. A Library is either
// a vendor shared library loaded at runtime or the built-in file encoder.
package native

import (
	"errors"
	"image"
	"time"

	"github.com/lck-sdk/recorder/internal/logging"
)

var log = logging.L("native")

var (
	ErrNotSupported   = errors.New("native: encoder library loading not supported on this platform")
	ErrStartFailed    = errors.New("native: encoder failed to start")
	ErrUnknownSession = errors.New("native: unknown session")
	ErrSessionClosed  = errors.New("native: session not started")
)

// Session is an opaque encoder handle. It is owned by whoever created it and
// must be released with DestroySession.
type Session uintptr

// TextureSource is a render target the encoder reads video frames from.
type TextureSource interface {
	// Image returns the CPU-side pixels of the current frame.
	Image() *image.RGBA
}

// AudioPayload is one audio track's samples for a frame.
type AudioPayload struct {
	TrackIndex       uint32
	TimestampSamples uint64
	Samples          []float32
}

// Frame is one encode step: the bound textures, the audio mixed this tick
// and a ready flag per video track telling the encoder whether the texture
// holds a new image.
type Frame struct {
	Textures       []FrameTexture
	VideoTimestamp time.Duration
	Audio          []AudioPayload
	Ready          []bool
}

// Library is the encoder API. Calls on one session must not overlap.
type Library interface {
	Name() string
	// Extension is the output container's file extension without the dot.
	Extension() string

	CreateSession() (Session, error)
	DestroySession(s Session)
	StartSession(s Session, path string, tracks []TrackInfo) error
	StopSession(s Session) error

	// AudioTrackFrameSize is the number of interleaved samples the encoder
	// consumes per audio frame on track.
	AudioTrackFrameSize(s Session, track uint32) int

	// OpenMicrophone and CloseMicrophone control the encoder-owned
	// microphone on platforms where the encoder records it directly.
	OpenMicrophone(s Session, sampleRate uint32) error
	CloseMicrophone(s Session)
	MicrophoneVolume(s Session) float32

	BindTexture(s Session, src TextureSource) (uint32, error)
	ReleaseTexture(s Session, id uint32)

	SubmitFrame(s Session, f Frame) error
}

// Open returns the vendor library at path, or the file encoder when path is
// empty.
func Open(path string) (Library, error) {
	if path == "" {
		return NewFileLibrary(), nil
	}
	return openShared(path)
}
