// Package device feeds audio captures from the host's sound devices.
package device

import (
	"errors"
	"unsafe"

	"github.com/lck-sdk/recorder/internal/logging"
)

var log = logging.L("audiodevice")

var ErrNotSupported = errors.New("audio device capture not supported in this build")

// Config describes the devices to open.
type Config struct {
	SampleRate   uint32
	Channels     uint32
	BufferFrames int
	Microphone   bool
	Loopback     bool
}

// ChunkSize is the number of interleaved samples per queued chunk: two
// device buffers' worth of frames.
func (c Config) ChunkSize() int {
	return c.BufferFrames * 2
}

// Info describes one host device.
type Info struct {
	Kind    string `yaml:"kind"`
	Name    string `yaml:"name"`
	ID      string `yaml:"id"`
	Default bool   `yaml:"default"`
}

// f32Samples reinterprets a little-endian float32 PCM byte buffer without
// copying. The result aliases b and must not outlive the callback.
func f32Samples(b []byte) []float32 {
	if len(b) < 4 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
}
