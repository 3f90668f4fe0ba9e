//go:build cgo

package device

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/lck-sdk/recorder/internal/audio"
)

// Engine owns the miniaudio context and the devices feeding the registry.
type Engine struct {
	cfg Config
	ctx *malgo.AllocatedContext

	mu      sync.Mutex
	devices []*malgo.Device
	closed  bool
}

// Open initializes miniaudio and wires device-backed captures into reg. The
// loopback device becomes the default output tap and the microphone is
// opened lazily when the mixer asks for one.
func Open(cfg Config, reg *audio.Registry) (*Engine, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	e := &Engine{cfg: cfg, ctx: ctx}

	if cfg.Loopback {
		tap := audio.NewCapture("system-output", cfg.ChunkSize())
		if err := e.start(malgo.Loopback, tap); err != nil {
			log.Warn("loopback capture unavailable, game audio will be silent", "error", err.Error())
		} else {
			reg.SetOutputTap(tap)
		}
	}

	if cfg.Microphone {
		reg.NewMic = func(chunkSize int) audio.Source {
			mic := audio.NewMicrophone("microphone", chunkSize)
			if err := e.start(malgo.Capture, mic); err != nil {
				log.Error("microphone unavailable", "error", err.Error())
				return nil
			}
			return mic
		}
	} else {
		reg.NewMic = nil
	}

	return e, nil
}

func (e *Engine) start(kind malgo.DeviceType, c *audio.Capture) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("audio engine closed")
	}

	dc := malgo.DefaultDeviceConfig(kind)
	dc.Capture.Format = malgo.FormatF32
	dc.Capture.Channels = e.cfg.Channels
	dc.SampleRate = e.cfg.SampleRate
	dc.PeriodSizeInFrames = uint32(e.cfg.BufferFrames)

	channels := int(e.cfg.Channels)
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			c.Capture(f32Samples(input), channels)
		},
	}

	dev, err := malgo.InitDevice(e.ctx.Context, dc, callbacks)
	if err != nil {
		return err
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return err
	}
	e.devices = append(e.devices, dev)
	log.Info("audio device started", "source", c.Name(), "sampleRate", dev.SampleRate(), "channels", dev.CaptureChannels())
	return nil
}

// Close stops every device and frees the context.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	for _, dev := range e.devices {
		_ = dev.Stop()
		dev.Uninit()
	}
	e.devices = nil
	_ = e.ctx.Uninit()
	e.ctx.Free()
	return nil
}

// Devices lists capture and playback devices known to miniaudio.
func Devices() ([]Info, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	var out []Info
	for _, kind := range []struct {
		t    malgo.DeviceType
		name string
	}{{malgo.Capture, "capture"}, {malgo.Playback, "playback"}} {
		infos, err := ctx.Devices(kind.t)
		if err != nil {
			return nil, fmt.Errorf("list %s devices: %w", kind.name, err)
		}
		for i := range infos {
			out = append(out, Info{
				Kind:    kind.name,
				Name:    infos[i].Name(),
				ID:      infos[i].ID.String(),
				Default: infos[i].IsDefault != 0,
			})
		}
	}
	return out, nil
}
