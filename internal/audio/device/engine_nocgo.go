//go:build !cgo

package device

import "github.com/lck-sdk/recorder/internal/audio"

// Engine is unavailable without cgo; miniaudio is a C library.
type Engine struct{}

func Open(Config, *audio.Registry) (*Engine, error) {
	return nil, ErrNotSupported
}

func (e *Engine) Close() error { return nil }

func Devices() ([]Info, error) {
	return nil, ErrNotSupported
}
