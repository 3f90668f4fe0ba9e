package audio

import (
	"runtime"
	"sync/atomic"
)

// Platform answers the microphone questions that differ per host OS. It is
// resolved once at startup instead of being checked at every call site.
type Platform interface {
	// MicrophonePermission reports whether the user granted microphone access.
	MicrophonePermission() bool
	// DesktopMicrophone reports whether a microphone capture may be created
	// when none is registered.
	DesktopMicrophone() bool
	// NativeMicrophone reports whether the encoder library records the
	// microphone itself, in which case its level comes from the encoder.
	NativeMicrophone() bool
}

type Host struct {
	mobile     bool
	permission atomic.Bool
}

// DetectHost returns the platform for runtime.GOOS. Mobile hosts start
// without microphone permission until GrantMicrophone is called.
func DetectHost() *Host {
	p := &Host{mobile: runtime.GOOS == "android" || runtime.GOOS == "ios"}
	p.permission.Store(!p.mobile)
	return p
}

func (p *Host) MicrophonePermission() bool { return p.permission.Load() }
func (p *Host) DesktopMicrophone() bool    { return !p.mobile }
func (p *Host) NativeMicrophone() bool     { return p.mobile }

// GrantMicrophone records the result of the OS permission prompt.
func (p *Host) GrantMicrophone(granted bool) { p.permission.Store(granted) }

// StaticPlatform is a fixed answer set, used by tests and embedders that
// manage permissions themselves.
type StaticPlatform struct {
	Permission bool
	Desktop    bool
	Native     bool
}

func (p StaticPlatform) MicrophonePermission() bool { return p.Permission }
func (p StaticPlatform) DesktopMicrophone() bool    { return p.Desktop }
func (p StaticPlatform) NativeMicrophone() bool     { return p.Native }
