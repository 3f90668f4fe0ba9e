// Package recording runs the record state machine: it paces camera
// renders, mixes audio into every encoded frame and drives the recorder
// through start, stop and the hand-off to the gallery.
package recording

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lck-sdk/recorder/internal/audio"
	"github.com/lck-sdk/recorder/internal/camera"
	"github.com/lck-sdk/recorder/internal/hub"
	"github.com/lck-sdk/recorder/internal/logging"
	"github.com/lck-sdk/recorder/internal/native"
	"github.com/lck-sdk/recorder/internal/recorder"
)

var log = logging.L("recording")

// DefaultCooldown separates any two start/stop transitions.
const DefaultCooldown = 250 * time.Millisecond

// State of the record state machine.
type State int

const (
	Idle State = iota
	PendingStart
	Recording
	PendingStop
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case PendingStart:
		return "pending_start"
	case Recording:
		return "recording"
	case PendingStop:
		return "pending_stop"
	}
	return "unknown"
}

// StopReason records why a recording ended.
type StopReason int

const (
	UserRequested StopReason = iota
	LowStorageSpace
	ApplicationLifecycle
	EncoderFailure
)

func (r StopReason) String() string {
	switch r {
	case UserRequested:
		return "user_requested"
	case LowStorageSpace:
		return "low_storage_space"
	case ApplicationLifecycle:
		return "application_lifecycle"
	case EncoderFailure:
		return "encoder_failure"
	}
	return "unknown"
}

// Mixer is the audio the orchestrator records.
type Mixer interface {
	EnableCapture()
	DisableCapture()
	Mix(frameSize int) ([]float32, error)
	SetMicrophoneOpen(open bool) error
	SetGameAudioMute(muted bool)
	IsGameAudioMuted() bool
	MicrophoneLevel() float32
	GameLevel() float32
}

// Encoder is the recorder session the orchestrator drives.
type Encoder interface {
	Start(tracks []native.TrackInfo, surface native.TextureSource, firstVideoTrack int, cb func(error)) error
	Stop(cb func(error)) error
	EncodeFrame(elapsed time.Duration, ready []bool, audio []native.AudioPayload) bool
	AudioFrameSize() int
	NativeMicrophoneVolume() float32
	Busy() bool
	Tick(now time.Time)
	OnSaved(fn func(recorder.Saved, error))
	Close(ctx context.Context)
}

// StorageWatcher guards recordings against a full disk.
type StorageWatcher interface {
	HasEnoughFreeStorage() bool
	OnLowSpace(fn func(free uint64))
	Tick(now time.Time)
}

// CameraTrack describes the video track. It can only change while Idle.
type CameraTrack struct {
	Width     uint32
	Height    uint32
	Bitrate   uint32
	Framerate uint32
}

// AudioTrack describes the mixed audio track.
type AudioTrack struct {
	SampleRate uint32
	Channels   uint32
	Bitrate    uint32
}

// Saved is delivered once a finished recording reached the gallery.
type Saved struct {
	FilePath string
	Duration time.Duration
}

// Callbacks receive asynchronous results. They run on the goroutine calling
// Tick. Nil callbacks are skipped.
type Callbacks struct {
	OnRecordingStarted func(err error)
	OnRecordingStopped func(reason StopReason, err error)
	OnLowStorageSpace  func(err error)
	OnRecordingSaved   func(saved Saved, err error)
}

type Options struct {
	Camera   CameraTrack
	Audio    AudioTrack
	Platform audio.Platform
	Cooldown time.Duration
	// Now defaults to time.Now. It must agree with the times passed to Tick.
	Now       func() time.Time
	Callbacks Callbacks
}

// Orchestrator owns the record state machine. Every method must be called
// from the goroutine that calls Tick.
type Orchestrator struct {
	hub      *hub.Hub
	mixer    Mixer
	rec      Encoder
	storage  StorageWatcher
	platform audio.Platform
	now      func() time.Time
	cooldown time.Duration
	cb       Callbacks

	track      CameraTrack
	audioTrack AudioTrack
	surface    *camera.Surface
	active     camera.Provider
	capturing  bool
	pacer      *Pacer
	rendered   bool

	state          State
	stopReason     StopReason
	deferredStop   *StopReason // internal stop raised while the start was in flight
	lastTransition time.Time
	lastTick       time.Time
	generation     uint64

	encoding    bool
	encodeStart time.Time
	timestamp   uint64
	stats       *Stats
	ready       [1]bool
	payload     [1]native.AudioPayload

	unsubscribe func()
}

func New(h *hub.Hub, mixer Mixer, rec Encoder, storage StorageWatcher, opts Options) *Orchestrator {
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Platform == nil {
		opts.Platform = audio.DetectHost()
	}
	if opts.Audio.SampleRate == 0 {
		opts.Audio.SampleRate = 48000
	}
	if opts.Audio.Channels == 0 {
		opts.Audio.Channels = 2
	}
	if opts.Audio.Bitrate == 0 {
		opts.Audio.Bitrate = 1 << 20
	}

	o := &Orchestrator{
		hub:            h,
		mixer:          mixer,
		rec:            rec,
		storage:        storage,
		platform:       opts.Platform,
		now:            opts.Now,
		cooldown:       opts.Cooldown,
		cb:             opts.Callbacks,
		track:          opts.Camera,
		audioTrack:     opts.Audio,
		surface:        camera.NewSurface(int(opts.Camera.Width), int(opts.Camera.Height)),
		pacer:          NewPacer(opts.Camera.Framerate),
		lastTransition: opts.Now(),
	}

	o.unsubscribe = h.Subscribe(hub.Funcs{
		OnCameraUnregistered:  o.cameraUnregistered,
		OnMonitorRegistered:   o.bindMonitor,
		OnMonitorUnregistered: func(m camera.Monitor) { m.SetSurface(nil) },
		OnLifecycle:           o.lifecycle,
	})
	storage.OnLowSpace(o.lowStorage)
	rec.OnSaved(o.saved)

	o.initTrack()
	return o
}

// Surface is the render target cameras draw into and monitors display.
func (o *Orchestrator) Surface() *camera.Surface { return o.surface }

// initTrack activates the current or first registered camera and points
// every monitor at the surface.
func (o *Orchestrator) initTrack() {
	id := ""
	if o.active != nil {
		id = o.active.ID()
	} else if ids := o.hub.CameraIDs(); len(ids) > 0 {
		id = ids[0]
	}
	if id != "" {
		if err := o.ActivateCamera(id, ""); err != nil {
			log.Warn("failed to activate camera", "camera", id, "error", err)
		}
	}
	for _, m := range o.hub.Monitors() {
		o.bindMonitor(m)
	}
}

func (o *Orchestrator) bindMonitor(m camera.Monitor) {
	m.SetSurface(o.surface)
	o.capturing = true
}

func (o *Orchestrator) cameraUnregistered(c camera.Provider) {
	if o.active != nil && o.active.ID() == c.ID() {
		o.StopActiveCamera()
	}
}

func (o *Orchestrator) lifecycle(ev hub.Lifecycle) {
	if o.state != Recording {
		return
	}
	if ev == hub.Pause || ev == hub.Quit {
		o.requestStop(ApplicationLifecycle)
	}
}

func (o *Orchestrator) lowStorage(free uint64) {
	if o.state == Recording {
		o.requestStop(LowStorageSpace)
	}
	if o.cb.OnLowStorageSpace != nil {
		o.cb.OnLowStorageSpace(newError(CodeNotEnoughStorage, "low storage space, %d MB free", free>>20))
	}
}

func (o *Orchestrator) saved(s recorder.Saved, err error) {
	if o.cb.OnRecordingSaved == nil {
		return
	}
	if err != nil {
		o.cb.OnRecordingSaved(Saved{Duration: s.Duration}, &Error{Code: CodeGalleryCopyFailure, Err: err})
		return
	}
	o.cb.OnRecordingSaved(Saved{FilePath: s.FilePath, Duration: s.Duration}, nil)
}

// ActivateCamera makes cameraID the active camera and, when monitorID is
// set, binds that monitor to the surface.
func (o *Orchestrator) ActivateCamera(cameraID, monitorID string) error {
	c, ok := o.hub.Camera(cameraID)
	if !ok {
		return newError(CodeCameraIDNotFound, "camera id %q not found, available cameras: [%s]",
			cameraID, strings.Join(o.hub.CameraIDs(), ", "))
	}
	if o.active != nil {
		o.active.Deactivate()
	}
	o.active = c
	c.Activate(o.surface)

	if monitorID == "" {
		return nil
	}
	m, ok := o.hub.Monitor(monitorID)
	if !ok {
		return newError(CodeMonitorIDNotFound, "monitor id %q not found, available monitors: [%s]",
			monitorID, strings.Join(o.hub.MonitorIDs(), ", "))
	}
	o.bindMonitor(m)
	return nil
}

func (o *Orchestrator) StopActiveCamera() {
	if o.active != nil {
		o.active.Deactivate()
		o.active = nil
	}
	o.capturing = false
}

// ActiveCamera returns the active camera id, or "".
func (o *Orchestrator) ActiveCamera() string {
	if o.active == nil {
		return ""
	}
	return o.active.ID()
}

func (o *Orchestrator) SetTrackResolution(width, height uint32) error {
	if o.state != Idle {
		return newError(CodeCantEditWhileRecording, "can't change resolution while recording")
	}
	if width == 0 || height == 0 {
		return newError(CodeUnknown, "invalid resolution %dx%d", width, height)
	}
	o.track.Width, o.track.Height = width, height
	o.surface.Resize(int(width), int(height))
	o.initTrack()
	return nil
}

func (o *Orchestrator) SetTrackFramerate(fps uint32) error {
	if o.state != Idle {
		return newError(CodeCantEditWhileRecording, "can't change framerate while recording")
	}
	if fps == 0 {
		return newError(CodeUnknown, "framerate must be positive")
	}
	o.track.Framerate = fps
	o.pacer.SetFramerate(fps)
	return nil
}

func (o *Orchestrator) SetTrackBitrate(bitrate uint32) error {
	if o.state != Idle {
		return newError(CodeCantEditWhileRecording, "can't change bitrate while recording")
	}
	o.track.Bitrate = bitrate
	return nil
}

func (o *Orchestrator) Track() CameraTrack { return o.track }

// StartRecording requests a start. It fails unless Idle or when storage is
// low; otherwise the start happens on a later Tick once the cooldown since
// the previous transition has passed.
func (o *Orchestrator) StartRecording() error {
	if o.state != Idle {
		return newError(CodeAlreadyStarted, "recording already started")
	}
	if !o.storage.HasEnoughFreeStorage() {
		return newError(CodeNotEnoughStorage, "not enough storage space")
	}
	o.state = PendingStart
	log.Debug("recording start requested")
	return nil
}

// StopRecording requests a stop. It fails unless Recording and the encoder
// has confirmed the start.
func (o *Orchestrator) StopRecording(reason StopReason) error {
	if o.state != Recording || !o.encoding {
		return newError(CodeNotCurrentlyRecording, "no recording currently in progress to stop")
	}
	o.stopReason = reason
	o.state = PendingStop
	log.Debug("recording stop requested", "reason", reason.String())
	return nil
}

// requestStop stops for an internal reason. A stop raised before the encoder
// confirmed the start is held until it does.
func (o *Orchestrator) requestStop(reason StopReason) {
	if o.state == Recording && !o.encoding {
		if o.deferredStop == nil {
			o.deferredStop = &reason
			log.Debug("stop deferred until start completes", "reason", reason.String())
		}
		return
	}
	if err := o.StopRecording(reason); err != nil {
		log.Warn("stop rejected", "reason", reason.String(), "error", err)
	}
}

// Tick advances the orchestrator to now: recorder completions, frame
// pacing, state transitions, one encode step and the storage check.
func (o *Orchestrator) Tick(now time.Time) {
	var dt time.Duration
	if !o.lastTick.IsZero() {
		dt = now.Sub(o.lastTick)
	}
	o.lastTick = now

	o.rec.Tick(now)
	o.pace(dt)
	o.advance(now)
	o.encode(now)
	o.storage.Tick(now)
}

func (o *Orchestrator) pace(dt time.Duration) {
	if o.active == nil {
		o.rendered = false
		return
	}
	if o.pacer.Advance(dt) {
		o.rendered = true
		o.active.Activate(o.surface)
	} else {
		o.rendered = false
		o.active.Deactivate()
	}
}

func (o *Orchestrator) advance(now time.Time) {
	if now.Sub(o.lastTransition) < o.cooldown || o.rec.Busy() {
		return
	}
	switch o.state {
	case PendingStart:
		o.doStart(now)
	case PendingStop:
		o.doStop(now)
	}
}

func (o *Orchestrator) tracks() []native.TrackInfo {
	return []native.TrackInfo{
		{
			Type:       native.TrackAudio,
			Bitrate:    o.audioTrack.Bitrate,
			SampleRate: o.audioTrack.SampleRate,
			Channels:   o.audioTrack.Channels,
		},
		{
			Type:      native.TrackVideo,
			Bitrate:   o.track.Bitrate,
			Width:     o.track.Width,
			Height:    o.track.Height,
			Framerate: o.track.Framerate,
		},
	}
}

func (o *Orchestrator) doStart(now time.Time) {
	o.mixer.EnableCapture()
	o.generation++
	gen := o.generation

	tracks := o.tracks()
	if err := o.rec.Start(tracks, o.surface, len(tracks)-1, func(err error) { o.started(gen, err) }); err != nil {
		o.mixer.DisableCapture()
		o.setState(Idle, now)
		o.notifyStarted(&Error{Code: CodeRecordingError, Err: err})
		return
	}
	o.setState(Recording, now)
}

func (o *Orchestrator) started(gen uint64, err error) {
	if gen != o.generation {
		log.Warn("ignoring stale start result", "generation", gen)
		return
	}
	deferred := o.deferredStop
	o.deferredStop = nil
	if err != nil {
		// The session never started; nothing to stop.
		o.mixer.DisableCapture()
		o.setState(Idle, o.now())
		o.notifyStarted(&Error{Code: CodeRecordingError, Err: err})
		return
	}

	start := o.now()
	o.encoding = true
	o.encodeStart = start
	o.timestamp = 0
	o.stats = newStats(start)
	o.notifyStarted(nil)

	switch {
	case deferred != nil:
		o.requestStop(*deferred)
	case !o.storage.HasEnoughFreeStorage():
		o.requestStop(LowStorageSpace)
	}
}

func (o *Orchestrator) encode(now time.Time) {
	if !o.encoding {
		return
	}

	samples, err := o.mixer.Mix(o.rec.AudioFrameSize())
	if err != nil && !errors.Is(err, audio.ErrNoSources) {
		log.Warn("audio mix failed", "error", err)
	}

	o.payload[0] = native.AudioPayload{TrackIndex: 0, TimestampSamples: o.timestamp, Samples: samples}
	o.ready[0] = o.rendered
	if !o.rec.EncodeFrame(now.Sub(o.encodeStart), o.ready[:], o.payload[:]) {
		o.fail(now)
		return
	}
	o.stats.RecordFrame(o.rendered, len(samples))
	o.timestamp += uint64(len(samples)) / uint64(o.audioTrack.Channels)
}

// fail tears the session down after a rejected frame and forces Idle.
func (o *Orchestrator) fail(now time.Time) {
	log.Error("frame submission failed, stopping recording")
	o.stopReason = EncoderFailure
	o.teardown(now, func(error) {})
	o.notifyStopped(EncoderFailure, newError(CodeRecordingError, "frame submission failed"))
}

func (o *Orchestrator) doStop(now time.Time) {
	reason := o.stopReason
	o.teardown(now, func(err error) {
		if err != nil {
			o.notifyStopped(reason, &Error{Code: CodeRecordingError, Err: err})
			return
		}
		o.notifyStopped(reason, nil)
	})
}

// teardown stops encoding and audio capture, asks the recorder to stop and
// moves to Idle. cb receives the recorder's stop result.
func (o *Orchestrator) teardown(now time.Time, cb func(error)) {
	o.logStats(now)
	o.encoding = false
	o.mixer.DisableCapture()
	o.setState(Idle, now)
	if err := o.rec.Stop(cb); err != nil {
		cb(err)
	}
}

func (o *Orchestrator) logStats(now time.Time) {
	if o.stats == nil {
		return
	}
	snap := o.stats.Snapshot(now)
	log.Info("recording finished",
		logging.KeyDurationMs, snap.Duration.Milliseconds(),
		"encodedFrames", snap.FramesEncoded,
		"renderedFrames", snap.FramesRendered,
		"stopReason", o.stopReason.String(),
		"targetFramerate", o.track.Framerate,
		"targetBitrate", o.track.Bitrate,
		"targetResolution", fmt.Sprintf("%dx%d", o.track.Width, o.track.Height),
		"actualFramerate", fmt.Sprintf("%.2f", snap.ActualFramerate),
		"videoFramerate", fmt.Sprintf("%.2f", snap.VideoFramerate),
	)
}

func (o *Orchestrator) setState(s State, now time.Time) {
	if o.state != s {
		log.Debug("recording state changed", "from", o.state.String(), "to", s.String())
	}
	o.state = s
	o.lastTransition = now
}

func (o *Orchestrator) notifyStarted(err error) {
	if err != nil {
		log.Error("recording start failed", "error", err)
	}
	if o.cb.OnRecordingStarted != nil {
		o.cb.OnRecordingStarted(err)
	}
}

func (o *Orchestrator) notifyStopped(reason StopReason, err error) {
	if o.cb.OnRecordingStopped != nil {
		o.cb.OnRecordingStopped(reason, err)
	}
}

func (o *Orchestrator) State() State { return o.state }

// IsRecording reports whether a session was started and not yet stopped.
func (o *Orchestrator) IsRecording() bool {
	return o.state == Recording || o.state == PendingStop
}

// IsCapturing reports whether a monitor is displaying the surface.
func (o *Orchestrator) IsCapturing() bool { return o.capturing }

// Stats returns the current recording's counters, or nil before the first
// recording.
func (o *Orchestrator) Stats() *Stats { return o.stats }

// RecordingDuration is the time since the encoder started. It is 0 while
// a start is pending and fails when Idle.
func (o *Orchestrator) RecordingDuration() (time.Duration, error) {
	if o.state == Idle {
		return 0, newError(CodeNotCurrentlyRecording, "recording has not been started")
	}
	if !o.encoding {
		return 0, nil
	}
	return o.now().Sub(o.encodeStart), nil
}

// MicrophoneOutputLevel reads the encoder's microphone on platforms where
// it owns the microphone, the mixer's otherwise.
func (o *Orchestrator) MicrophoneOutputLevel() float32 {
	if o.platform.NativeMicrophone() {
		return o.rec.NativeMicrophoneVolume()
	}
	return o.mixer.MicrophoneLevel()
}

func (o *Orchestrator) GameOutputLevel() float32 { return o.mixer.GameLevel() }

func (o *Orchestrator) SetMicrophoneCaptureActive(active bool) error {
	if err := o.mixer.SetMicrophoneOpen(active); err != nil {
		if errors.Is(err, audio.ErrMicrophonePermission) {
			return &Error{Code: CodePermissionDenied, Err: err}
		}
		return &Error{Code: CodeUnknown, Err: err}
	}
	return nil
}

func (o *Orchestrator) SetGameAudioMute(muted bool) { o.mixer.SetGameAudioMute(muted) }

func (o *Orchestrator) IsGameAudioMute() bool { return o.mixer.IsGameAudioMuted() }

// Close stops a running recording, detaches from the hub and waits for the
// recorder's background work.
func (o *Orchestrator) Close(ctx context.Context) {
	if o.IsRecording() && o.encoding {
		o.stopReason = ApplicationLifecycle
		o.teardown(o.now(), func(err error) { o.notifyStopped(ApplicationLifecycle, err) })
	}
	o.generation++
	o.StopActiveCamera()
	o.unsubscribe()
	o.rec.Close(ctx)
}
