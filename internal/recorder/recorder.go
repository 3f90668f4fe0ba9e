// Package recorder owns one native encoder session at a time. Blocking
// native calls run on a single background worker; their results are handed
// back to the caller's goroutine on the next Tick.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lck-sdk/recorder/internal/gallery"
	"github.com/lck-sdk/recorder/internal/health"
	"github.com/lck-sdk/recorder/internal/logging"
	"github.com/lck-sdk/recorder/internal/native"
	"github.com/lck-sdk/recorder/internal/workerpool"
)

var log = logging.L("recorder")

// DefaultPollInterval is how often the handoff checks whether the encoder
// released the output file.
const DefaultPollInterval = 100 * time.Millisecond

// Options configures a Recorder.
type Options struct {
	TempDir    string
	Prefix     string
	DateFormat string
	Album      string

	PollInterval time.Duration
	// Now defaults to time.Now.
	Now    func() time.Time
	Health *health.Monitor
}

// Saved is the result of a finished handoff.
type Saved struct {
	FilePath string
	Duration time.Duration
}

// Recorder drives a native.Library session and the post-recording copy to
// a gallery sink. All methods except the background tasks it starts must be
// called from one goroutine, the one calling Tick.
type Recorder struct {
	lib  native.Library
	sink gallery.Sink
	opts Options

	native *workerpool.Pool
	copies *workerpool.Pool

	completionMu sync.Mutex
	completions  []func()

	// Owned by the Tick goroutine.
	session    native.Session
	hasSession bool
	active     bool
	busy       bool
	textures   []native.FrameTexture
	frameSize  int
	sessionID  string
	logger     *slog.Logger
	path       string
	startedAt  time.Time
	handoffs   []*handoff
	copying    int
	onSaved    func(Saved, error)

	micOpen       atomic.Bool
	micSampleRate uint32
}

func New(lib native.Library, sink gallery.Sink, opts Options) *Recorder {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DateFormat == "" {
		opts.DateFormat = "2006-01-02_15-04-05"
	}
	return &Recorder{
		lib:    lib,
		sink:   sink,
		opts:   opts,
		native: workerpool.New("encoder", 1, 8),
		copies: workerpool.New("gallery", 2, 8),
		logger: log,
	}
}

// OnSaved registers the handoff callback. It runs on the Tick goroutine.
func (r *Recorder) OnSaved(fn func(Saved, error)) { r.onSaved = fn }

// post queues fn to run on the next Tick.
func (r *Recorder) post(fn func()) {
	r.completionMu.Lock()
	r.completions = append(r.completions, fn)
	r.completionMu.Unlock()
}

func (r *Recorder) runCompletions() {
	r.completionMu.Lock()
	pending := r.completions
	r.completions = nil
	r.completionMu.Unlock()
	for _, fn := range pending {
		fn()
	}
}

// OutputPath returns the file the next recording will be written to.
func (r *Recorder) OutputPath(at time.Time) string {
	name := fmt.Sprintf("%s_%s.%s", r.opts.Prefix, at.Format(r.opts.DateFormat), r.lib.Extension())
	return filepath.Join(r.opts.TempDir, name)
}

// Start creates and starts a native session writing tracks, then binds
// surface to tracks[firstVideoTrack]. cb runs on the Tick goroutine with the
// outcome; an error is always wrapped in ErrRecording. A non-nil return
// means the request was rejected and cb will not run.
func (r *Recorder) Start(tracks []native.TrackInfo, surface native.TextureSource, firstVideoTrack int, cb func(error)) error {
	switch {
	case r.busy:
		return ErrBusy
	case r.active:
		return ErrActive
	case firstVideoTrack < 0 || firstVideoTrack >= len(tracks):
		return ErrNoVideoTrack
	}

	tracks = append([]native.TrackInfo(nil), tracks...)
	path := r.OutputPath(r.opts.Now())
	sessionID := uuid.NewString()
	sl := logging.WithSession(log, sessionID)

	audioTrack, sampleRate := -1, uint32(0)
	for i, t := range tracks {
		if t.Type == native.TrackAudio {
			audioTrack, sampleRate = i, t.SampleRate
			break
		}
	}
	openMic := r.micOpen.Load()

	type started struct {
		session   native.Session
		textureID uint32
		frameSize int
	}
	var res started
	var created bool

	task := func() error {
		s, err := r.lib.CreateSession()
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		res.session, created = s, true

		sl.Info("starting encoder", "path", path, "tracks", len(tracks), "library", r.lib.Name())
		if err := r.lib.StartSession(s, path, tracks); err != nil {
			return fmt.Errorf("start session: %w", err)
		}
		id, err := r.lib.BindTexture(s, surface)
		if err != nil {
			_ = r.lib.StopSession(s)
			return fmt.Errorf("bind texture: %w", err)
		}
		res.textureID = id
		if audioTrack >= 0 {
			res.frameSize = r.lib.AudioTrackFrameSize(s, uint32(audioTrack))
			if openMic {
				if err := r.lib.OpenMicrophone(s, sampleRate); err != nil {
					sl.Warn("failed to open encoder microphone", "error", err)
				}
			}
		}
		return nil
	}

	done := func(err error) {
		if err != nil && created {
			r.lib.DestroySession(res.session)
		}
		r.post(func() {
			r.busy = false
			if err != nil {
				sl.Error("failed to start recording", "error", err)
				r.report(health.Unhealthy, err.Error())
				if cb != nil {
					cb(fmt.Errorf("%w: %w", ErrRecording, err))
				}
				return
			}

			r.session, r.hasSession, r.active = res.session, true, true
			r.textures = []native.FrameTexture{{ID: res.textureID, TrackIndex: uint32(firstVideoTrack)}}
			r.frameSize = res.frameSize
			r.micSampleRate = sampleRate
			r.sessionID, r.logger, r.path = sessionID, sl, path
			r.startedAt = r.opts.Now()
			r.report(health.Healthy, "recording")
			sl.Info("recording started", "path", path, "audioFrameSize", res.frameSize)
			if cb != nil {
				cb(nil)
			}
		})
	}

	if !r.native.Go("start", task, done) {
		return ErrQueueRefused
	}
	r.busy = true
	return nil
}

// EncodeFrame submits one frame. elapsed is the video timestamp since the
// recording started. It returns false when no session is active or the
// encoder rejected the frame.
func (r *Recorder) EncodeFrame(elapsed time.Duration, ready []bool, audio []native.AudioPayload) bool {
	if !r.active {
		return false
	}
	err := r.lib.SubmitFrame(r.session, native.Frame{
		Textures:       r.textures,
		VideoTimestamp: elapsed,
		Audio:          audio,
		Ready:          ready,
	})
	if err != nil {
		r.logger.Error("frame submission failed", "error", err)
		r.report(health.Unhealthy, err.Error())
		return false
	}
	return true
}

// Stop stops the active session on the background worker, releases its
// texture bindings and destroys it. On success the output file is scheduled
// for handoff to the gallery. cb runs on the Tick goroutine.
func (r *Recorder) Stop(cb func(error)) error {
	switch {
	case r.busy:
		return ErrBusy
	case !r.active:
		return ErrNotActive
	}

	s := r.session
	textures := r.textures
	path := r.path
	sl := r.logger
	duration := r.opts.Now().Sub(r.startedAt)

	task := func() error {
		err := r.lib.StopSession(s)
		for _, t := range textures {
			r.lib.ReleaseTexture(s, t.ID)
		}
		r.lib.DestroySession(s)
		if err != nil {
			return fmt.Errorf("stop session: %w", err)
		}
		return nil
	}

	done := func(err error) {
		r.post(func() {
			r.busy = false
			r.hasSession = false
			r.textures = nil
			if err != nil {
				sl.Error("failed to stop recording", "error", err)
				r.report(health.Unhealthy, err.Error())
				if cb != nil {
					cb(fmt.Errorf("%w: %w", ErrRecording, err))
				}
				return
			}
			sl.Info("recording stopped", "path", path, logging.KeyDurationMs, duration.Milliseconds())
			r.report(health.Healthy, "idle")
			r.handoffs = append(r.handoffs, &handoff{path: path, duration: duration, log: sl})
			if cb != nil {
				cb(nil)
			}
		})
	}

	if !r.native.Go("stop", task, done) {
		return ErrQueueRefused
	}
	r.active = false
	r.busy = true
	return nil
}

// Active reports whether frames can be submitted.
func (r *Recorder) Active() bool { return r.active }

// Busy reports whether a start or stop is in flight.
func (r *Recorder) Busy() bool { return r.busy }

// Pending reports whether any start, stop or handoff is still outstanding.
func (r *Recorder) Pending() bool {
	r.completionMu.Lock()
	queued := len(r.completions)
	r.completionMu.Unlock()
	return r.busy || queued > 0 || len(r.handoffs) > 0 || r.copying > 0
}

// SessionID identifies the current or last recording in logs.
func (r *Recorder) SessionID() string { return r.sessionID }

// AudioFrameSize is the number of interleaved samples the encoder takes per
// audio frame, 0 before the first successful start.
func (r *Recorder) AudioFrameSize() int { return r.frameSize }

// NativeMicrophoneVolume is the encoder-owned microphone level.
func (r *Recorder) NativeMicrophoneVolume() float32 {
	if !r.active {
		return 0
	}
	return r.lib.MicrophoneVolume(r.session)
}

// SetMicrophoneOpen opens or closes the encoder-owned microphone. The
// choice is remembered and applied to sessions started later.
func (r *Recorder) SetMicrophoneOpen(open bool) error {
	r.micOpen.Store(open)
	if !r.active {
		return nil
	}
	if open {
		return r.lib.OpenMicrophone(r.session, r.micSampleRate)
	}
	r.lib.CloseMicrophone(r.session)
	return nil
}

// Tick runs queued completions and advances pending handoffs.
func (r *Recorder) Tick(now time.Time) {
	r.runCompletions()
	r.pollHandoffs(now)
}

// Close waits for an in-flight start or stop, stops an active session and
// drains the background workers. Handoffs that have not started copying are
// abandoned.
func (r *Recorder) Close(ctx context.Context) {
	r.settle(ctx)
	if r.active {
		if err := r.Stop(nil); err != nil {
			log.Warn("stop on close failed", "error", err)
		}
		r.settle(ctx)
	}
	r.native.Drain(ctx)
	r.copies.Drain(ctx)
	r.runCompletions()
	for _, h := range r.handoffs {
		h.log.Warn("recording handoff abandoned", "path", h.path)
	}
	r.handoffs = nil
}

// settle runs completions until no start or stop is in flight.
func (r *Recorder) settle(ctx context.Context) {
	for {
		r.runCompletions()
		if !r.busy {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Millisecond):
		}
	}
}

func (r *Recorder) report(status health.Status, msg string) {
	if r.opts.Health != nil {
		r.opts.Health.Update(health.Encoder, status, msg)
	}
}
