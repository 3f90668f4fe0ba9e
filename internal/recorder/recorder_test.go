package recorder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lck-sdk/recorder/internal/camera"
	"github.com/lck-sdk/recorder/internal/gallery"
	"github.com/lck-sdk/recorder/internal/health"
	"github.com/lck-sdk/recorder/internal/native"
)

func testTracks() []native.TrackInfo {
	return []native.TrackInfo{
		{Type: native.TrackAudio, Bitrate: 1 << 20, SampleRate: 48000, Channels: 2},
		{Type: native.TrackVideo, Bitrate: 5 << 20, Width: 64, Height: 36, Framerate: 30},
	}
}

// tickUntil ticks r until cond holds or the deadline passes.
func tickUntil(t *testing.T, r *Recorder, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached before deadline")
		}
		r.Tick(time.Now())
		time.Sleep(time.Millisecond)
	}
}

func newFileRecorder(t *testing.T) (*Recorder, string) {
	t.Helper()
	videos := t.TempDir()
	r := New(native.NewFileLibrary(), gallery.NewLocalAlbum(videos), Options{
		TempDir:      t.TempDir(),
		Prefix:       "MyGame",
		Album:        "MyGameAlbum",
		PollInterval: 5 * time.Millisecond,
		Health:       health.NewMonitor(),
	})
	t.Cleanup(func() { r.Close(context.Background()) })
	return r, videos
}

func TestOutputPath(t *testing.T) {
	r := New(native.NewFileLibrary(), nil, Options{TempDir: "/tmp/lck", Prefix: "MyGame"})
	at := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	assert.Equal(t, filepath.Join("/tmp/lck", "MyGame_2024-03-09_14-05-07.lckrec"), r.OutputPath(at))
}

func TestStartEncodeStopSave(t *testing.T) {
	r, videos := newFileRecorder(t)
	surface := camera.NewSurface(64, 36)
	camera.NewTestPattern("cam").Activate(surface)

	assert.False(t, r.EncodeFrame(0, []bool{true}, nil), "no session yet")

	var startErr error
	started := false
	require.NoError(t, r.Start(testTracks(), surface, 1, func(err error) { startErr, started = err, true }))
	assert.True(t, r.Busy())
	assert.ErrorIs(t, r.Start(testTracks(), surface, 1, nil), ErrBusy)

	tickUntil(t, r, func() bool { return started })
	require.NoError(t, startErr)
	assert.True(t, r.Active())
	assert.Equal(t, 2048, r.AudioFrameSize())
	assert.NotEmpty(t, r.SessionID())
	assert.ErrorIs(t, r.Start(testTracks(), surface, 1, nil), ErrActive)

	samples := make([]float32, r.AudioFrameSize())
	for i := 0; i < 3; i++ {
		ok := r.EncodeFrame(time.Duration(i)*33*time.Millisecond, []bool{i != 1},
			[]native.AudioPayload{{TrackIndex: 0, TimestampSamples: uint64(i * 1024), Samples: samples}})
		require.True(t, ok)
	}

	var saved Saved
	var saveErr error
	gotSaved := false
	r.OnSaved(func(s Saved, err error) { saved, saveErr, gotSaved = s, err, true })

	stopped := false
	require.NoError(t, r.Stop(func(err error) {
		assert.NoError(t, err)
		stopped = true
	}))
	assert.False(t, r.EncodeFrame(0, []bool{true}, nil), "stopping session takes no frames")

	tickUntil(t, r, func() bool { return gotSaved })
	assert.True(t, stopped)
	require.NoError(t, saveErr)
	assert.Equal(t, "MyGameAlbum", filepath.Base(filepath.Dir(saved.FilePath)))
	assert.Equal(t, videos, filepath.Dir(filepath.Dir(saved.FilePath)))
	assert.GreaterOrEqual(t, saved.Duration, time.Duration(0))
	assert.False(t, r.Pending())

	sum, err := native.ReadFile(saved.FilePath)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.VideoFrames)
	assert.Equal(t, 3*2048, sum.AudioSamples)
}

func TestStopWithoutSession(t *testing.T) {
	r, _ := newFileRecorder(t)
	assert.ErrorIs(t, r.Stop(nil), ErrNotActive)
}

func TestStartRejectsBadVideoTrack(t *testing.T) {
	r, _ := newFileRecorder(t)
	assert.ErrorIs(t, r.Start(testTracks(), camera.NewSurface(1, 1), 2, nil), ErrNoVideoTrack)
}

// fakeLibrary is a native.Library whose calls can be made to fail or panic.
type fakeLibrary struct {
	mu         sync.Mutex
	startErr   error
	startPanic bool
	stopErr    error
	submitErr  error
	destroyed  int
	micOpened  []uint32
	micClosed  int
	volume     float32
	path       string
}

func (f *fakeLibrary) Name() string                           { return "fake" }
func (f *fakeLibrary) Extension() string                      { return "mp4" }
func (f *fakeLibrary) CreateSession() (native.Session, error) { return 7, nil }

func (f *fakeLibrary) DestroySession(native.Session) {
	f.mu.Lock()
	f.destroyed++
	f.mu.Unlock()
}

func (f *fakeLibrary) StartSession(_ native.Session, path string, _ []native.TrackInfo) error {
	if f.startPanic {
		panic("encoder crashed")
	}
	if f.startErr != nil {
		return f.startErr
	}
	f.path = path
	return os.WriteFile(path, []byte("media"), 0o644)
}

func (f *fakeLibrary) StopSession(native.Session) error               { return f.stopErr }
func (f *fakeLibrary) AudioTrackFrameSize(native.Session, uint32) int { return 1024 }

func (f *fakeLibrary) OpenMicrophone(_ native.Session, rate uint32) error {
	f.mu.Lock()
	f.micOpened = append(f.micOpened, rate)
	f.mu.Unlock()
	return nil
}

func (f *fakeLibrary) CloseMicrophone(native.Session)          { f.micClosed++ }
func (f *fakeLibrary) MicrophoneVolume(native.Session) float32 { return f.volume }
func (f *fakeLibrary) BindTexture(native.Session, native.TextureSource) (uint32, error) {
	return 3, nil
}
func (f *fakeLibrary) ReleaseTexture(native.Session, uint32)          {}
func (f *fakeLibrary) SubmitFrame(native.Session, native.Frame) error { return f.submitErr }

func newFakeRecorder(t *testing.T, lib *fakeLibrary, sink gallery.Sink) *Recorder {
	t.Helper()
	r := New(lib, sink, Options{TempDir: t.TempDir(), Prefix: "Clip", PollInterval: time.Millisecond})
	t.Cleanup(func() { r.Close(context.Background()) })
	return r
}

func startSync(t *testing.T, r *Recorder) error {
	t.Helper()
	var got error
	done := false
	require.NoError(t, r.Start(testTracks(), camera.NewSurface(4, 4), 1, func(err error) { got, done = err, true }))
	tickUntil(t, r, func() bool { return done })
	return got
}

func TestStartFailureIsReportedThroughCallback(t *testing.T) {
	lib := &fakeLibrary{startErr: errors.New("no encoder")}
	r := newFakeRecorder(t, lib, gallery.NewLocalAlbum(t.TempDir()))

	err := startSync(t, r)
	assert.ErrorIs(t, err, ErrRecording)
	assert.ErrorContains(t, err, "no encoder")
	assert.False(t, r.Active())
	assert.False(t, r.Busy())
	assert.Equal(t, 1, lib.destroyed, "failed session is destroyed")
}

func TestStartPanicIsRecovered(t *testing.T) {
	lib := &fakeLibrary{startPanic: true}
	r := newFakeRecorder(t, lib, gallery.NewLocalAlbum(t.TempDir()))

	err := startSync(t, r)
	assert.ErrorIs(t, err, ErrRecording)
	assert.ErrorContains(t, err, "panic")
}

func TestSubmitFailureReturnsFalse(t *testing.T) {
	lib := &fakeLibrary{submitErr: errors.New("encoder gone")}
	r := newFakeRecorder(t, lib, gallery.NewLocalAlbum(t.TempDir()))
	require.NoError(t, startSync(t, r))
	assert.False(t, r.EncodeFrame(0, []bool{true}, nil))
}

func TestStopFailureSkipsHandoff(t *testing.T) {
	lib := &fakeLibrary{stopErr: errors.New("flush failed")}
	r := newFakeRecorder(t, lib, gallery.NewLocalAlbum(t.TempDir()))
	require.NoError(t, startSync(t, r))

	var stopErr error
	done := false
	require.NoError(t, r.Stop(func(err error) { stopErr, done = err, true }))
	tickUntil(t, r, func() bool { return done })
	assert.ErrorIs(t, stopErr, ErrRecording)
	assert.False(t, r.Pending())
	assert.Equal(t, 1, lib.destroyed)
}

type failingSink struct{}

func (failingSink) Name() string { return "failing" }
func (failingSink) Save(context.Context, string, string) (string, error) {
	return "", errors.New("album unavailable")
}

func TestGalleryFailureIsReported(t *testing.T) {
	lib := &fakeLibrary{}
	r := newFakeRecorder(t, lib, failingSink{})
	require.NoError(t, startSync(t, r))

	var saveErr error
	done := false
	r.OnSaved(func(_ Saved, err error) { saveErr, done = err, true })
	require.NoError(t, r.Stop(nil))
	tickUntil(t, r, func() bool { return done })
	assert.ErrorIs(t, saveErr, ErrGalleryCopy)
}

func TestMissingOutputFailsHandoff(t *testing.T) {
	lib := &fakeLibrary{}
	r := newFakeRecorder(t, lib, gallery.NewLocalAlbum(t.TempDir()))
	require.NoError(t, startSync(t, r))
	require.NoError(t, os.Remove(lib.path))

	var saveErr error
	done := false
	r.OnSaved(func(_ Saved, err error) { saveErr, done = err, true })
	require.NoError(t, r.Stop(nil))
	tickUntil(t, r, func() bool { return done })
	assert.ErrorIs(t, saveErr, ErrGalleryCopy)
	assert.ErrorIs(t, saveErr, os.ErrNotExist)
}

func TestUnreadableOutputFailsHandoff(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits not enforced")
	}
	lib := &fakeLibrary{}
	r := newFakeRecorder(t, lib, gallery.NewLocalAlbum(t.TempDir()))
	require.NoError(t, startSync(t, r))
	require.NoError(t, os.Chmod(lib.path, 0))

	var saveErr error
	done := false
	r.OnSaved(func(_ Saved, err error) { saveErr, done = err, true })
	require.NoError(t, r.Stop(nil))
	tickUntil(t, r, func() bool { return done })
	assert.ErrorIs(t, saveErr, ErrGalleryCopy)
	assert.ErrorIs(t, saveErr, os.ErrPermission)
}

func TestNativeMicrophone(t *testing.T) {
	lib := &fakeLibrary{volume: 0.5}
	r := newFakeRecorder(t, lib, gallery.NewLocalAlbum(t.TempDir()))

	assert.Equal(t, float32(0), r.NativeMicrophoneVolume())
	require.NoError(t, r.SetMicrophoneOpen(true))
	require.NoError(t, startSync(t, r))
	assert.Equal(t, []uint32{48000}, lib.micOpened, "remembered choice applied at start")
	assert.Equal(t, float32(0.5), r.NativeMicrophoneVolume())

	require.NoError(t, r.SetMicrophoneOpen(false))
	assert.Equal(t, 1, lib.micClosed)
}

func TestCloseStopsActiveSession(t *testing.T) {
	lib := &fakeLibrary{}
	r := New(lib, gallery.NewLocalAlbum(t.TempDir()), Options{TempDir: t.TempDir(), Prefix: "Clip"})
	require.NoError(t, startSync(t, r))

	r.Close(context.Background())
	assert.False(t, r.Active())
	assert.Equal(t, 1, lib.destroyed)
}
