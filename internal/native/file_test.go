package native

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/lck-sdk/recorder/internal/filelock"
)

type testTexture struct{ img *image.RGBA }

func (t testTexture) Image() *image.RGBA { return t.img }

func newTestTexture() testTexture {
	img := image.NewRGBA(image.Rect(0, 0, 32, 16))
	for i := 0; i < 32; i++ {
		img.Set(i, 8, color.RGBA{R: 255, A: 255})
	}
	return testTexture{img: img}
}

func testTracks() []TrackInfo {
	return []TrackInfo{
		{Type: TrackAudio, Bitrate: 1 << 20, SampleRate: 48000, Channels: 2},
		{Type: TrackVideo, Bitrate: 5 << 20, Width: 32, Height: 16, Framerate: 30},
	}
}

func TestOpenWithoutPathUsesFileLibrary(t *testing.T) {
	lib, err := Open("")
	require.NoError(t, err)
	assert.Equal(t, "file", lib.Name())
	assert.Equal(t, "lckrec", lib.Extension())
}

func TestFileLibraryRoundTrip(t *testing.T) {
	lib := NewFileLibrary()
	path := filepath.Join(t.TempDir(), "clip.lckrec")

	s, err := lib.CreateSession()
	require.NoError(t, err)
	require.NoError(t, lib.StartSession(s, path, testTracks()))

	id, err := lib.BindTexture(s, newTestTexture())
	require.NoError(t, err)
	textures := []FrameTexture{{ID: id, TrackIndex: 1}}

	samples := make([]float32, 2048)
	for i := range samples {
		samples[i] = 0.25
	}

	frames := []struct {
		ready bool
		at    time.Duration
	}{{true, 0}, {false, 16 * time.Millisecond}, {true, 33 * time.Millisecond}}
	var ts uint64
	for _, fr := range frames {
		err := lib.SubmitFrame(s, Frame{
			Textures:       textures,
			VideoTimestamp: fr.at,
			Audio:          []AudioPayload{{TrackIndex: 0, TimestampSamples: ts, Samples: samples}},
			Ready:          []bool{fr.ready},
		})
		require.NoError(t, err)
		ts += uint64(len(samples) / 2)
	}

	assert.True(t, filelock.IsLocked(path), "output stays locked while the session writes")

	require.NoError(t, lib.StopSession(s))
	lib.ReleaseTexture(s, id)
	lib.DestroySession(s)

	assert.False(t, filelock.IsLocked(path))

	sum, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, testTracks(), sum.Header.Tracks)
	assert.Equal(t, 2, sum.VideoFrames)
	assert.Equal(t, 3*2048, sum.AudioSamples)
	assert.Equal(t, 33*time.Millisecond, sum.Duration)
}

func TestFileLibrarySubmitBeforeStartFails(t *testing.T) {
	lib := NewFileLibrary()
	s, err := lib.CreateSession()
	require.NoError(t, err)

	assert.ErrorIs(t, lib.SubmitFrame(s, Frame{}), ErrSessionClosed)
	assert.ErrorIs(t, lib.StopSession(s), ErrSessionClosed)
}

func TestFileLibraryUnknownSession(t *testing.T) {
	lib := NewFileLibrary()
	assert.ErrorIs(t, lib.StartSession(42, filepath.Join(t.TempDir(), "x"), nil), ErrUnknownSession)
}

func TestFileLibraryUnboundTexture(t *testing.T) {
	lib := NewFileLibrary()
	s, _ := lib.CreateSession()
	require.NoError(t, lib.StartSession(s, filepath.Join(t.TempDir(), "x.lckrec"), testTracks()))
	defer lib.StopSession(s)

	err := lib.SubmitFrame(s, Frame{Textures: []FrameTexture{{ID: 7, TrackIndex: 1}}, Ready: []bool{true}})
	assert.Error(t, err)
}

func TestPCM16Clamps(t *testing.T) {
	b := pcm16([]float32{0, 1, -1, 2})
	require.Len(t, b, 8)
	assert.Equal(t, []byte{0x00, 0x00, 0xff, 0x7f, 0x01, 0x80, 0xff, 0x7f}, b)
}

func TestReadFileRejectsForeignData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk")
	b, err := msgpack.Marshal(&FileHeader{Magic: "OTHER", Version: 1})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o644))

	_, err = ReadFile(path)
	assert.ErrorContains(t, err, "not a recording container")

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
