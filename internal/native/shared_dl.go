//go:build darwin || freebsd || linux

package native

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// sharedLibrary calls a vendor encoder through its C ABI:
//
//	void*    CreateRecorder(void);
//	void     DestroyRecorder(void* ctx);
//	bool     StartRecorder(void* ctx, const char* path, const TrackInfo* tracks, uint32_t count);
//	void     StopRecorder(void* ctx);
//	uint32_t GetAudioTrackFrameSize(void* ctx, uint32_t track);
//	bool     OpenMicrophone(void* ctx, uint32_t sampleRate, uint32_t frameSize);
//	bool     StartMicrophone(void* ctx);
//	void     CloseMicrophone(void* ctx);
//	float    GetMicrophoneVolume(void* ctx);
//	uint32_t RegisterTexture(void* ctx, void* pixels, uint32_t width, uint32_t height, uint32_t stride);
//	void     ReleaseTexture(void* ctx, uint32_t id);
//	bool     SubmitFrame(const FrameSubmission* frame);
type sharedLibrary struct {
	path   string
	handle uintptr

	createRecorder         func() uintptr
	destroyRecorder        func(ctx uintptr)
	startRecorder          func(ctx uintptr, path string, tracks unsafe.Pointer, count uint32) bool
	stopRecorder           func(ctx uintptr)
	getAudioTrackFrameSize func(ctx uintptr, track uint32) uint32
	openMicrophone         func(ctx uintptr, sampleRate, frameSize uint32) bool
	startMicrophone        func(ctx uintptr) bool
	closeMicrophone        func(ctx uintptr)
	getMicrophoneVolume    func(ctx uintptr) float32
	registerTexture        func(ctx uintptr, pixels unsafe.Pointer, width, height, stride uint32) uint32
	releaseTexture         func(ctx uintptr, id uint32)
	submitFrame            func(frame unsafe.Pointer) bool

	mu      sync.Mutex
	pinned  map[uint32]*runtime.Pinner
	micOpen map[Session]bool
}

func openShared(path string) (Library, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("load encoder library %s: %w", path, err)
	}
	l := &sharedLibrary{
		path:    path,
		handle:  handle,
		pinned:  make(map[uint32]*runtime.Pinner),
		micOpen: make(map[Session]bool),
	}

	for name, fn := range map[string]any{
		"CreateRecorder":         &l.createRecorder,
		"DestroyRecorder":        &l.destroyRecorder,
		"StartRecorder":          &l.startRecorder,
		"StopRecorder":           &l.stopRecorder,
		"GetAudioTrackFrameSize": &l.getAudioTrackFrameSize,
		"OpenMicrophone":         &l.openMicrophone,
		"StartMicrophone":        &l.startMicrophone,
		"CloseMicrophone":        &l.closeMicrophone,
		"GetMicrophoneVolume":    &l.getMicrophoneVolume,
		"RegisterTexture":        &l.registerTexture,
		"ReleaseTexture":         &l.releaseTexture,
		"SubmitFrame":            &l.submitFrame,
	} {
		if err := register(fn, handle, name); err != nil {
			_ = purego.Dlclose(handle)
			return nil, err
		}
	}

	log.Info("encoder library loaded", "path", path)
	return l, nil
}

// register wraps RegisterLibFunc, which panics on a missing symbol.
func register(fn any, handle uintptr, name string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("encoder library missing %s: %v", name, r)
		}
	}()
	purego.RegisterLibFunc(fn, handle, name)
	return nil
}

func (l *sharedLibrary) Name() string      { return l.path }
func (l *sharedLibrary) Extension() string { return "mp4" }

func (l *sharedLibrary) CreateSession() (Session, error) {
	ctx := l.createRecorder()
	if ctx == 0 {
		return 0, fmt.Errorf("CreateRecorder returned a null context")
	}
	return Session(ctx), nil
}

func (l *sharedLibrary) DestroySession(s Session) {
	l.mu.Lock()
	delete(l.micOpen, s)
	l.mu.Unlock()
	l.destroyRecorder(uintptr(s))
}

func (l *sharedLibrary) StartSession(s Session, path string, tracks []TrackInfo) error {
	packed := PackTracks(tracks)
	var pin runtime.Pinner
	defer pin.Unpin()
	var ptr unsafe.Pointer
	if len(packed) > 0 {
		ptr = unsafe.Pointer(&packed[0])
		pin.Pin(ptr)
	}
	if !l.startRecorder(uintptr(s), path, ptr, uint32(len(tracks))) {
		return ErrStartFailed
	}
	return nil
}

func (l *sharedLibrary) StopSession(s Session) error {
	l.stopRecorder(uintptr(s))
	return nil
}

func (l *sharedLibrary) AudioTrackFrameSize(s Session, track uint32) int {
	return int(l.getAudioTrackFrameSize(uintptr(s), track))
}

func (l *sharedLibrary) OpenMicrophone(s Session, sampleRate uint32) error {
	frameSize := l.getAudioTrackFrameSize(uintptr(s), 0)
	if !l.openMicrophone(uintptr(s), sampleRate, frameSize) {
		return fmt.Errorf("microphone device opening failed")
	}
	if !l.startMicrophone(uintptr(s)) {
		l.closeMicrophone(uintptr(s))
		return fmt.Errorf("microphone failed to start")
	}
	l.mu.Lock()
	l.micOpen[s] = true
	l.mu.Unlock()
	return nil
}

func (l *sharedLibrary) CloseMicrophone(s Session) {
	l.mu.Lock()
	open := l.micOpen[s]
	delete(l.micOpen, s)
	l.mu.Unlock()
	if open {
		l.closeMicrophone(uintptr(s))
	}
}

func (l *sharedLibrary) MicrophoneVolume(s Session) float32 {
	l.mu.Lock()
	open := l.micOpen[s]
	l.mu.Unlock()
	if !open {
		return 0
	}
	return l.getMicrophoneVolume(uintptr(s))
}

// BindTexture registers the source's pixel buffer with the encoder. The
// buffer stays pinned until ReleaseTexture.
func (l *sharedLibrary) BindTexture(s Session, src TextureSource) (uint32, error) {
	img := src.Image()
	if img == nil || len(img.Pix) == 0 {
		return 0, fmt.Errorf("texture has no pixels")
	}
	pin := &runtime.Pinner{}
	pin.Pin(&img.Pix[0])
	b := img.Bounds()
	id := l.registerTexture(uintptr(s), unsafe.Pointer(&img.Pix[0]), uint32(b.Dx()), uint32(b.Dy()), uint32(img.Stride))

	l.mu.Lock()
	l.pinned[id] = pin
	l.mu.Unlock()
	return id, nil
}

func (l *sharedLibrary) ReleaseTexture(s Session, id uint32) {
	l.releaseTexture(uintptr(s), id)
	l.mu.Lock()
	if pin, ok := l.pinned[id]; ok {
		pin.Unpin()
		delete(l.pinned, id)
	}
	l.mu.Unlock()
}

// SubmitFrame packs the frame into a FrameSubmission whose pointers refer to
// Go memory pinned for the duration of the call. The encoder must copy what
// it keeps.
func (l *sharedLibrary) SubmitFrame(s Session, f Frame) error {
	var pin runtime.Pinner
	defer pin.Unpin()

	textures := PackTextures(f.Textures)
	ready := packReady(f.Ready)

	audio := make([]byte, 0, len(f.Audio)*AudioTrackSize)
	for _, a := range f.Audio {
		var data uintptr
		if len(a.Samples) > 0 {
			pin.Pin(&a.Samples[0])
			data = uintptr(unsafe.Pointer(&a.Samples[0]))
		}
		audio = packAudioTrack(audio, a.TrackIndex, a.TimestampSamples, uint32(len(a.Samples)), data)
	}

	frame := appendPacked(make([]byte, 0, FrameSubmissionSize), frameSubmissionABI{
		Session:             uint64(s),
		TextureIDs:          uint64(pinnedAddr(&pin, textures)),
		TextureIDsSize:      uint32(len(f.Textures)),
		VideoTimestampMilli: uint64(f.VideoTimestamp.Milliseconds()),
		AudioTracksSize:     uint32(len(f.Audio)),
		AudioTracks:         uint64(pinnedAddr(&pin, audio)),
		ReadyFramesSize:     uint32(len(f.Ready)),
		ReadyFrames:         uint64(pinnedAddr(&pin, ready)),
	})
	pin.Pin(&frame[0])

	if !l.submitFrame(unsafe.Pointer(&frame[0])) {
		return fmt.Errorf("SubmitFrame rejected the frame")
	}
	return nil
}

func pinnedAddr(pin *runtime.Pinner, b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	pin.Pin(&b[0])
	return uintptr(unsafe.Pointer(&b[0]))
}
