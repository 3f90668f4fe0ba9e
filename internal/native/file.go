package native

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/lck-sdk/recorder/internal/filelock"
)

const (
	fileMagic   = "LCKREC"
	fileVersion = 1

	// fileAudioFrameSize is 1024 stereo sample frames.
	fileAudioFrameSize = 2048
	fileJPEGQuality    = 85
)

// Packet kinds in a recording container.
const (
	PacketVideo = "v"
	PacketAudio = "a"
)

// FileHeader is the first value in a recording container.
type FileHeader struct {
	Magic   string      `msgpack:"magic"`
	Version int         `msgpack:"version"`
	Created time.Time   `msgpack:"created"`
	Tracks  []TrackInfo `msgpack:"tracks"`
}

// Packet is one encoded unit. Video payloads are JPEG images; audio payloads
// are little-endian signed 16-bit PCM.
type Packet struct {
	Kind      string `msgpack:"k"`
	Track     uint32 `msgpack:"t"`
	Timestamp uint64 `msgpack:"ts"` // milliseconds for video, sample frames for audio
	Data      []byte `msgpack:"d"`
}

// FileLibrary is a pure-Go encoder that writes a msgpack packet stream. It
// is used when no vendor library is configured and in tests.
type FileLibrary struct {
	mu       sync.Mutex
	next     Session
	sessions map[Session]*fileSession
}

type fileSession struct {
	tracks   []TrackInfo
	textures map[uint32]TextureSource
	nextTex  uint32

	file   *os.File
	w      *bufio.Writer
	enc    *msgpack.Encoder
	unlock func() error
}

func NewFileLibrary() *FileLibrary {
	return &FileLibrary{sessions: make(map[Session]*fileSession)}
}

func (l *FileLibrary) Name() string      { return "file" }
func (l *FileLibrary) Extension() string { return "lckrec" }

func (l *FileLibrary) CreateSession() (Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	l.sessions[l.next] = &fileSession{textures: make(map[uint32]TextureSource)}
	return l.next, nil
}

func (l *FileLibrary) session(s Session) (*fileSession, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fs, ok := l.sessions[s]
	if !ok {
		return nil, ErrUnknownSession
	}
	return fs, nil
}

func (l *FileLibrary) DestroySession(s Session) {
	l.mu.Lock()
	fs, ok := l.sessions[s]
	delete(l.sessions, s)
	l.mu.Unlock()
	if ok && fs.file != nil {
		log.Warn("session destroyed while still writing, closing output", "path", fs.file.Name())
		_ = fs.close()
	}
}

func (l *FileLibrary) StartSession(s Session, path string, tracks []TrackInfo) error {
	fs, err := l.session(s)
	if err != nil {
		return err
	}
	if fs.file != nil {
		return fmt.Errorf("session already started")
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	unlock, err := filelock.Lock(f)
	if err != nil && !errors.Is(err, filelock.ErrUnsupported) {
		f.Close()
		return fmt.Errorf("lock output: %w", err)
	}

	fs.file = f
	fs.unlock = unlock
	fs.w = bufio.NewWriterSize(f, 256<<10)
	fs.enc = msgpack.NewEncoder(fs.w)
	fs.tracks = append([]TrackInfo(nil), tracks...)

	header := FileHeader{Magic: fileMagic, Version: fileVersion, Created: time.Now().UTC(), Tracks: fs.tracks}
	if err := fs.enc.Encode(&header); err != nil {
		_ = fs.close()
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

func (l *FileLibrary) StopSession(s Session) error {
	fs, err := l.session(s)
	if err != nil {
		return err
	}
	if fs.file == nil {
		return ErrSessionClosed
	}
	return fs.close()
}

func (fs *fileSession) close() error {
	var errs []error
	if err := fs.w.Flush(); err != nil {
		errs = append(errs, err)
	}
	if err := fs.file.Sync(); err != nil {
		errs = append(errs, err)
	}
	if fs.unlock != nil {
		if err := fs.unlock(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := fs.file.Close(); err != nil {
		errs = append(errs, err)
	}
	fs.file, fs.w, fs.enc, fs.unlock = nil, nil, nil, nil
	return errors.Join(errs...)
}

func (l *FileLibrary) AudioTrackFrameSize(Session, uint32) int { return fileAudioFrameSize }

func (l *FileLibrary) OpenMicrophone(Session, uint32) error {
	return errors.New("file encoder has no microphone")
}
func (l *FileLibrary) CloseMicrophone(Session)          {}
func (l *FileLibrary) MicrophoneVolume(Session) float32 { return 0 }

func (l *FileLibrary) BindTexture(s Session, src TextureSource) (uint32, error) {
	fs, err := l.session(s)
	if err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fs.nextTex++
	fs.textures[fs.nextTex] = src
	return fs.nextTex, nil
}

func (l *FileLibrary) ReleaseTexture(s Session, id uint32) {
	fs, err := l.session(s)
	if err != nil {
		return
	}
	l.mu.Lock()
	delete(fs.textures, id)
	l.mu.Unlock()
}

// SubmitFrame writes a video packet for every texture whose ready flag is
// set, then one audio packet per non-empty audio payload.
func (l *FileLibrary) SubmitFrame(s Session, f Frame) error {
	fs, err := l.session(s)
	if err != nil {
		return err
	}
	if fs.enc == nil {
		return ErrSessionClosed
	}

	for i, tex := range f.Textures {
		if i >= len(f.Ready) || !f.Ready[i] {
			continue
		}
		l.mu.Lock()
		src := fs.textures[tex.ID]
		l.mu.Unlock()
		if src == nil {
			return fmt.Errorf("texture %d not bound", tex.ID)
		}
		img := src.Image()
		if img == nil {
			continue
		}
		data, err := encodeJPEG(img, fileJPEGQuality)
		if err != nil {
			return fmt.Errorf("encode video frame: %w", err)
		}
		pkt := Packet{Kind: PacketVideo, Track: tex.TrackIndex, Timestamp: uint64(f.VideoTimestamp.Milliseconds()), Data: data}
		if err := fs.enc.Encode(&pkt); err != nil {
			return fmt.Errorf("write video packet: %w", err)
		}
	}

	for _, a := range f.Audio {
		if len(a.Samples) == 0 {
			continue
		}
		pkt := Packet{Kind: PacketAudio, Track: a.TrackIndex, Timestamp: a.TimestampSamples, Data: pcm16(a.Samples)}
		if err := fs.enc.Encode(&pkt); err != nil {
			return fmt.Errorf("write audio packet: %w", err)
		}
	}
	return nil
}

func pcm16(samples []float32) []byte {
	out := make([]byte, 0, len(samples)*2)
	for _, s := range samples {
		v := math.Round(float64(max(-1, min(1, s))) * math.MaxInt16)
		out = binary.LittleEndian.AppendUint16(out, uint16(int16(v)))
	}
	return out
}

// Summary describes a recording container.
type Summary struct {
	Header       FileHeader    `yaml:"header"`
	VideoFrames  int           `yaml:"videoFrames"`
	AudioSamples int           `yaml:"audioSamples"`
	Duration     time.Duration `yaml:"duration"`
}

// ReadFile decodes a container written by FileLibrary.
func ReadFile(path string) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := msgpack.NewDecoder(bufio.NewReader(f))
	var sum Summary
	if err := dec.Decode(&sum.Header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if sum.Header.Magic != fileMagic {
		return nil, fmt.Errorf("not a recording container")
	}

	var lastVideo uint64
	for {
		var pkt Packet
		if err := dec.Decode(&pkt); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read packet: %w", err)
		}
		switch pkt.Kind {
		case PacketVideo:
			sum.VideoFrames++
			lastVideo = pkt.Timestamp
		case PacketAudio:
			sum.AudioSamples += len(pkt.Data) / 2
		}
	}
	sum.Duration = time.Duration(lastVideo) * time.Millisecond
	return &sum, nil
}
