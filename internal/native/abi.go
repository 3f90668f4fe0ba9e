package native

import (
	"encoding/binary"
	"fmt"
)

// TrackType identifies a track in the encoder's track table.
type TrackType uint32

const (
	TrackVideo TrackType = iota
	TrackAudio
	TrackMetadata
)

func (t TrackType) String() string {
	switch t {
	case TrackVideo:
		return "video"
	case TrackAudio:
		return "audio"
	case TrackMetadata:
		return "metadata"
	}
	return fmt.Sprintf("TrackType(%d)", uint32(t))
}

// TrackInfo describes one output track. Video tracks use Width, Height and
// Framerate; audio tracks use SampleRate and Channels.
type TrackInfo struct {
	Type       TrackType `msgpack:"type" yaml:"type"`
	Bitrate    uint32    `msgpack:"bitrate" yaml:"bitrate"`
	Width      uint32    `msgpack:"width" yaml:"width"`
	Height     uint32    `msgpack:"height" yaml:"height"`
	Framerate  uint32    `msgpack:"framerate" yaml:"framerate"`
	SampleRate uint32    `msgpack:"sampleRate" yaml:"sampleRate"`
	Channels   uint32    `msgpack:"channels" yaml:"channels"`
}

// FrameTexture binds a registered texture to the track it feeds.
type FrameTexture struct {
	ID         uint32
	TrackIndex uint32
}

// Wire layouts. Every struct crosses the native boundary sequentially with
// 1-byte packing and 64-bit pointers; binary.Append writes fields back to
// back with no padding, which is exactly that layout.

type audioTrackABI struct {
	TrackIndex       uint32
	TimestampSamples uint64
	DataSize         uint32
	Data             uint64
}

type frameSubmissionABI struct {
	Session             uint64
	TextureIDs          uint64
	TextureIDsSize      uint32
	VideoTimestampMilli uint64
	AudioTracksSize     uint32
	AudioTracks         uint64
	ReadyFramesSize     uint32
	ReadyFrames         uint64
}

// Packed sizes in bytes.
const (
	TrackInfoSize       = 28
	FrameTextureSize    = 8
	AudioTrackSize      = 24
	FrameSubmissionSize = 52
)

func appendPacked(b []byte, v any) []byte {
	out, err := binary.Append(b, binary.NativeEndian, v)
	if err != nil {
		// Only fixed-size structs are passed here.
		panic(fmt.Sprintf("native: pack %T: %v", v, err))
	}
	return out
}

// PackTracks returns the packed TrackInfo array passed to StartRecorder.
func PackTracks(tracks []TrackInfo) []byte {
	b := make([]byte, 0, len(tracks)*TrackInfoSize)
	for _, t := range tracks {
		b = appendPacked(b, t)
	}
	return b
}

// PackTextures returns the packed FrameTexture array referenced by a frame
// submission.
func PackTextures(textures []FrameTexture) []byte {
	b := make([]byte, 0, len(textures)*FrameTextureSize)
	for _, t := range textures {
		b = appendPacked(b, t)
	}
	return b
}

// packAudioTrack packs one audio track descriptor. data is the address of
// the first sample and dataSize the number of float samples.
func packAudioTrack(b []byte, track uint32, timestamp uint64, dataSize uint32, data uintptr) []byte {
	return appendPacked(b, audioTrackABI{
		TrackIndex:       track,
		TimestampSamples: timestamp,
		DataSize:         dataSize,
		Data:             uint64(data),
	})
}

// packReady encodes ready flags as one byte each.
func packReady(ready []bool) []byte {
	b := make([]byte, len(ready))
	for i, r := range ready {
		if r {
			b[i] = 1
		}
	}
	return b
}
