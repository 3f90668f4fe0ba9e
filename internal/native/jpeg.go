package native

import (
	"bytes"
	"image"
	"image/jpeg"
	"sync"
)

// bufferPool pools bytes.Buffer instances for JPEG encoding.
var bufferPool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, 64*1024))
	},
}

func getBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

func putBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 2<<20 {
		return // don't pool oversized buffers
	}
	bufferPool.Put(buf)
}

// encodeJPEG encodes img with quality clamped to 1-100 and returns a copy of
// the encoded bytes.
func encodeJPEG(img *image.RGBA, quality int) ([]byte, error) {
	quality = min(max(quality, 1), 100)

	buf := getBuffer()
	defer putBuffer(buf)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return bytes.Clone(buf.Bytes()), nil
}
