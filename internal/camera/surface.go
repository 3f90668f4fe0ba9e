// Package camera holds the render target video frames are drawn into and
// the provider and monitor contracts around it.
package camera

import (
	"image"
	"sync"
)

// Surface is an RGBA render target sized to the video track. The encoder
// reads it through Image; providers draw into it through Draw.
type Surface struct {
	mu  sync.RWMutex
	img *image.RGBA
}

func NewSurface(width, height int) *Surface {
	return &Surface{img: image.NewRGBA(image.Rect(0, 0, width, height))}
}

// Image returns the current pixels. The returned image is replaced, not
// mutated, by Resize.
func (s *Surface) Image() *image.RGBA {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.img
}

// Size returns the surface dimensions.
func (s *Surface) Size() (width, height int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

// Resize reallocates the pixel buffer when the dimensions change.
func (s *Surface) Resize(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return
	}
	s.img = image.NewRGBA(image.Rect(0, 0, width, height))
}

// Draw runs fn with exclusive access to the pixels.
func (s *Surface) Draw(fn func(img *image.RGBA)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.img)
}
