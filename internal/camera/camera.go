package camera

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"sync"
)

// Provider renders frames into a surface while it is active. Activate is
// called on every tick a frame is due; Deactivate on every other tick.
type Provider interface {
	ID() string
	Activate(s *Surface)
	Deactivate()
}

// Monitor displays the recording surface, typically as an in-game preview.
// SetSurface(nil) detaches it.
type Monitor interface {
	ID() string
	SetSurface(s *Surface)
}

// Preview is a Monitor that keeps the attached surface so it can be
// snapshotted to disk.
type Preview struct {
	id string

	mu      sync.Mutex
	surface *Surface
}

func NewPreview(id string) *Preview { return &Preview{id: id} }

func (p *Preview) ID() string { return p.id }

func (p *Preview) SetSurface(s *Surface) {
	p.mu.Lock()
	p.surface = s
	p.mu.Unlock()
}

// Attached reports whether a surface is bound.
func (p *Preview) Attached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.surface != nil
}

// SavePNG writes the current surface contents to path.
func (p *Preview) SavePNG(path string) error {
	p.mu.Lock()
	s := p.surface
	p.mu.Unlock()
	if s == nil {
		return fmt.Errorf("preview %s: no surface attached", p.id)
	}

	var snapshot *image.RGBA
	s.Draw(func(img *image.RGBA) {
		snapshot = image.NewRGBA(img.Rect)
		copy(snapshot.Pix, img.Pix)
	})

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, snapshot); err != nil {
		f.Close()
		return fmt.Errorf("encode preview: %w", err)
	}
	return f.Close()
}
