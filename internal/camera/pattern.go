package camera

import (
	"image"
	"image/color"
	"sync/atomic"
)

var bars = [...]color.RGBA{
	{0xc0, 0xc0, 0xc0, 0xff},
	{0xc0, 0xc0, 0x00, 0xff},
	{0x00, 0xc0, 0xc0, 0xff},
	{0x00, 0xc0, 0x00, 0xff},
	{0xc0, 0x00, 0xc0, 0xff},
	{0xc0, 0x00, 0x00, 0xff},
	{0x00, 0x00, 0xc0, 0xff},
}

// TestPattern draws colour bars that scroll one step per rendered frame.
type TestPattern struct {
	id string

	active   atomic.Bool
	rendered atomic.Uint64
}

func NewTestPattern(id string) *TestPattern { return &TestPattern{id: id} }

func (p *TestPattern) ID() string { return p.id }

func (p *TestPattern) Activate(s *Surface) {
	p.active.Store(true)
	n := p.rendered.Add(1)
	s.Draw(func(img *image.RGBA) { drawBars(img, int(n)) })
}

func (p *TestPattern) Deactivate() { p.active.Store(false) }

// Active reports whether the last tick rendered a frame.
func (p *TestPattern) Active() bool { return p.active.Load() }

// Rendered returns the number of frames drawn so far.
func (p *TestPattern) Rendered() uint64 { return p.rendered.Load() }

func drawBars(img *image.RGBA, offset int) {
	b := img.Bounds()
	w := b.Dx()
	if w == 0 || b.Dy() == 0 {
		return
	}

	// Render one row, then copy it down.
	row := img.Pix[:w*4]
	for x := 0; x < w; x++ {
		c := bars[((x+offset)*len(bars)/w)%len(bars)]
		row[x*4+0] = c.R
		row[x*4+1] = c.G
		row[x*4+2] = c.B
		row[x*4+3] = c.A
	}
	for y := 1; y < b.Dy(); y++ {
		copy(img.Pix[y*img.Stride:y*img.Stride+w*4], row)
	}
}
