package dream

import (
	"fmt"
	"image"
	"image/color"
	"math"
)

// Image is a dense float64 pixel buffer in [0,1], interleaved as Pix[(y*Width+x)*Channels+c].
// Channels is 1 (gray) or 3 (RGB).
type Image struct {
	Pix      []float64
	Width    int
	Height   int
	Channels int
}

// NewImage allocates a zeroed image
func NewImage(width, height, channels int) *Image {
	return &Image{
		Pix:      make([]float64, width*height*channels),
		Width:    width,
		Height:   height,
		Channels: channels,
	}
}

// Clone creates a deep copy of the image
func (m *Image) Clone() *Image {
	pix := make([]float64, len(m.Pix))
	copy(pix, m.Pix)
	return &Image{Pix: pix, Width: m.Width, Height: m.Height, Channels: m.Channels}
}

// At returns the value of channel c at (x, y)
func (m *Image) At(x, y, c int) float64 {
	return m.Pix[(y*m.Width+x)*m.Channels+c]
}

// Set stores v in channel c at (x, y)
func (m *Image) Set(x, y, c int, v float64) {
	m.Pix[(y*m.Width+x)*m.Channels+c] = v
}

// SameSize reports whether o has the same width and height
func (m *Image) SameSize(o *Image) bool {
	return m.Width == o.Width && m.Height == o.Height
}

// Validate checks dimensions and buffer length
func (m *Image) Validate() error {
	if m == nil {
		return fmt.Errorf("nil image")
	}
	if m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("image size %dx%d must be positive", m.Width, m.Height)
	}
	if m.Channels != 1 && m.Channels != 3 {
		return fmt.Errorf("image has %d channels, want 1 or 3", m.Channels)
	}
	if len(m.Pix) != m.Width*m.Height*m.Channels {
		return fmt.Errorf("image buffer holds %d values, want %d", len(m.Pix), m.Width*m.Height*m.Channels)
	}
	return nil
}

// InRange reports whether every value lies in [0,1]
func (m *Image) InRange() bool {
	for _, v := range m.Pix {
		if !(v >= 0 && v <= 1) {
			return false
		}
	}
	return true
}

// Clip clamps every value to [0,1] in place
func (m *Image) Clip() {
	for i, v := range m.Pix {
		if v < 0 {
			m.Pix[i] = 0
		} else if v > 1 {
			m.Pix[i] = 1
		}
	}
}

// FromImage converts a decoded image. Gray sources stay single-channel; everything else becomes RGB.
func FromImage(src image.Image) *Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	switch src.(type) {
	case *image.Gray, *image.Gray16:
		out := NewImage(w, h, 1)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				g := color.Gray16Model.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16)
				out.Pix[y*w+x] = float64(g.Y) / 0xffff
			}
		}
		return out
	}

	out := NewImage(w, h, 3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, a := src.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := (y*w + x) * 3
			// Un-premultiply so transparent regions keep their colour
			if a != 0 && a != 0xffff {
				r, g, bl = r*0xffff/a, g*0xffff/a, bl*0xffff/a
			}
			out.Pix[i] = float64(r) / 0xffff
			out.Pix[i+1] = float64(g) / 0xffff
			out.Pix[i+2] = float64(bl) / 0xffff
		}
	}
	return out
}

// ToImage quantizes to 8 bits: *image.Gray for one channel, *image.RGBA otherwise
func (m *Image) ToImage() image.Image {
	rect := image.Rect(0, 0, m.Width, m.Height)
	if m.Channels == 1 {
		out := image.NewGray(rect)
		for i, v := range m.Pix {
			out.Pix[i] = quantize(v)
		}
		return out
	}

	out := image.NewRGBA(rect)
	for p := 0; p < m.Width*m.Height; p++ {
		out.Pix[p*4] = quantize(m.Pix[p*3])
		out.Pix[p*4+1] = quantize(m.Pix[p*3+1])
		out.Pix[p*4+2] = quantize(m.Pix[p*3+2])
		out.Pix[p*4+3] = 0xff
	}
	return out
}

func quantize(v float64) uint8 {
	if !(v > 0) {
		return 0
	}
	if v >= 1 {
		return 0xff
	}
	return uint8(math.Round(v * 0xff))
}
