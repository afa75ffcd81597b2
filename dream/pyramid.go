package dream

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Octave is one level of the pyramid. Scale is the divisor applied to the source size.
type Octave struct {
	Index  int     `json:"index"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Scale  float64 `json:"scale"`
}

// Pyramid holds the coarse-to-fine octave sizes for one source image
type Pyramid struct {
	source  *Image
	octaves []Octave
}

// NewPyramid computes count octaves, each scale times larger than the last.
// The final octave is the source size exactly. The source must be large enough
// for every octave to grow; otherwise a ConfigError is returned.
func NewPyramid(source *Image, count int, scale float64) (*Pyramid, error) {
	if err := source.Validate(); err != nil {
		return nil, &ConfigError{Field: "image", Err: err}
	}
	if count < 1 {
		return nil, configErrorf("octaves", "got %d, need at least 1", count)
	}
	if !(scale > 1) {
		return nil, configErrorf("octave_scale", "got %v, need > 1", scale)
	}

	octaves := make([]Octave, count)
	for k := range octaves {
		div := math.Pow(scale, float64(count-1-k))
		octaves[k] = Octave{
			Index:  k,
			Width:  scaledSize(source.Width, div),
			Height: scaledSize(source.Height, div),
			Scale:  div,
		}
	}
	octaves[count-1].Width, octaves[count-1].Height = source.Width, source.Height

	for k := 1; k < count; k++ {
		prev, cur := octaves[k-1], octaves[k]
		grows := cur.Width >= prev.Width && cur.Height >= prev.Height &&
			(cur.Width > prev.Width || cur.Height > prev.Height)
		if !grows {
			return nil, configErrorf("octaves",
				"%dx%d image too small for %d octaves at scale %v: octave %d is %dx%d, octave %d is %dx%d",
				source.Width, source.Height, count, scale, k-1, prev.Width, prev.Height, k, cur.Width, cur.Height)
		}
	}

	return &Pyramid{source: source, octaves: octaves}, nil
}

func scaledSize(n int, div float64) int {
	s := int(math.Round(float64(n) / div))
	if s < 1 {
		return 1
	}
	return s
}

// Octaves returns the levels from coarsest to finest
func (p *Pyramid) Octaves() []Octave {
	out := make([]Octave, len(p.octaves))
	copy(out, p.octaves)
	return out
}

// Source is the full-resolution image the pyramid was built from
func (p *Pyramid) Source() *Image {
	return p.source
}

// Detail upsamples low to width x height and adds back the high-frequency content the
// source loses when squeezed to low's size. The result is clipped to [0,1].
func (p *Pyramid) Detail(low *Image, width, height int) (*Image, error) {
	if low.Channels != p.source.Channels {
		return nil, fmt.Errorf("detail: image has %d channels, source %d", low.Channels, p.source.Channels)
	}
	out := Resize(low, width, height)
	sharp := Resize(p.source, width, height)
	blurred := Resize(Resize(p.source, low.Width, low.Height), width, height)
	floats.Sub(sharp.Pix, blurred.Pix)
	floats.Add(out.Pix, sharp.Pix)
	out.Clip()
	return out, nil
}
