package dream

import "math"

// Resize bilinearly resamples img to width x height using pixel-centre alignment
// and edge clamping. Resizing to the current size returns a copy.
func Resize(img *Image, width, height int) *Image {
	if width == img.Width && height == img.Height {
		return img.Clone()
	}

	out := NewImage(width, height, img.Channels)
	xs := sampleGrid(img.Width, width)
	ys := sampleGrid(img.Height, height)
	c := img.Channels

	for y, sy := range ys {
		row0 := sy.i0 * img.Width
		row1 := sy.i1 * img.Width
		for x, sx := range xs {
			dst := (y*width + x) * c
			for ch := 0; ch < c; ch++ {
				top := img.Pix[(row0+sx.i0)*c+ch]*(1-sx.f) + img.Pix[(row0+sx.i1)*c+ch]*sx.f
				bot := img.Pix[(row1+sx.i0)*c+ch]*(1-sx.f) + img.Pix[(row1+sx.i1)*c+ch]*sx.f
				out.Pix[dst+ch] = top*(1-sy.f) + bot*sy.f
			}
		}
	}
	return out
}

type sample struct {
	i0, i1 int
	f      float64
}

// sampleGrid maps each destination index to its two source neighbours and blend weight
func sampleGrid(src, dst int) []sample {
	grid := make([]sample, dst)
	ratio := float64(src) / float64(dst)
	for i := range grid {
		s := (float64(i)+0.5)*ratio - 0.5
		if s < 0 {
			s = 0
		}
		if last := float64(src - 1); s > last {
			s = last
		}
		i0 := int(math.Floor(s))
		i1 := i0 + 1
		if i1 > src-1 {
			i1 = src - 1
		}
		grid[i] = sample{i0: i0, i1: i1, f: s - float64(i0)}
	}
	return grid
}
