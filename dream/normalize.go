package dream

import (
	"fmt"

	"github.com/openfluke/deepdream/nn"
)

// Normalizer maps [0,1] pixels into the network's input domain: (p - Mean[c]) / Std[c]
type Normalizer struct {
	Mean []float64
	Std  []float64
}

// ImageNetNormalizer returns the statistics torchvision backbones were trained with
func ImageNetNormalizer() Normalizer {
	return Normalizer{
		Mean: []float64{0.485, 0.456, 0.406},
		Std:  []float64{0.229, 0.224, 0.225},
	}
}

// Channels is the number of channels the network expects
func (n Normalizer) Channels() int {
	return len(n.Mean)
}

func (n Normalizer) validate() error {
	if len(n.Mean) == 0 || len(n.Mean) != len(n.Std) {
		return fmt.Errorf("normalizer has %d means and %d stds", len(n.Mean), len(n.Std))
	}
	for c, s := range n.Std {
		if !(s > 0) {
			return fmt.Errorf("normalizer std[%d] = %v must be positive", c, s)
		}
	}
	return nil
}

// ToNetwork converts an interleaved image into a planar tensor.
// A single-channel image is broadcast across every network channel.
func (n Normalizer) ToNetwork(img *Image) (*nn.Tensor, error) {
	nc := n.Channels()
	if img.Channels != nc && img.Channels != 1 {
		return nil, fmt.Errorf("cannot normalize %d-channel image for a %d-channel network", img.Channels, nc)
	}

	plane := img.Width * img.Height
	t := nn.NewTensor(nc, img.Height, img.Width)
	for c := 0; c < nc; c++ {
		src := c
		if img.Channels == 1 {
			src = 0
		}
		mean, std := n.Mean[c], n.Std[c]
		for p := 0; p < plane; p++ {
			t.Data[c*plane+p] = float32((img.Pix[p*img.Channels+src] - mean) / std)
		}
	}
	return t, nil
}

// ToPixel inverts ToNetwork, yielding an image with the tensor's channel count
func (n Normalizer) ToPixel(t *nn.Tensor) (*Image, error) {
	if t.Channels != n.Channels() {
		return nil, fmt.Errorf("tensor has %d channels, normalizer %d", t.Channels, n.Channels())
	}
	plane := t.Width * t.Height
	img := NewImage(t.Width, t.Height, t.Channels)
	for c := 0; c < t.Channels; c++ {
		for p := 0; p < plane; p++ {
			img.Pix[p*t.Channels+c] = float64(t.Data[c*plane+p])*n.Std[c] + n.Mean[c]
		}
	}
	return img, nil
}

// GradientToPixel chains a gradient w.r.t. the network input back to pixel space.
// For a gray image the broadcast channels are summed back into one.
func (n Normalizer) GradientToPixel(g *nn.Tensor, channels int) (*Image, error) {
	if g.Channels != n.Channels() {
		return nil, fmt.Errorf("gradient has %d channels, normalizer %d", g.Channels, n.Channels())
	}
	if channels != 1 && channels != g.Channels {
		return nil, fmt.Errorf("cannot fold %d-channel gradient into %d channels", g.Channels, channels)
	}

	plane := g.Width * g.Height
	img := NewImage(g.Width, g.Height, channels)
	for c := 0; c < g.Channels; c++ {
		dst := c
		if channels == 1 {
			dst = 0
		}
		inv := 1 / n.Std[c]
		for p := 0; p < plane; p++ {
			img.Pix[p*channels+dst] += float64(g.Data[c*plane+p]) * inv
		}
	}
	return img, nil
}
