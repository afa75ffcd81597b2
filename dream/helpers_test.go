package dream

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/openfluke/deepdream/nn"
)

// identityExtractor exposes its input as every layer's activation
type identityExtractor struct {
	layers   map[string]bool
	forwards int
}

func newIdentityExtractor(layers ...string) *identityExtractor {
	e := &identityExtractor{layers: map[string]bool{}}
	for _, l := range layers {
		e.layers[l] = true
	}
	return e
}

func (e *identityExtractor) Forward(input *nn.Tensor, ids []string) (Capture, error) {
	e.forwards++
	acts := make(map[string]*nn.Tensor, len(ids))
	for _, id := range ids {
		acts[id] = input.Clone()
	}
	return &identityCapture{input: input, acts: acts}, nil
}

func (e *identityExtractor) Validate(ids []string) error {
	for _, id := range ids {
		if !e.layers[id] {
			return fmt.Errorf("%w: %q", nn.ErrUnknownLayer, id)
		}
	}
	return nil
}

func (e *identityExtractor) InputChannels() int { return 3 }

type identityCapture struct {
	input *nn.Tensor
	acts  map[string]*nn.Tensor
}

func (c *identityCapture) Activations() map[string]*nn.Tensor { return c.acts }

func (c *identityCapture) Backward(grads map[string]*nn.Tensor) (*nn.Tensor, error) {
	out := nn.NewTensor(c.input.Channels, c.input.Height, c.input.Width)
	for _, g := range grads {
		for i, v := range g.Data {
			out.Data[i] += v
		}
	}
	return out, nil
}

// tinyExtractor builds a small randomly initialized conv stack
func tinyExtractor(t *testing.T) *NetworkExtractor {
	t.Helper()
	rng := rand.New(rand.NewSource(42))
	network, err := nn.NewNetwork("tiny", 3, []nn.LayerConfig{
		nn.InitConv2DLayer("conv1", 3, 3, 1, 1, 4, rng),
		nn.InitActivationLayer("relu1", nn.ActivationReLU),
		nn.InitMaxPool2DLayer("pool1", 2, 2),
		nn.InitConv2DLayer("conv2", 4, 3, 1, 1, 4, rng),
		nn.InitActivationLayer("relu2", nn.ActivationReLU),
	})
	if err != nil {
		t.Fatalf("NewNetwork: %v", err)
	}
	return NewNetworkExtractor(network)
}

// gradientImage is a smooth diagonal ramp, shifted per channel
func gradientImage(width, height, channels int) *Image {
	img := NewImage(width, height, channels)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			for c := 0; c < channels; c++ {
				v := (float64(x)/float64(width) + float64(y)/float64(height)) / 2
				img.Set(x, y, c, 0.1+0.8*v*float64(c+1)/float64(channels))
			}
		}
	}
	return img
}

func randomImage(width, height, channels int, seed int64) *Image {
	rng := rand.New(rand.NewSource(seed))
	img := NewImage(width, height, channels)
	for i := range img.Pix {
		img.Pix[i] = rng.Float64()
	}
	return img
}

func testConfig(layers ...string) RunConfig {
	cfg := DefaultRunConfig()
	cfg.Layers = layers
	cfg.Octaves = 3
	cfg.OctaveScale = 1.4
	cfg.Iterations = 2
	cfg.JitterMax = 4
	cfg.Seed = 7
	return cfg
}

func meanSquaredError(a, b *Image) float64 {
	sum := 0.0
	for i := range a.Pix {
		d := a.Pix[i] - b.Pix[i]
		sum += d * d
	}
	return sum / float64(len(a.Pix))
}
