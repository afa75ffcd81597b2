package nn

import (
	"fmt"
	"math/rand"
)

// vggPool marks a max-pooling stage in a VGG configuration
const vggPool = -1

var (
	vgg16Config = []int{64, 64, vggPool, 128, 128, vggPool, 256, 256, 256, vggPool, 512, 512, 512, vggPool, 512, 512, 512, vggPool}
	vgg19Config = []int{64, 64, vggPool, 128, 128, vggPool, 256, 256, 256, 256, vggPool, 512, 512, 512, 512, vggPool, 512, 512, 512, 512, vggPool}
)

// NewVGG16 builds the VGG16 convolutional feature stack
func NewVGG16(rng *rand.Rand) (*Network, error) {
	return buildVGG("vgg16", vgg16Config, rng)
}

// NewVGG19 builds the VGG19 convolutional feature stack
func NewVGG19(rng *rand.Rand) (*Network, error) {
	return buildVGG("vgg19", vgg19Config, rng)
}

// buildVGG expands a VGG configuration into named layers.
// Names follow the conv{block}_{n} / relu{block}_{n} / pool{block} convention and
// WeightKey follows torchvision's "features.<index>" module numbering.
func buildVGG(name string, cfg []int, rng *rand.Rand) (*Network, error) {
	var layers []LayerConfig
	inC := 3
	block, n := 1, 1
	for _, v := range cfg {
		if v == vggPool {
			pool := InitMaxPool2DLayer(fmt.Sprintf("pool%d", block), 2, 2)
			pool.WeightKey = fmt.Sprintf("features.%d", len(layers))
			layers = append(layers, pool)
			block++
			n = 1
			continue
		}
		conv := InitConv2DLayer(fmt.Sprintf("conv%d_%d", block, n), inC, 3, 1, 1, v, rng)
		conv.WeightKey = fmt.Sprintf("features.%d", len(layers))
		layers = append(layers, conv)

		relu := InitActivationLayer(fmt.Sprintf("relu%d_%d", block, n), ActivationReLU)
		relu.WeightKey = fmt.Sprintf("features.%d", len(layers))
		layers = append(layers, relu)

		inC = v
		n++
	}
	return NewNetwork(name, 3, layers)
}
