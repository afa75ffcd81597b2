package nn

import (
	"math"
	"math/rand"
)

// InitConv2DLayer initializes a Conv2D layer with He-initialized weights drawn from rng.
// Pass nil to leave Kernel zeroed for weights that are loaded afterwards.
func InitConv2DLayer(
	name string,
	inputChannels, kernelSize, stride, padding, filters int,
	rng *rand.Rand,
) LayerConfig {
	kernelTotal := filters * inputChannels * kernelSize * kernelSize
	kernel := make([]float32, kernelTotal)

	if rng != nil {
		stddev := float32(math.Sqrt(2.0 / float64(inputChannels*kernelSize*kernelSize)))
		for i := range kernel {
			kernel[i] = float32(rng.NormFloat64()) * stddev
		}
	}

	return LayerConfig{
		Name:          name,
		Type:          LayerConv2D,
		Activation:    ActivationLinear,
		KernelSize:    kernelSize,
		Stride:        stride,
		Padding:       padding,
		Filters:       filters,
		Kernel:        kernel,
		Bias:          make([]float32, filters),
		InputChannels: inputChannels,
	}
}

// InitActivationLayer creates an element-wise activation layer
func InitActivationLayer(name string, activation ActivationType) LayerConfig {
	return LayerConfig{Name: name, Type: LayerActivation, Activation: activation}
}

// InitMaxPool2DLayer creates a max pooling layer; stride 0 means stride == kernelSize
func InitMaxPool2DLayer(name string, kernelSize, stride int) LayerConfig {
	return LayerConfig{Name: name, Type: LayerMaxPool2D, KernelSize: kernelSize, Stride: stride}
}

// conv2DForwardCPU performs 2D convolution on CPU
// input shape: [inChannels][height][width] (flattened)
// output shape: [filters][outHeight][outWidth] (flattened)
func conv2DForwardCPU(input *Tensor, config *LayerConfig) (*Tensor, error) {
	filters, outH, outW, err := config.OutputShape(input.Channels, input.Height, input.Width)
	if err != nil {
		return nil, err
	}
	inH := input.Height
	inW := input.Width
	inC := input.Channels
	kSize := config.KernelSize
	stride := config.stride()
	padding := config.Padding

	output := NewTensor(filters, outH, outW)

	// For each output filter
	for f := 0; f < filters; f++ {
		kBase := f * inC * kSize * kSize
		// For each output position
		for oh := 0; oh < outH; oh++ {
			for ow := 0; ow < outW; ow++ {
				sum := config.Bias[f]

				// Convolve over input channels
				for ic := 0; ic < inC; ic++ {
					for kh := 0; kh < kSize; kh++ {
						ih := oh*stride + kh - padding
						if ih < 0 || ih >= inH {
							continue
						}
						for kw := 0; kw < kSize; kw++ {
							iw := ow*stride + kw - padding
							if iw < 0 || iw >= inW {
								continue
							}
							inputIdx := ic*inH*inW + ih*inW + iw
							kernelIdx := kBase + ic*kSize*kSize + kh*kSize + kw
							sum += input.Data[inputIdx] * config.Kernel[kernelIdx]
						}
					}
				}

				output.Data[f*outH*outW+oh*outW+ow] = sum
			}
		}
	}

	return output, nil
}

// conv2DBackwardCPU computes the gradient with respect to the conv input.
// Weights are frozen so kernel and bias gradients are never accumulated.
func conv2DBackwardCPU(gradOutput *Tensor, inC, inH, inW int, config *LayerConfig) *Tensor {
	kSize := config.KernelSize
	stride := config.stride()
	padding := config.Padding
	filters := gradOutput.Channels
	outH := gradOutput.Height
	outW := gradOutput.Width

	gradInput := NewTensor(inC, inH, inW)

	for f := 0; f < filters; f++ {
		kBase := f * inC * kSize * kSize
		for oh := 0; oh < outH; oh++ {
			for ow := 0; ow < outW; ow++ {
				gradOut := gradOutput.Data[f*outH*outW+oh*outW+ow]
				if gradOut == 0 {
					continue
				}

				// Backprop through convolution
				for ic := 0; ic < inC; ic++ {
					for kh := 0; kh < kSize; kh++ {
						ih := oh*stride + kh - padding
						if ih < 0 || ih >= inH {
							continue
						}
						for kw := 0; kw < kSize; kw++ {
							iw := ow*stride + kw - padding
							if iw < 0 || iw >= inW {
								continue
							}
							inputIdx := ic*inH*inW + ih*inW + iw
							kernelIdx := kBase + ic*kSize*kSize + kh*kSize + kw
							gradInput.Data[inputIdx] += gradOut * config.Kernel[kernelIdx]
						}
					}
				}
			}
		}
	}

	return gradInput
}
