package nn

import "fmt"

// ActivationType defines the element-wise activation used by an activation layer
type ActivationType int

const (
	ActivationReLU      ActivationType = 0 // max(0, v)
	ActivationLeakyReLU ActivationType = 1 // v if v >= 0, else v * 0.1
	ActivationLinear    ActivationType = 2 // v
)

// LayerType defines the type of network layer
type LayerType int

const (
	LayerConv2D     LayerType = 0 // 2D Convolutional layer (no fused activation)
	LayerActivation LayerType = 1 // Element-wise activation
	LayerMaxPool2D  LayerType = 2 // 2D max pooling
)

func (t LayerType) String() string {
	switch t {
	case LayerConv2D:
		return "conv2d"
	case LayerActivation:
		return "activation"
	case LayerMaxPool2D:
		return "maxpool2d"
	default:
		return "unknown"
	}
}

// LayerConfig holds configuration for one named layer of the stack
type LayerConfig struct {
	Name       string
	Type       LayerType
	Activation ActivationType
	WeightKey  string // Tensor name prefix in weight files (e.g., "features.0")

	// Conv2D and MaxPool2D parameters
	KernelSize int // Size of kernel / pooling window (e.g., 3 for 3x3)
	Stride     int // Stride (defaults to 1 for conv, KernelSize for pooling)
	Padding    int // Zero padding for convolution

	// Conv2D specific parameters
	InputChannels int       // Channels consumed
	Filters       int       // Number of output filters/channels
	Kernel        []float32 // Convolution kernel weights [filters][inChannels][kernelH][kernelW]
	Bias          []float32 // Bias terms [filters]
}

// stride returns the effective stride for the layer
func (c *LayerConfig) stride() int {
	if c.Stride > 0 {
		return c.Stride
	}
	if c.Type == LayerMaxPool2D {
		return c.KernelSize
	}
	return 1
}

// OutputShape computes the output [C,H,W] for an input of the given shape
func (c *LayerConfig) OutputShape(ch, h, w int) (int, int, int, error) {
	switch c.Type {
	case LayerConv2D:
		if ch != c.InputChannels {
			return 0, 0, 0, fmt.Errorf("layer %s: expected %d input channels, got %d", c.Name, c.InputChannels, ch)
		}
		s := c.stride()
		oh := (h+2*c.Padding-c.KernelSize)/s + 1
		ow := (w+2*c.Padding-c.KernelSize)/s + 1
		if oh < 1 || ow < 1 {
			return 0, 0, 0, fmt.Errorf("layer %s: input %dx%d too small for kernel %d", c.Name, h, w, c.KernelSize)
		}
		return c.Filters, oh, ow, nil
	case LayerMaxPool2D:
		s := c.stride()
		oh := (h-c.KernelSize)/s + 1
		ow := (w-c.KernelSize)/s + 1
		if oh < 1 || ow < 1 {
			return 0, 0, 0, fmt.Errorf("layer %s: input %dx%d too small for pool %d", c.Name, h, w, c.KernelSize)
		}
		return ch, oh, ow, nil
	default:
		return ch, h, w, nil
	}
}

// Tensor is a dense planar [C][H][W] float32 buffer
type Tensor struct {
	Data     []float32
	Channels int
	Height   int
	Width    int
}

// NewTensor allocates a zeroed tensor
func NewTensor(channels, height, width int) *Tensor {
	return &Tensor{
		Data:     make([]float32, channels*height*width),
		Channels: channels,
		Height:   height,
		Width:    width,
	}
}

// NewTensorFromSlice wraps data without copying; returns nil if the size does not match
func NewTensorFromSlice(data []float32, channels, height, width int) *Tensor {
	if len(data) != channels*height*width {
		return nil
	}
	return &Tensor{Data: data, Channels: channels, Height: height, Width: width}
}

// Size returns the number of elements
func (t *Tensor) Size() int {
	return len(t.Data)
}

// Clone returns a deep copy
func (t *Tensor) Clone() *Tensor {
	out := &Tensor{
		Data:     make([]float32, len(t.Data)),
		Channels: t.Channels,
		Height:   t.Height,
		Width:    t.Width,
	}
	copy(out.Data, t.Data)
	return out
}

// SameShape reports whether two tensors share C, H and W
func (t *Tensor) SameShape(o *Tensor) bool {
	return t.Channels == o.Channels && t.Height == o.Height && t.Width == o.Width
}

// Index returns the flat offset of (c, y, x)
func (t *Tensor) Index(c, y, x int) int {
	return (c*t.Height+y)*t.Width + x
}
