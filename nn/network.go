package nn

import (
	"fmt"
)

// Network is a frozen, sequential stack of named layers.
// After NewNetwork returns, layer weights are read-only, so one Network can serve
// concurrent Forward calls.
type Network struct {
	Name          string // Backbone name (e.g., "vgg19")
	InputChannels int    // Channels expected at the input
	Layers        []LayerConfig

	registry *LayerRegistry
	gpu      *gpuExecutor
}

// NewNetwork builds a network and its layer registry.
// Conv channel chaining is checked here so shape errors surface before any forward pass.
func NewNetwork(name string, inputChannels int, layers []LayerConfig) (*Network, error) {
	if inputChannels < 1 {
		return nil, fmt.Errorf("network %s: input channels must be positive, got %d", name, inputChannels)
	}
	registry, err := newLayerRegistry(layers)
	if err != nil {
		return nil, fmt.Errorf("network %s: %w", name, err)
	}

	ch := inputChannels
	for i := range layers {
		l := &layers[i]
		switch l.Type {
		case LayerConv2D:
			if l.InputChannels != ch {
				return nil, fmt.Errorf("network %s: layer %s expects %d channels, previous layer produces %d", name, l.Name, l.InputChannels, ch)
			}
			if l.KernelSize < 1 || l.Filters < 1 {
				return nil, fmt.Errorf("network %s: layer %s has invalid kernel %d / filters %d", name, l.Name, l.KernelSize, l.Filters)
			}
			if len(l.Kernel) != l.Filters*l.InputChannels*l.KernelSize*l.KernelSize || len(l.Bias) != l.Filters {
				return nil, fmt.Errorf("network %s: layer %s weight buffers do not match its shape", name, l.Name)
			}
			ch = l.Filters
		case LayerMaxPool2D:
			if l.KernelSize < 1 {
				return nil, fmt.Errorf("network %s: layer %s has invalid pool size %d", name, l.Name, l.KernelSize)
			}
		}
	}

	return &Network{
		Name:          name,
		InputChannels: inputChannels,
		Layers:        layers,
		registry:      registry,
	}, nil
}

// Registry returns the network's layer registry
func (n *Network) Registry() *LayerRegistry {
	return n.registry
}

// LayerNames returns all layer names in stack order
func (n *Network) LayerNames() []string {
	return n.registry.Names()
}

// HasLayer reports whether a layer id is registered
func (n *Network) HasLayer(id string) bool {
	_, ok := n.registry.Lookup(id)
	return ok
}

// Validate checks every id against the registry
func (n *Network) Validate(ids []string) error {
	_, err := n.registry.Resolve(ids)
	return err
}

// TotalLayers returns the number of layers in the stack
func (n *Network) TotalLayers() int {
	return len(n.Layers)
}

// layerTrace holds what one layer needs to propagate a gradient to its input
type layerTrace struct {
	inC, inH, inW int
	preActivation []float32 // activation layers
	argmax        []int     // pooling layers
}

// Pass is the result of one forward pass: the requested activations plus the
// per-layer trace needed to compute input gradients. It is owned by the caller.
type Pass struct {
	network     *Network
	input       *Tensor
	taps        map[string]int
	deepest     int
	traces      []layerTrace
	activations map[string]*Tensor
}

// Forward runs the stack up to the deepest requested layer and returns its activations
func (n *Network) Forward(input *Tensor, ids []string) (*Pass, error) {
	if input == nil || input.Size() == 0 {
		return nil, fmt.Errorf("network %s: empty input", n.Name)
	}
	if input.Channels != n.InputChannels {
		return nil, fmt.Errorf("network %s: expected %d input channels, got %d", n.Name, n.InputChannels, input.Channels)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("network %s: no layers requested", n.Name)
	}
	positions, err := n.registry.Resolve(ids)
	if err != nil {
		return nil, err
	}

	pass := &Pass{
		network:     n,
		input:       input,
		taps:        make(map[string]int, len(ids)),
		deepest:     -1,
		activations: make(map[string]*Tensor, len(ids)),
	}
	for i, id := range ids {
		pass.taps[id] = positions[i]
		if positions[i] > pass.deepest {
			pass.deepest = positions[i]
		}
	}
	pass.traces = make([]layerTrace, pass.deepest+1)

	data := input
	for layerIdx := 0; layerIdx <= pass.deepest; layerIdx++ {
		config := &n.Layers[layerIdx]
		trace := &pass.traces[layerIdx]
		trace.inC, trace.inH, trace.inW = data.Channels, data.Height, data.Width

		var out *Tensor
		switch config.Type {
		case LayerConv2D:
			if n.gpu != nil {
				out, err = n.gpu.conv2DForward(data, config, layerIdx)
			} else {
				out, err = conv2DForwardCPU(data, config)
			}
			if err != nil {
				return nil, err
			}
		case LayerActivation:
			trace.preActivation = data.Data
			out = &Tensor{
				Data:     activationForwardCPU(data.Data, config.Activation),
				Channels: data.Channels,
				Height:   data.Height,
				Width:    data.Width,
			}
		case LayerMaxPool2D:
			out, trace.argmax, err = maxPool2DForwardCPU(data, config)
			if err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("network %s: layer %s has unsupported type %d", n.Name, config.Name, config.Type)
		}

		data = out
		if _, tapped := pass.taps[config.Name]; tapped {
			pass.activations[config.Name] = out
		}
	}

	return pass, nil
}

// Activations returns the requested layer outputs keyed by layer id
func (p *Pass) Activations() map[string]*Tensor {
	return p.activations
}

// Activation returns one requested layer output
func (p *Pass) Activation(id string) (*Tensor, bool) {
	t, ok := p.activations[id]
	return t, ok
}

// Backward propagates dObjective/dActivation for each tapped layer back to the input.
// Layers without an entry in grads contribute nothing.
func (p *Pass) Backward(grads map[string]*Tensor) (*Tensor, error) {
	inject := make(map[int]*Tensor, len(grads))
	for id, g := range grads {
		idx, ok := p.taps[id]
		if !ok {
			return nil, fmt.Errorf("%w: %q was not captured in this pass", ErrUnknownLayer, id)
		}
		if act := p.activations[id]; g == nil || !g.SameShape(act) {
			return nil, fmt.Errorf("gradient for %s does not match activation shape %dx%dx%d", id, act.Channels, act.Height, act.Width)
		}
		inject[idx] = g
	}

	n := p.network
	var grad *Tensor

	// Backpropagate through the stack in reverse order
	for layerIdx := p.deepest; layerIdx >= 0; layerIdx-- {
		if g, ok := inject[layerIdx]; ok {
			if grad == nil {
				grad = g.Clone()
			} else {
				for i, v := range g.Data {
					grad.Data[i] += v
				}
			}
		}
		if grad == nil {
			continue
		}

		config := &n.Layers[layerIdx]
		trace := &p.traces[layerIdx]

		switch config.Type {
		case LayerConv2D:
			if n.gpu != nil {
				var err error
				grad, err = n.gpu.conv2DBackward(grad, trace.inC, trace.inH, trace.inW, config, layerIdx)
				if err != nil {
					return nil, err
				}
			} else {
				grad = conv2DBackwardCPU(grad, trace.inC, trace.inH, trace.inW, config)
			}
		case LayerActivation:
			grad = &Tensor{
				Data:     activationBackwardCPU(grad.Data, trace.preActivation, config.Activation),
				Channels: trace.inC,
				Height:   trace.inH,
				Width:    trace.inW,
			}
		case LayerMaxPool2D:
			grad = maxPool2DBackwardCPU(grad, trace.argmax, trace.inC, trace.inH, trace.inW)
		}
	}

	if grad == nil {
		return NewTensor(p.input.Channels, p.input.Height, p.input.Width), nil
	}
	return grad, nil
}
