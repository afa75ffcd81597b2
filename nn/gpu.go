package nn

import (
	"errors"
	"fmt"
	"sync"

	"github.com/openfluke/deepdream/gpu"
)

// errGPULimits marks a layer size the device cannot run; the layer falls back to CPU
var errGPULimits = errors.New("exceeds GPU limits")

// gpuKey identifies a compiled conv kernel: shaders bake the input size in
type gpuKey struct {
	layer, h, w int
}

// gpuExecutor dispatches Conv2D layers to WebGPU, compiling one pipeline per layer and input size
type gpuExecutor struct {
	ctx    *gpu.Context
	report gpu.Report

	mu     sync.Mutex
	layers map[gpuKey]*gpu.Conv2DLayer
}

// UseGPU routes Conv2D forward and input-gradient passes to the given WebGPU context.
// Layers whose buffers or dispatch exceed the device limits run on CPU instead.
// Call before sharing the network; ReleaseGPU frees the compiled layers.
func (n *Network) UseGPU(ctx *gpu.Context) error {
	if ctx == nil || ctx.Device == nil {
		return fmt.Errorf("%w: nil context", gpu.ErrNoAdapter)
	}
	n.ReleaseGPU()
	n.gpu = &gpuExecutor{
		ctx:    ctx,
		report: ctx.Report(),
		layers: make(map[gpuKey]*gpu.Conv2DLayer),
	}
	return nil
}

// GPUEnabled reports whether conv layers run on the GPU
func (n *Network) GPUEnabled() bool {
	return n.gpu != nil
}

// ReleaseGPU frees compiled GPU layers and returns the network to CPU execution.
// The Context itself belongs to the caller.
func (n *Network) ReleaseGPU() {
	if n.gpu == nil {
		return
	}
	n.gpu.invalidate()
	n.gpu = nil
}

// invalidate drops every compiled layer, e.g. after weights change
func (g *gpuExecutor) invalidate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for k, l := range g.layers {
		l.Cleanup()
		delete(g.layers, k)
	}
}

// layer returns the compiled conv for (layerIdx, h, w); g.mu must be held
func (g *gpuExecutor) layer(config *LayerConfig, layerIdx, h, w int) (*gpu.Conv2DLayer, error) {
	key := gpuKey{layerIdx, h, w}
	if l, ok := g.layers[key]; ok {
		return l, nil
	}
	if !g.report.FitsBuffer(config.InputChannels*h*w) || !g.report.FitsBuffer(config.Filters*h*w) {
		return nil, fmt.Errorf("layer %s: %dx%d %w (buffers, %s)", config.Name, h, w, errGPULimits, g.report)
	}
	_, outH, outW, err := config.OutputShape(config.InputChannels, h, w)
	if err != nil {
		return nil, err
	}
	if !g.report.FitsDispatch(config.InputChannels*h*w) || !g.report.FitsDispatch(config.Filters*outH*outW) {
		return nil, fmt.Errorf("layer %s: %dx%d %w (workgroups, %s)", config.Name, h, w, errGPULimits, g.report)
	}
	l, err := gpu.NewConv2DLayer(g.ctx, gpu.Conv2DSpec{
		InChannels:  config.InputChannels,
		OutChannels: config.Filters,
		KernelSize:  config.KernelSize,
		Stride:      config.stride(),
		Padding:     config.Padding,
		InputHeight: h,
		InputWidth:  w,
		Weights:     config.Kernel,
		Bias:        config.Bias,
	}, fmt.Sprintf("%s_%dx%d", config.Name, h, w))
	if err != nil {
		return nil, fmt.Errorf("layer %s: %w", config.Name, err)
	}
	g.layers[key] = l
	return l, nil
}

// tooLarge reports a layer that cannot run on this device at all, as opposed to a failure
func tooLarge(err error) bool {
	return errors.Is(err, errGPULimits) || errors.Is(err, gpu.ErrDispatchTooLarge)
}

func (g *gpuExecutor) conv2DForward(input *Tensor, config *LayerConfig, layerIdx int) (*Tensor, error) {
	filters, outH, outW, err := config.OutputShape(input.Channels, input.Height, input.Width)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	l, err := g.layer(config, layerIdx, input.Height, input.Width)
	if err != nil {
		g.mu.Unlock()
		if tooLarge(err) {
			return conv2DForwardCPU(input, config)
		}
		return nil, err
	}
	out, err := l.Forward(input.Data)
	g.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("layer %s: gpu forward: %w", config.Name, err)
	}
	return &Tensor{Data: out, Channels: filters, Height: outH, Width: outW}, nil
}

func (g *gpuExecutor) conv2DBackward(gradOutput *Tensor, inC, inH, inW int, config *LayerConfig, layerIdx int) (*Tensor, error) {
	g.mu.Lock()
	l, err := g.layer(config, layerIdx, inH, inW)
	if err != nil {
		g.mu.Unlock()
		if tooLarge(err) {
			return conv2DBackwardCPU(gradOutput, inC, inH, inW, config), nil
		}
		return nil, err
	}
	grad, err := l.Backward(gradOutput.Data)
	g.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("layer %s: gpu backward: %w", config.Name, err)
	}
	return &Tensor{Data: grad, Channels: inC, Height: inH, Width: inW}, nil
}
