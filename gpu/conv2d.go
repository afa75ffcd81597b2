package gpu

import (
	"fmt"

	"github.com/openfluke/webgpu/wgpu"
)

// Conv2DSpec defines configuration for 2D Convolution layer
type Conv2DSpec struct {
	InChannels  int       // Input channels
	OutChannels int       // Output channels (filters)
	KernelSize  int       // Kernel size (squared)
	Stride      int       // Stride (default 1)
	Padding     int       // Padding (default 0)
	InputHeight int       // Input height
	InputWidth  int       // Input width
	Weights     []float32 // [OutChannels * InChannels * KernelSize * KernelSize]
	Bias        []float32 // [OutChannels]
}

// Conv2DLayer holds GPU resources for one 2D convolution at a fixed input size.
// All buffers use planar [C, H, W] layout.
type Conv2DLayer struct {
	Spec Conv2DSpec

	ctx *Context

	pipeline  *wgpu.ComputePipeline
	bindGroup *wgpu.BindGroup

	InputBuffer  *wgpu.Buffer
	OutputBuffer *wgpu.Buffer
	WeightBuffer *wgpu.Buffer
	BiasBuffer   *wgpu.Buffer

	GradOutputBuffer    *wgpu.Buffer
	InputGradientBuffer *wgpu.Buffer

	bwPipeline  *wgpu.ComputePipeline
	bwBindGroup *wgpu.BindGroup

	outputH, outputW int
	maxWorkgroups    uint32
}

// NewConv2DLayer allocates buffers, compiles forward and input-gradient shaders and binds them
func NewConv2DLayer(ctx *Context, spec Conv2DSpec, labelPrefix string) (*Conv2DLayer, error) {
	l := &Conv2DLayer{Spec: spec, ctx: ctx}
	l.outputH, l.outputW = l.computeOutputSize()
	if l.outputH < 1 || l.outputW < 1 {
		return nil, fmt.Errorf("%s: input %dx%d too small for kernel %d", labelPrefix, spec.InputHeight, spec.InputWidth, spec.KernelSize)
	}
	l.maxWorkgroups = ctx.Device.GetLimits().Limits.MaxComputeWorkgroupsPerDimension
	for _, total := range []int{l.outputSize(), l.inputSize()} {
		if _, _, err := DispatchSize(total, l.maxWorkgroups); err != nil {
			return nil, fmt.Errorf("%s: %w", labelPrefix, err)
		}
	}
	wantWeights := spec.OutChannels * spec.InChannels * spec.KernelSize * spec.KernelSize
	if len(spec.Weights) != wantWeights || len(spec.Bias) != spec.OutChannels {
		return nil, fmt.Errorf("%s: weights %d/%d, bias %d/%d", labelPrefix, len(spec.Weights), wantWeights, len(spec.Bias), spec.OutChannels)
	}

	steps := []func(string) error{l.allocateBuffers, l.compile, l.createBindGroups}
	for _, step := range steps {
		if err := step(labelPrefix); err != nil {
			l.Cleanup()
			return nil, err
		}
	}
	return l, nil
}

// OutputSize returns the output height and width
func (l *Conv2DLayer) OutputSize() (int, int) {
	return l.outputH, l.outputW
}

func (l *Conv2DLayer) stride() int {
	if l.Spec.Stride < 1 {
		return 1
	}
	return l.Spec.Stride
}

func (l *Conv2DLayer) computeOutputSize() (int, int) {
	stride := l.stride()
	h := (l.Spec.InputHeight+2*l.Spec.Padding-l.Spec.KernelSize)/stride + 1
	w := (l.Spec.InputWidth+2*l.Spec.Padding-l.Spec.KernelSize)/stride + 1
	return h, w
}

func (l *Conv2DLayer) inputSize() int {
	return l.Spec.InputHeight * l.Spec.InputWidth * l.Spec.InChannels
}

func (l *Conv2DLayer) outputSize() int {
	return l.outputH * l.outputW * l.Spec.OutChannels
}

func (l *Conv2DLayer) allocateBuffers(labelPrefix string) error {
	var err error
	if l.InputBuffer, err = NewStorageBuffer(l.ctx, labelPrefix+"_In", l.inputSize()); err != nil {
		return err
	}
	if l.OutputBuffer, err = NewStorageBuffer(l.ctx, labelPrefix+"_Out", l.outputSize()); err != nil {
		return err
	}
	if l.GradOutputBuffer, err = NewStorageBuffer(l.ctx, labelPrefix+"_OutGrad", l.outputSize()); err != nil {
		return err
	}
	if l.InputGradientBuffer, err = NewStorageBuffer(l.ctx, labelPrefix+"_InGrad", l.inputSize()); err != nil {
		return err
	}
	if l.WeightBuffer, err = NewFloatBuffer(l.ctx, l.Spec.Weights, wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst); err != nil {
		return err
	}
	l.BiasBuffer, err = NewFloatBuffer(l.ctx, l.Spec.Bias, wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst)
	return err
}

// GenerateShader returns the forward WGSL kernel: one invocation per output element
func (l *Conv2DLayer) GenerateShader() string {
	return fmt.Sprintf(`
		@group(0) @binding(0) var<storage, read> input : array<f32>;
		@group(0) @binding(1) var<storage, read> weights : array<f32>;
		@group(0) @binding(2) var<storage, read> bias : array<f32>;
		@group(0) @binding(3) var<storage, read_write> output : array<f32>;

		const IN_H: i32 = %d;
		const IN_W: i32 = %d;
		const IN_CH: u32 = %du;
		const OUT_CH: u32 = %du;
		const K: i32 = %d;
		const STRIDE: i32 = %d;
		const PADDING: i32 = %d;
		const OUT_H: u32 = %du;
		const OUT_W: u32 = %du;

		@compute @workgroup_size(256)
		fn main(@builtin(global_invocation_id) gid: vec3<u32>,
				@builtin(num_workgroups) groups: vec3<u32>) {
			let idx = gid.y * groups.x * 256u + gid.x;
			let total = OUT_CH * OUT_H * OUT_W;
			if (idx >= total) { return; }

			// Output layout: [C, H, W]
			let out_c = idx / (OUT_H * OUT_W);
			let out_h = i32((idx / OUT_W) %% OUT_H);
			let out_w = i32(idx %% OUT_W);

			var sum: f32 = bias[out_c];

			for (var in_c: u32 = 0u; in_c < IN_CH; in_c++) {
				for (var kh: i32 = 0; kh < K; kh++) {
					let in_h = out_h * STRIDE + kh - PADDING;
					if (in_h < 0 || in_h >= IN_H) { continue; }
					for (var kw: i32 = 0; kw < K; kw++) {
						let in_w = out_w * STRIDE + kw - PADDING;
						if (in_w < 0 || in_w >= IN_W) { continue; }
						let i_idx = in_c * u32(IN_H * IN_W) + u32(in_h * IN_W + in_w);
						// Weights: [OUT_CH, IN_CH, K, K]
						let w_idx = (out_c * IN_CH + in_c) * u32(K * K) + u32(kh * K + kw);
						sum += input[i_idx] * weights[w_idx];
					}
				}
			}

			output[idx] = sum;
		}
	`, l.Spec.InputHeight, l.Spec.InputWidth, l.Spec.InChannels, l.Spec.OutChannels,
		l.Spec.KernelSize, l.stride(), l.Spec.Padding, l.outputH, l.outputW)
}

// GenerateBackwardShader returns the input-gradient WGSL kernel (transposed convolution):
// one invocation per input element, visiting only the output positions it contributed to.
func (l *Conv2DLayer) GenerateBackwardShader() string {
	return fmt.Sprintf(`
		@group(0) @binding(0) var<storage, read> d_output : array<f32>;
		@group(0) @binding(1) var<storage, read> weights : array<f32>;
		@group(0) @binding(2) var<storage, read_write> d_input : array<f32>;

		const IN_H: u32 = %du;
		const IN_W: u32 = %du;
		const IN_CH: u32 = %du;
		const OUT_CH: u32 = %du;
		const K: i32 = %d;
		const STRIDE: i32 = %d;
		const PADDING: i32 = %d;
		const OUT_H: i32 = %d;
		const OUT_W: i32 = %d;

		@compute @workgroup_size(256)
		fn main(@builtin(global_invocation_id) gid: vec3<u32>,
				@builtin(num_workgroups) groups: vec3<u32>) {
			let idx = gid.y * groups.x * 256u + gid.x;
			let in_total = IN_CH * IN_H * IN_W;
			if (idx >= in_total) { return; }

			// Input layout: [C, H, W]
			let in_c = idx / (IN_H * IN_W);
			let in_h = i32((idx / IN_W) %% IN_H);
			let in_w = i32(idx %% IN_W);

			var grad: f32 = 0.0;

			for (var kh: i32 = 0; kh < K; kh++) {
				let nh = in_h + PADDING - kh;
				if (nh < 0 || nh %% STRIDE != 0) { continue; }
				let out_h = nh / STRIDE;
				if (out_h >= OUT_H) { continue; }
				for (var kw: i32 = 0; kw < K; kw++) {
					let nw = in_w + PADDING - kw;
					if (nw < 0 || nw %% STRIDE != 0) { continue; }
					let out_w = nw / STRIDE;
					if (out_w >= OUT_W) { continue; }
					for (var out_c: u32 = 0u; out_c < OUT_CH; out_c++) {
						let do_idx = out_c * u32(OUT_H * OUT_W) + u32(out_h * OUT_W + out_w);
						let w_idx = (out_c * IN_CH + in_c) * u32(K * K) + u32(kh * K + kw);
						grad += d_output[do_idx] * weights[w_idx];
					}
				}
			}

			d_input[idx] = grad;
		}
	`, l.Spec.InputHeight, l.Spec.InputWidth, l.Spec.InChannels, l.Spec.OutChannels,
		l.Spec.KernelSize, l.stride(), l.Spec.Padding, l.outputH, l.outputW)
}

func (l *Conv2DLayer) compile(labelPrefix string) error {
	var err error
	l.pipeline, err = l.compileShader(labelPrefix+"_Fwd", l.GenerateShader())
	if err != nil {
		return err
	}
	l.bwPipeline, err = l.compileShader(labelPrefix+"_Bwd", l.GenerateBackwardShader())
	return err
}

func (l *Conv2DLayer) compileShader(label, code string) (*wgpu.ComputePipeline, error) {
	mod, err := l.ctx.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          label + "_Shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: code},
	})
	if err != nil {
		return nil, err
	}
	defer mod.Release()
	return l.ctx.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:   label + "_Pipe",
		Compute: wgpu.ProgrammableStageDescriptor{Module: mod, EntryPoint: "main"},
	})
}

func (l *Conv2DLayer) createBindGroups(labelPrefix string) error {
	var err error
	l.bindGroup, err = l.ctx.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  labelPrefix + "_Bind",
		Layout: l.pipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: l.InputBuffer, Size: l.InputBuffer.GetSize()},
			{Binding: 1, Buffer: l.WeightBuffer, Size: l.WeightBuffer.GetSize()},
			{Binding: 2, Buffer: l.BiasBuffer, Size: l.BiasBuffer.GetSize()},
			{Binding: 3, Buffer: l.OutputBuffer, Size: l.OutputBuffer.GetSize()},
		},
	})
	if err != nil {
		return err
	}
	l.bwBindGroup, err = l.ctx.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  labelPrefix + "_BwdBind",
		Layout: l.bwPipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: l.GradOutputBuffer, Size: l.GradOutputBuffer.GetSize()},
			{Binding: 1, Buffer: l.WeightBuffer, Size: l.WeightBuffer.GetSize()},
			{Binding: 2, Buffer: l.InputGradientBuffer, Size: l.InputGradientBuffer.GetSize()},
		},
	})
	return err
}

// run uploads src into dst, dispatches one pass over total invocations and reads back out
func (l *Conv2DLayer) run(pipeline *wgpu.ComputePipeline, bindGroup *wgpu.BindGroup,
	dst *wgpu.Buffer, src []float32, total int, out *wgpu.Buffer) ([]float32, error) {
	l.ctx.Queue.WriteBuffer(dst, 0, wgpu.ToBytes(src))

	enc, err := l.ctx.Device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, err
	}
	x, y, err := DispatchSize(total, l.maxWorkgroups)
	if err != nil {
		enc.Release()
		return nil, err
	}
	pass := enc.BeginComputePass(nil)
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(x, y, 1)
	err = pass.End()
	pass.Release()
	if err != nil {
		enc.Release()
		return nil, err
	}
	cmd, err := enc.Finish(nil)
	if err != nil {
		enc.Release()
		return nil, err
	}
	enc.Release()
	l.ctx.Queue.Submit(cmd)
	cmd.Release()

	return ReadBuffer(l.ctx, out, total)
}

// Forward convolves one [InChannels, InputHeight, InputWidth] input
func (l *Conv2DLayer) Forward(input []float32) ([]float32, error) {
	if len(input) != l.inputSize() {
		return nil, fmt.Errorf("input size mismatch: got %d, expected %d", len(input), l.inputSize())
	}
	return l.run(l.pipeline, l.bindGroup, l.InputBuffer, input, l.outputSize(), l.OutputBuffer)
}

// Backward returns the gradient with respect to the input for one output gradient
func (l *Conv2DLayer) Backward(gradOutput []float32) ([]float32, error) {
	if len(gradOutput) != l.outputSize() {
		return nil, fmt.Errorf("output gradient size mismatch: got %d, expected %d", len(gradOutput), l.outputSize())
	}
	return l.run(l.bwPipeline, l.bwBindGroup, l.GradOutputBuffer, gradOutput, l.inputSize(), l.InputGradientBuffer)
}

// Cleanup releases all GPU resources held by the layer
func (l *Conv2DLayer) Cleanup() {
	bufs := []*wgpu.Buffer{l.InputBuffer, l.OutputBuffer, l.WeightBuffer, l.BiasBuffer, l.GradOutputBuffer, l.InputGradientBuffer}
	for _, b := range bufs {
		if b != nil {
			b.Destroy()
		}
	}
	if l.pipeline != nil {
		l.pipeline.Release()
	}
	if l.bindGroup != nil {
		l.bindGroup.Release()
	}
	if l.bwPipeline != nil {
		l.bwPipeline.Release()
	}
	if l.bwBindGroup != nil {
		l.bwBindGroup.Release()
	}
}
