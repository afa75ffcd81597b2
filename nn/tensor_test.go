package nn

import (
	"math"
	"math/rand"
	"testing"
)

// TestTensorCreation verifies basic tensor operations
func TestTensorCreation(t *testing.T) {
	tensor := NewTensor(3, 4, 5)
	if tensor.Size() != 60 {
		t.Errorf("Expected size 60, got %d", tensor.Size())
	}
	if tensor.Index(1, 2, 3) != 1*20+2*5+3 {
		t.Errorf("Unexpected index %d", tensor.Index(1, 2, 3))
	}

	data := []float32{1, 2, 3, 4, 5, 6}
	tensor2 := NewTensorFromSlice(data, 1, 2, 3)
	if tensor2 == nil || tensor2.Data[0] != 1 || tensor2.Data[5] != 6 {
		t.Errorf("Data not correctly initialized")
	}

	// Size mismatch should return nil
	if NewTensorFromSlice(data, 2, 2, 2) != nil {
		t.Error("Mismatched shape should return nil")
	}
}

// TestTensorClone verifies tensor cloning
func TestTensorClone(t *testing.T) {
	original := NewTensorFromSlice([]float32{1, 2, 3, 4}, 1, 2, 2)
	clone := original.Clone()

	original.Data[0] = 100

	if clone.Data[0] != 1 {
		t.Errorf("Clone was modified when original changed")
	}
	if !clone.SameShape(original) {
		t.Errorf("Clone shape differs from original")
	}
}

// TestActivations verifies activation functions and their derivatives
func TestActivations(t *testing.T) {
	if activateCPU(-1.0, ActivationReLU) != 0 {
		t.Errorf("ReLU of negative should be 0")
	}
	if activateCPU(2.0, ActivationReLU) != 2.0 {
		t.Errorf("ReLU of positive should pass through")
	}
	if math.Abs(float64(activateCPU(-1.0, ActivationLeakyReLU)+0.1)) > 1e-6 {
		t.Errorf("LeakyReLU of -1 should be -0.1, got %f", activateCPU(-1.0, ActivationLeakyReLU))
	}

	grad := activationBackwardCPU([]float32{1, 1, 1}, []float32{-2, 0, 3}, ActivationReLU)
	want := []float32{0, 0, 1}
	for i := range want {
		if grad[i] != want[i] {
			t.Errorf("ReLU backward[%d]: expected %f, got %f", i, want[i], grad[i])
		}
	}
}

// TestConv2DForwardKnownValues checks a single 3x3 conv against hand-computed sums
func TestConv2DForwardKnownValues(t *testing.T) {
	layer := InitConv2DLayer("c", 1, 3, 1, 1, 1, nil)
	for i := range layer.Kernel {
		layer.Kernel[i] = 1
	}
	layer.Bias[0] = 0.5

	input := NewTensorFromSlice([]float32{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	}, 1, 3, 3)

	out, err := conv2DForwardCPU(input, &layer)
	if err != nil {
		t.Fatalf("conv2DForwardCPU: %v", err)
	}
	if out.Height != 3 || out.Width != 3 || out.Channels != 1 {
		t.Fatalf("Expected 1x3x3 output, got %dx%dx%d", out.Channels, out.Height, out.Width)
	}

	// Centre sees everything, corner sees a 2x2 block
	if math.Abs(float64(out.Data[4]-45.5)) > 1e-5 {
		t.Errorf("centre: expected 45.5, got %f", out.Data[4])
	}
	if math.Abs(float64(out.Data[0]-12.5)) > 1e-5 {
		t.Errorf("corner: expected 12.5, got %f", out.Data[0])
	}
}

// TestMaxPoolRoutesGradient verifies pooling picks the max and routes gradient to it
func TestMaxPoolRoutesGradient(t *testing.T) {
	layer := InitMaxPool2DLayer("p", 2, 2)
	input := NewTensorFromSlice([]float32{
		1, 9, 2, 0,
		3, 4, 8, 1,
	}, 1, 2, 4)

	out, argmax, err := maxPool2DForwardCPU(input, &layer)
	if err != nil {
		t.Fatalf("maxPool2DForwardCPU: %v", err)
	}
	if out.Width != 2 || out.Height != 1 {
		t.Fatalf("Expected 1x2 output, got %dx%d", out.Height, out.Width)
	}
	if out.Data[0] != 9 || out.Data[1] != 8 {
		t.Errorf("Expected [9 8], got %v", out.Data)
	}

	grad := maxPool2DBackwardCPU(NewTensorFromSlice([]float32{1, 2}, 1, 1, 2), argmax, 1, 2, 4)
	want := []float32{0, 1, 0, 0, 0, 0, 2, 0}
	for i := range want {
		if grad.Data[i] != want[i] {
			t.Errorf("grad[%d]: expected %f, got %f", i, want[i], grad.Data[i])
		}
	}
}

// TestConvInputGradientMatchesFiniteDifference checks Pass.Backward on a linear conv stack
func TestConvInputGradientMatchesFiniteDifference(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	network, err := NewNetwork("linear", 2, []LayerConfig{
		InitConv2DLayer("conv1", 2, 3, 1, 1, 3, rng),
		InitConv2DLayer("conv2", 3, 3, 2, 0, 2, rng),
	})
	if err != nil {
		t.Fatalf("NewNetwork: %v", err)
	}

	input := NewTensor(2, 6, 5)
	for i := range input.Data {
		input.Data[i] = float32(rng.Float64())
	}

	// Linear objective: sum(w * a) so dObjective/da = w
	pass, err := network.Forward(input, []string{"conv1", "conv2"})
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	weights := map[string]*Tensor{}
	for id, act := range pass.Activations() {
		w := NewTensor(act.Channels, act.Height, act.Width)
		for i := range w.Data {
			w.Data[i] = float32(rng.Float64()*2 - 1)
		}
		weights[id] = w
	}
	objective := func(x *Tensor) float64 {
		p, err := network.Forward(x, []string{"conv1", "conv2"})
		if err != nil {
			t.Fatalf("Forward: %v", err)
		}
		sum := 0.0
		for id, act := range p.Activations() {
			for i, v := range act.Data {
				sum += float64(v) * float64(weights[id].Data[i])
			}
		}
		return sum
	}

	grad, err := pass.Backward(weights)
	if err != nil {
		t.Fatalf("Backward: %v", err)
	}
	if !grad.SameShape(input) {
		t.Fatalf("Gradient shape %dx%dx%d does not match input", grad.Channels, grad.Height, grad.Width)
	}

	const eps = 0.5
	for _, idx := range []int{0, 7, 13, 29, 31, 59} {
		plus := input.Clone()
		plus.Data[idx] += eps
		minus := input.Clone()
		minus.Data[idx] -= eps
		numeric := (objective(plus) - objective(minus)) / (2 * eps)
		if math.Abs(numeric-float64(grad.Data[idx])) > 1e-3 {
			t.Errorf("grad[%d]: analytic %f, numeric %f", idx, grad.Data[idx], numeric)
		}
	}
}

// TestForwardStopsAtDeepestRequestedLayer verifies only requested activations are returned
func TestForwardStopsAtDeepestRequestedLayer(t *testing.T) {
	network, err := NewVGG16(rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("NewVGG16: %v", err)
	}

	input := NewTensor(3, 8, 8)
	pass, err := network.Forward(input, []string{"relu1_2"})
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if len(pass.traces) != 4 {
		t.Errorf("Expected 4 traced layers (conv1_1..relu1_2), got %d", len(pass.traces))
	}
	act, ok := pass.Activation("relu1_2")
	if !ok {
		t.Fatal("relu1_2 activation missing")
	}
	if act.Channels != 64 || act.Height != 8 || act.Width != 8 {
		t.Errorf("Expected 64x8x8, got %dx%dx%d", act.Channels, act.Height, act.Width)
	}

	if _, err := pass.Backward(map[string]*Tensor{"relu2_1": act}); err == nil {
		t.Error("Backward should reject layers that were not captured")
	}
}

// TestBackwardWithoutGradientsIsZero verifies an empty gradient map yields a zero input gradient
func TestBackwardWithoutGradientsIsZero(t *testing.T) {
	network, err := NewNetwork("tiny", 1, []LayerConfig{
		InitConv2DLayer("conv", 1, 3, 1, 1, 2, rand.New(rand.NewSource(3))),
		InitActivationLayer("relu", ActivationReLU),
	})
	if err != nil {
		t.Fatalf("NewNetwork: %v", err)
	}
	pass, err := network.Forward(NewTensor(1, 4, 4), []string{"relu"})
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	grad, err := pass.Backward(nil)
	if err != nil {
		t.Fatalf("Backward: %v", err)
	}
	for i, v := range grad.Data {
		if v != 0 {
			t.Fatalf("grad[%d] = %f, expected 0", i, v)
		}
	}
}
