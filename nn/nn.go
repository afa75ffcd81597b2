// Package nn provides a frozen convolutional feature network with CPU and GPU execution.
//
// A network is an ordered stack of named layers (Conv2D, ReLU, MaxPool2D). Data flows
// sequentially through the stack in planar [channels][height][width] float32 layout.
// Weights are fixed after construction: the package computes activations and gradients
// with respect to the network input, never weight updates.
//
// Every layer name is entered into a registry when the network is built, so requested
// layer ids can be validated once, before any compute:
//
//	network, _ := nn.NewVGG19(rand.New(rand.NewSource(1)))
//	if err := network.Validate([]string{"relu4_3"}); err != nil {
//		// unknown layer
//	}
//
//	// Forward pass stops at the deepest requested layer
//	pass, _ := network.Forward(input, []string{"relu4_3"})
//	act := pass.Activations()["relu4_3"]
//
//	// Gradient of the caller's objective with respect to the input
//	gradInput, _ := pass.Backward(map[string]*nn.Tensor{"relu4_3": dObjective})
//
// Conv2D layers can be dispatched to WebGPU with Network.UseGPU; the CPU path is the reference.
package nn
