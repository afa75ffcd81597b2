package nn

// activateCPU applies the activation function on CPU
func activateCPU(v float32, activation ActivationType) float32 {
	switch activation {
	case ActivationReLU:
		if v < 0 {
			return 0
		}
		return v
	case ActivationLeakyReLU:
		if v < 0 {
			return v * 0.1
		}
		return v
	default:
		return v
	}
}

// activateDerivativeCPU computes the derivative of the activation function
// Note: This computes the derivative with respect to the PRE-activation value
func activateDerivativeCPU(preActivation float32, activation ActivationType) float32 {
	switch activation {
	case ActivationReLU:
		// d/dv max(0, v) = 1 if v > 0, else 0
		if preActivation > 0 {
			return 1
		}
		return 0
	case ActivationLeakyReLU:
		if preActivation >= 0 {
			return 1
		}
		return 0.1
	default:
		return 1
	}
}

// activationForwardCPU applies the activation element-wise, returning the output.
// The input is kept by the caller as the pre-activation for backward.
func activationForwardCPU(input []float32, activation ActivationType) []float32 {
	out := make([]float32, len(input))
	for i, v := range input {
		out[i] = activateCPU(v, activation)
	}
	return out
}

// activationBackwardCPU multiplies the incoming gradient by the activation derivative
func activationBackwardCPU(gradOutput, preActivation []float32, activation ActivationType) []float32 {
	gradInput := make([]float32, len(gradOutput))
	for i, g := range gradOutput {
		gradInput[i] = g * activateDerivativeCPU(preActivation[i], activation)
	}
	return gradInput
}
