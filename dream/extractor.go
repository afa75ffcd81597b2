package dream

import (
	"github.com/openfluke/deepdream/nn"
)

// Capture is one forward pass: the activations that were asked for, and the way back to the input
type Capture interface {
	Activations() map[string]*nn.Tensor
	// Backward maps dObjective/dActivation per layer to dObjective/dInput
	Backward(grads map[string]*nn.Tensor) (*nn.Tensor, error)
}

// FeatureExtractor is a frozen network with named intermediate layers
type FeatureExtractor interface {
	Forward(input *nn.Tensor, layerIDs []string) (Capture, error)
	// Validate rejects unknown layer ids without running anything
	Validate(layerIDs []string) error
	InputChannels() int
}

// NetworkExtractor adapts an nn.Network
type NetworkExtractor struct {
	Network *nn.Network
}

func NewNetworkExtractor(network *nn.Network) *NetworkExtractor {
	return &NetworkExtractor{Network: network}
}

func (e *NetworkExtractor) Forward(input *nn.Tensor, layerIDs []string) (Capture, error) {
	pass, err := e.Network.Forward(input, layerIDs)
	if err != nil {
		return nil, err
	}
	return pass, nil
}

func (e *NetworkExtractor) Validate(layerIDs []string) error {
	return e.Network.Validate(layerIDs)
}

func (e *NetworkExtractor) InputChannels() int {
	return e.Network.InputChannels
}
