package nn

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
)

// NetworkConfig is the JSON form of a network architecture. Weights live in a
// separate safetensors file keyed by each layer's WeightKey.
type NetworkConfig struct {
	ID            string            `json:"id"`
	InputChannels int               `json:"input_channels"`
	Layers        []LayerDefinition `json:"layers"`
	Seed          int64             `json:"seed,omitempty"` // non-zero: He-initialize conv weights
}

// LayerDefinition defines a single layer's configuration
type LayerDefinition struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Activation string `json:"activation,omitempty"`
	WeightKey  string `json:"weight_key,omitempty"`

	// Conv2D and MaxPool2D fields
	InputChannels int `json:"input_channels,omitempty"`
	Filters       int `json:"filters,omitempty"`
	KernelSize    int `json:"kernel_size,omitempty"`
	Stride        int `json:"stride,omitempty"`
	Padding       int `json:"padding,omitempty"`
}

func activationToString(a ActivationType) string {
	switch a {
	case ActivationReLU:
		return "relu"
	case ActivationLeakyReLU:
		return "leaky_relu"
	default:
		return "linear"
	}
}

func stringToActivation(s string) (ActivationType, error) {
	switch s {
	case "relu", "":
		return ActivationReLU, nil
	case "leaky_relu":
		return ActivationLeakyReLU, nil
	case "linear":
		return ActivationLinear, nil
	default:
		return 0, fmt.Errorf("unknown activation %q", s)
	}
}

// Config describes the network's architecture
func (n *Network) Config() NetworkConfig {
	config := NetworkConfig{
		ID:            n.Name,
		InputChannels: n.InputChannels,
		Layers:        make([]LayerDefinition, len(n.Layers)),
	}
	for i := range n.Layers {
		l := &n.Layers[i]
		def := LayerDefinition{
			Name:      l.Name,
			Type:      l.Type.String(),
			WeightKey: l.WeightKey,
		}
		switch l.Type {
		case LayerConv2D:
			def.InputChannels = l.InputChannels
			def.Filters = l.Filters
			def.KernelSize = l.KernelSize
			def.Stride = l.Stride
			def.Padding = l.Padding
		case LayerActivation:
			def.Activation = activationToString(l.Activation)
		case LayerMaxPool2D:
			def.KernelSize = l.KernelSize
			def.Stride = l.Stride
		}
		config.Layers[i] = def
	}
	return config
}

// SaveConfig writes the architecture as indented JSON
func (n *Network) SaveConfig(filename string) error {
	data, err := json.MarshalIndent(n.Config(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(filename, data, 0644)
}

// BuildNetworkFromJSON creates a network from a JSON configuration string.
// Conv weights start at zero unless the config carries a seed.
func BuildNetworkFromJSON(jsonConfig string) (*Network, error) {
	var config NetworkConfig
	if err := json.Unmarshal([]byte(jsonConfig), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return BuildNetwork(config)
}

// BuildNetworkFromFile creates a network from a JSON configuration file
func BuildNetworkFromFile(filename string) (*Network, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return BuildNetworkFromJSON(string(data))
}

// BuildNetwork assembles and validates the layers of config
func BuildNetwork(config NetworkConfig) (*Network, error) {
	var rng *rand.Rand
	if config.Seed != 0 {
		rng = rand.New(rand.NewSource(config.Seed))
	}

	layers := make([]LayerConfig, len(config.Layers))
	for i, def := range config.Layers {
		layer, err := buildLayerConfig(def, rng)
		if err != nil {
			return nil, fmt.Errorf("failed to build layer %d (%s): %w", i, def.Name, err)
		}
		layers[i] = layer
	}
	return NewNetwork(config.ID, config.InputChannels, layers)
}

// buildLayerConfig constructs a LayerConfig from a LayerDefinition
func buildLayerConfig(def LayerDefinition, rng *rand.Rand) (LayerConfig, error) {
	var config LayerConfig

	switch def.Type {
	case "conv2d":
		config = InitConv2DLayer(def.Name, def.InputChannels, def.KernelSize, def.Stride, def.Padding, def.Filters, rng)
	case "activation":
		act, err := stringToActivation(def.Activation)
		if err != nil {
			return config, err
		}
		config = InitActivationLayer(def.Name, act)
	case "maxpool2d":
		config = InitMaxPool2DLayer(def.Name, def.KernelSize, def.Stride)
	default:
		return config, fmt.Errorf("unknown layer type %q", def.Type)
	}
	config.WeightKey = def.WeightKey
	return config, nil
}
