package nn

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
)

var (
	// ErrUnknownLayer is returned when a requested layer id is not in the network's registry
	ErrUnknownLayer = errors.New("unknown layer")
	// ErrDuplicateLayer is returned when two layers of a network share a name
	ErrDuplicateLayer = errors.New("duplicate layer name")
	// ErrUnknownArchitecture is returned by BuildArchitecture for unregistered backbones
	ErrUnknownArchitecture = errors.New("unknown architecture")
)

// LayerInfo describes one registered layer
type LayerInfo struct {
	Name  string    `json:"name"`
	Index int       `json:"index"`
	Type  LayerType `json:"type"`
}

// LayerRegistry is the fixed name -> position mapping of a network, built once at construction
type LayerRegistry struct {
	byName map[string]int
	order  []LayerInfo
}

func newLayerRegistry(layers []LayerConfig) (*LayerRegistry, error) {
	r := &LayerRegistry{
		byName: make(map[string]int, len(layers)),
		order:  make([]LayerInfo, 0, len(layers)),
	}
	for i, l := range layers {
		if l.Name == "" {
			return nil, fmt.Errorf("layer %d has no name", i)
		}
		if _, dup := r.byName[l.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateLayer, l.Name)
		}
		r.byName[l.Name] = i
		r.order = append(r.order, LayerInfo{Name: l.Name, Index: i, Type: l.Type})
	}
	return r, nil
}

// Lookup returns the stack position of a layer
func (r *LayerRegistry) Lookup(name string) (int, bool) {
	idx, ok := r.byName[name]
	return idx, ok
}

// Names returns the layer names in stack order
func (r *LayerRegistry) Names() []string {
	names := make([]string, len(r.order))
	for i, info := range r.order {
		names[i] = info.Name
	}
	return names
}

// Layers returns metadata about all registered layers in stack order
func (r *LayerRegistry) Layers() []LayerInfo {
	out := make([]LayerInfo, len(r.order))
	copy(out, r.order)
	return out
}

// Resolve maps ids to stack positions, failing on the first unknown id
func (r *LayerRegistry) Resolve(ids []string) ([]int, error) {
	out := make([]int, len(ids))
	for i, id := range ids {
		idx, ok := r.byName[id]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownLayer, id)
		}
		out[i] = idx
	}
	return out, nil
}

// architectureRegistry is the registry of backbone builders available by name
var architectureRegistry = map[string]func(rng *rand.Rand) (*Network, error){
	"vgg16": NewVGG16,
	"vgg19": NewVGG19,
}

// ListArchitectures returns the registered backbone names, sorted
func ListArchitectures() []string {
	names := make([]string, 0, len(architectureRegistry))
	for name := range architectureRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildArchitecture builds a registered backbone by name.
// rng seeds the He initialization; pass nil to get zero weights ready for LoadWeights.
func BuildArchitecture(name string, rng *rand.Rand) (*Network, error) {
	build, ok := architectureRegistry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s (available: %v)", ErrUnknownArchitecture, name, ListArchitectures())
	}
	return build(rng)
}
