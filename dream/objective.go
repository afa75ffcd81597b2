package dream

import (
	"fmt"

	"github.com/openfluke/deepdream/nn"
)

// evaluate reduces each requested activation to mean(a²) or Σa², sums across layers,
// and returns the gradient of that sum with respect to every activation.
func (m ObjectiveMode) evaluate(acts map[string]*nn.Tensor, layers []string) (float64, map[string]*nn.Tensor, error) {
	total := 0.0
	grads := make(map[string]*nn.Tensor, len(layers))

	for _, id := range layers {
		a, ok := acts[id]
		if !ok || a == nil || a.Size() == 0 {
			return 0, nil, fmt.Errorf("extractor returned no activation for %q", id)
		}

		scale := 1.0
		if m == ObjectiveMean {
			scale = 1 / float64(a.Size())
		}

		sq := 0.0
		g := nn.NewTensor(a.Channels, a.Height, a.Width)
		for i, v := range a.Data {
			sq += float64(v) * float64(v)
			g.Data[i] = float32(2 * scale * float64(v))
		}
		total += sq * scale
		grads[id] = g
	}
	return total, grads, nil
}
