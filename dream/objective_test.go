package dream

import (
	"math"
	"testing"

	"github.com/openfluke/deepdream/nn"
)

func TestObjectiveModes(t *testing.T) {
	acts := map[string]*nn.Tensor{
		"a": nn.NewTensorFromSlice([]float32{1, -2, 3, 0}, 1, 2, 2),
		"b": nn.NewTensorFromSlice([]float32{2, 2}, 2, 1, 1),
	}

	tests := []struct {
		mode   ObjectiveMode
		want   float64
		gradA0 float32
		gradB1 float32
	}{
		{ObjectiveMean, 14.0/4 + 8.0/2, 2.0 / 4, 2.0},
		{ObjectiveSum, 14 + 8, 2, 4},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			obj, grads, err := tt.mode.evaluate(acts, []string{"a", "b"})
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if math.Abs(obj-tt.want) > 1e-9 {
				t.Errorf("objective: expected %f, got %f", tt.want, obj)
			}
			if math.Abs(float64(grads["a"].Data[0]-tt.gradA0)) > 1e-6 {
				t.Errorf("grad a[0]: expected %f, got %f", tt.gradA0, grads["a"].Data[0])
			}
			if math.Abs(float64(grads["b"].Data[1]-tt.gradB1)) > 1e-6 {
				t.Errorf("grad b[1]: expected %f, got %f", tt.gradB1, grads["b"].Data[1])
			}
		})
	}
}

func TestObjectiveMissingActivation(t *testing.T) {
	if _, _, err := ObjectiveMean.evaluate(map[string]*nn.Tensor{}, []string{"x"}); err == nil {
		t.Error("Expected error for missing activation")
	}
}
