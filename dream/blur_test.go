package dream

import (
	"math"
	"testing"
)

func TestGaussianKernelNormalized(t *testing.T) {
	for _, sigma := range []float64{0.25, 1, 3, 10} {
		k := gaussianKernel(sigma, blurKernelSize)
		sum := 0.0
		for _, v := range k {
			sum += v
		}
		if math.Abs(sum-1) > 1e-12 {
			t.Errorf("sigma %v: kernel sums to %f", sigma, sum)
		}
		if k[0] != k[len(k)-1] || k[4] < k[3] {
			t.Errorf("sigma %v: kernel not symmetric around its peak: %v", sigma, k)
		}
	}
	if k := gaussianKernel(0, blurKernelSize); k[4] != 1 {
		t.Errorf("sigma 0 should be the identity, got %v", k)
	}
}

func TestReflectIndices(t *testing.T) {
	tests := []struct{ i, n, want int }{
		{-1, 5, 1},
		{-4, 5, 4},
		{5, 5, 3},
		{8, 5, 0},
		{-6, 3, 2},
		{3, 1, 0},
	}
	for _, tt := range tests {
		if got := reflect(tt.i, tt.n); got != tt.want {
			t.Errorf("reflect(%d, %d) = %d, want %d", tt.i, tt.n, got, tt.want)
		}
	}
}

func TestCascadeBlurPreservesConstant(t *testing.T) {
	img := NewImage(6, 3, 3)
	for i := range img.Pix {
		img.Pix[i] = 2.5
	}
	out := CascadeBlur(img, 1.7)
	if !out.SameSize(img) || out.Channels != 3 {
		t.Fatalf("Blur changed shape")
	}
	for i, v := range out.Pix {
		if math.Abs(v-2.5) > 1e-9 {
			t.Fatalf("pixel %d = %f", i, v)
		}
	}
}

func TestBlurSmoothsImpulse(t *testing.T) {
	img := NewImage(21, 21, 1)
	img.Set(10, 10, 0, 1)
	out := GaussianBlur(img, 1)

	total := 0.0
	for _, v := range out.Pix {
		total += v
	}
	if math.Abs(total-1) > 1e-9 {
		t.Errorf("Mass not preserved: %f", total)
	}
	if out.At(10, 10, 0) >= 1 || out.At(10, 10, 0) <= out.At(9, 10, 0) {
		t.Errorf("Impulse not spread: centre %f, neighbour %f", out.At(10, 10, 0), out.At(9, 10, 0))
	}
}
