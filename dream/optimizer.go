package dream

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// gradientEpsilon keeps the std normalization finite for flat gradients
const gradientEpsilon = 1e-8

// stepResult is what one gradient-ascent iteration produced
type stepResult struct {
	image     *Image
	objective float64
	gradStd   float64
	sigma     float64
}

// step performs one jittered gradient-ascent update on img and returns a new image.
// img itself is never modified. A non-finite value yields a *DivergenceError with only
// Quantity set; the caller fills in the position.
func (d *Dreamer) step(img *Image, iteration int, rng *rand.Rand) (stepResult, error) {
	cfg := &d.cfg

	dy, dx := 0, 0
	if cfg.JitterMax > 0 {
		dy = rng.Intn(2*cfg.JitterMax+1) - cfg.JitterMax
		dx = rng.Intn(2*cfg.JitterMax+1) - cfg.JitterMax
	}
	shifted := Roll(img, dy, dx)

	input, err := d.normalizer.ToNetwork(shifted)
	if err != nil {
		return stepResult{}, &ConfigError{Field: "image", Err: err}
	}
	capture, err := d.extractor.Forward(input, cfg.Layers)
	if err != nil {
		return stepResult{}, &ResourceError{Resource: "extractor forward", Err: err}
	}

	objective, actGrads, err := cfg.Objective.evaluate(capture.Activations(), cfg.Layers)
	if err != nil {
		return stepResult{}, &ResourceError{Resource: "extractor forward", Err: err}
	}
	if math.IsNaN(objective) || math.IsInf(objective, 0) {
		return stepResult{}, &DivergenceError{Quantity: "objective"}
	}

	inputGrad, err := capture.Backward(actGrads)
	if err != nil {
		return stepResult{}, &ResourceError{Resource: "extractor backward", Err: err}
	}
	grad, err := d.normalizer.GradientToPixel(inputGrad, img.Channels)
	if err != nil {
		return stepResult{}, &ResourceError{Resource: "extractor backward", Err: err}
	}
	if !allFinite(grad.Pix) {
		return stepResult{}, &DivergenceError{Quantity: "gradient"}
	}

	std := 0.0
	if len(grad.Pix) > 1 {
		std = stat.StdDev(grad.Pix, nil)
	}
	floats.Scale(1/(std+gradientEpsilon), grad.Pix)

	sigma := 0.0
	if cfg.Smoothing {
		sigma = smoothingSigma(iteration, cfg.Iterations, cfg.SmoothingSigma)
		grad = CascadeBlur(grad, sigma)
	}

	floats.AddScaled(shifted.Pix, cfg.LearningRate, grad.Pix)
	if !allFinite(shifted.Pix) {
		return stepResult{}, &DivergenceError{Quantity: "image"}
	}

	out := Roll(shifted, -dy, -dx)
	out.Clip()
	return stepResult{image: out, objective: objective, gradStd: std, sigma: sigma}, nil
}

// smoothingSigma grows linearly from base over the octave's iterations
func smoothingSigma(iteration, iterations int, base float64) float64 {
	return float64(iteration+1)/float64(iterations)*2 + base
}

func allFinite(v []float64) bool {
	// Any NaN or Inf poisons the sum
	s := floats.Sum(v)
	if !math.IsNaN(s) && !math.IsInf(s, 0) {
		return true
	}
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
