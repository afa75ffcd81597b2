package dream

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"
)

// ObjectiveMode selects how a layer activation is reduced to a scalar
type ObjectiveMode string

const (
	ObjectiveMean ObjectiveMode = "mean" // mean(a²) per layer
	ObjectiveSum  ObjectiveMode = "sum"  // Σ a² per layer
)

// Budget caps a run. Zero fields mean no limit.
type Budget struct {
	MaxIterations int           `json:"max_iterations,omitempty"`
	MaxDuration   time.Duration `json:"max_duration,omitempty"`
}

// RunConfig holds all parameters of one dream run
type RunConfig struct {
	Layers         []string      `json:"layers"`
	Octaves        int           `json:"octaves"`
	OctaveScale    float64       `json:"octave_scale"`
	Iterations     int           `json:"iterations"` // per octave
	LearningRate   float64       `json:"learning_rate"`
	JitterMax      int           `json:"jitter_max"`
	Smoothing      bool          `json:"smoothing"`
	SmoothingSigma float64       `json:"smoothing_sigma"`
	Objective      ObjectiveMode `json:"objective"`
	Seed           int64         `json:"seed"`
	Budget         Budget        `json:"budget"`
}

// DefaultRunConfig returns the settings used by the CLI when nothing is overridden
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Layers:         []string{"relu4_3"},
		Octaves:        4,
		OctaveScale:    1.4,
		Iterations:     10,
		LearningRate:   0.09,
		JitterMax:      32,
		Smoothing:      true,
		SmoothingSigma: 0.5,
		Objective:      ObjectiveMean,
		Seed:           1,
	}
}

// Validate checks field ranges. Layer ids are checked against an extractor by NewDreamer.
func (c *RunConfig) Validate() error {
	if len(c.Layers) == 0 {
		return configErrorf("layers", "at least one layer is required")
	}
	seen := make(map[string]bool, len(c.Layers))
	for _, id := range c.Layers {
		if id == "" {
			return configErrorf("layers", "empty layer id")
		}
		if seen[id] {
			return configErrorf("layers", "layer %q listed twice", id)
		}
		seen[id] = true
	}
	if c.Octaves < 1 {
		return configErrorf("octaves", "got %d, need at least 1", c.Octaves)
	}
	if !(c.OctaveScale > 1) || math.IsInf(c.OctaveScale, 0) {
		return configErrorf("octave_scale", "got %v, need a finite value > 1", c.OctaveScale)
	}
	if c.Iterations < 0 {
		return configErrorf("iterations", "got %d, need >= 0", c.Iterations)
	}
	if !(c.LearningRate > 0) || math.IsInf(c.LearningRate, 0) {
		return configErrorf("learning_rate", "got %v, need a finite value > 0", c.LearningRate)
	}
	if c.JitterMax < 0 {
		return configErrorf("jitter_max", "got %d, need >= 0", c.JitterMax)
	}
	if !(c.SmoothingSigma >= 0) || math.IsInf(c.SmoothingSigma, 0) {
		return configErrorf("smoothing_sigma", "got %v, need a finite value >= 0", c.SmoothingSigma)
	}
	switch c.Objective {
	case ObjectiveMean, ObjectiveSum:
	case "":
		c.Objective = ObjectiveMean
	default:
		return configErrorf("objective", "unknown mode %q", c.Objective)
	}
	if c.Budget.MaxIterations < 0 || c.Budget.MaxDuration < 0 {
		return configErrorf("budget", "limits must not be negative")
	}
	return nil
}

// LoadRunConfig reads a JSON config. Missing fields keep their DefaultRunConfig values.
func LoadRunConfig(path string) (RunConfig, error) {
	cfg := DefaultRunConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Field: path, Err: err}
	}
	return cfg, nil
}

// SaveRunConfig writes cfg as indented JSON
func SaveRunConfig(path string, cfg RunConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
