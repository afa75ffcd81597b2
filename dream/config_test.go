package dream

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRunConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*RunConfig)
		field  string
	}{
		{"default", func(c *RunConfig) {}, ""},
		{"no layers", func(c *RunConfig) { c.Layers = nil }, "layers"},
		{"duplicate layer", func(c *RunConfig) { c.Layers = []string{"x", "x"} }, "layers"},
		{"zero octaves", func(c *RunConfig) { c.Octaves = 0 }, "octaves"},
		{"scale one", func(c *RunConfig) { c.OctaveScale = 1 }, "octave_scale"},
		{"negative iterations", func(c *RunConfig) { c.Iterations = -1 }, "iterations"},
		{"zero lr", func(c *RunConfig) { c.LearningRate = 0 }, "learning_rate"},
		{"nan lr", func(c *RunConfig) { c.LearningRate = math.NaN() }, "learning_rate"},
		{"negative jitter", func(c *RunConfig) { c.JitterMax = -1 }, "jitter_max"},
		{"negative sigma", func(c *RunConfig) { c.SmoothingSigma = -0.1 }, "smoothing_sigma"},
		{"bad objective", func(c *RunConfig) { c.Objective = "max" }, "objective"},
		{"negative budget", func(c *RunConfig) { c.Budget.MaxDuration = -time.Second }, "budget"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultRunConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.field == "" {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
				return
			}
			var cerr *ConfigError
			if !errors.As(err, &cerr) || !errors.Is(err, ErrConfig) {
				t.Fatalf("Expected ConfigError, got %v", err)
			}
			if cerr.Field != tt.field {
				t.Errorf("Expected field %s, got %s", tt.field, cerr.Field)
			}
		})
	}
}

func TestEmptyObjectiveDefaultsToMean(t *testing.T) {
	cfg := DefaultRunConfig()
	cfg.Objective = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Objective != ObjectiveMean {
		t.Errorf("Expected mean, got %q", cfg.Objective)
	}
}

func TestLoadRunConfigKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	if err := os.WriteFile(path, []byte(`{"layers": ["relu3_1", "relu4_1"], "iterations": 25}`), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadRunConfig(path)
	if err != nil {
		t.Fatalf("LoadRunConfig: %v", err)
	}
	if len(cfg.Layers) != 2 || cfg.Iterations != 25 {
		t.Errorf("Overrides not applied: %+v", cfg)
	}
	if cfg.Octaves != DefaultRunConfig().Octaves || cfg.LearningRate != DefaultRunConfig().LearningRate {
		t.Errorf("Defaults lost: %+v", cfg)
	}

	saved := filepath.Join(t.TempDir(), "saved.json")
	if err := SaveRunConfig(saved, cfg); err != nil {
		t.Fatalf("SaveRunConfig: %v", err)
	}
	again, err := LoadRunConfig(saved)
	if err != nil {
		t.Fatalf("LoadRunConfig: %v", err)
	}
	if again.Iterations != 25 || again.Layers[1] != "relu4_1" {
		t.Errorf("Saved config differs: %+v", again)
	}
}

func TestLoadRunConfigRejectsBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{"octaves": "many"}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRunConfig(path); !errors.Is(err, ErrConfig) {
		t.Errorf("Expected ErrConfig, got %v", err)
	}
}
