package main

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openfluke/deepdream/dream"
)

func TestParseFlagsDefaults(t *testing.T) {
	opts, err := parseFlags(nil)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	def := dream.DefaultRunConfig()
	if opts.cfg.Octaves != def.Octaves || opts.cfg.Layers[0] != def.Layers[0] {
		t.Errorf("Defaults not applied: %+v", opts.cfg)
	}
	if opts.arch != "vgg19" || opts.size != 600 {
		t.Errorf("Unexpected arch %s size %d", opts.arch, opts.size)
	}
	if opts.observeWait != 100*time.Millisecond {
		t.Errorf("Unexpected observe timeout %v", opts.observeWait)
	}
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	if err := os.WriteFile(path, []byte(`{"layers": ["relu3_3"], "iterations": 30, "octaves": 5}`), 0644); err != nil {
		t.Fatal(err)
	}
	opts, err := parseFlags([]string{
		"-config", path,
		"-iters", "3",
		"-layers", "relu4_1, relu5_1",
		"-timeout", "2s",
		"-max-iters", "11",
	})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	cfg := opts.cfg
	if cfg.Iterations != 3 {
		t.Errorf("Flag should win: iterations %d", cfg.Iterations)
	}
	if cfg.Octaves != 5 {
		t.Errorf("Config file value lost: octaves %d", cfg.Octaves)
	}
	if len(cfg.Layers) != 2 || cfg.Layers[1] != "relu5_1" {
		t.Errorf("Unexpected layers %v", cfg.Layers)
	}
	if cfg.Budget.MaxDuration != 2*time.Second || cfg.Budget.MaxIterations != 11 {
		t.Errorf("Unexpected budget %+v", cfg.Budget)
	}
}

func TestMissingWeightsIsResourceError(t *testing.T) {
	opts, err := parseFlags([]string{"-arch", "vgg16", "-weights", filepath.Join(t.TempDir(), "missing.safetensors")})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	_, err = loadNetwork(opts)
	if !errors.Is(err, dream.ErrResource) {
		t.Errorf("Expected ErrResource, got %v", err)
	}
	if exitCode(err) != 3 {
		t.Errorf("Expected exit code 3, got %d", exitCode(err))
	}
}

func TestCorruptWeightsIsResourceError(t *testing.T) {
	header := `{"features.0.weight":{"dtype":"F32","shape":[-4],"data_offsets":[0,0]}}`
	blob := make([]byte, 8, 8+len(header))
	binary.LittleEndian.PutUint64(blob, uint64(len(header)))
	blob = append(blob, header...)
	path := filepath.Join(t.TempDir(), "corrupt.safetensors")
	if err := os.WriteFile(path, blob, 0644); err != nil {
		t.Fatal(err)
	}

	opts, err := parseFlags([]string{"-arch", "vgg16", "-weights", path})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	_, err = loadNetwork(opts)
	if exitCode(err) != 3 {
		t.Errorf("Expected exit code 3, got %d (%v)", exitCode(err), err)
	}
}

func TestUnknownArchIsConfigError(t *testing.T) {
	opts, err := parseFlags([]string{"-arch", "resnet50"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if _, err := loadNetwork(opts); !errors.Is(err, dream.ErrConfig) || exitCode(err) != 2 {
		t.Errorf("Expected ConfigError, got %v", err)
	}
}

func TestSplitLayers(t *testing.T) {
	got := splitLayers(" relu1_1,,relu2_1 ,")
	if len(got) != 2 || got[0] != "relu1_1" || got[1] != "relu2_1" {
		t.Errorf("Unexpected %v", got)
	}
}
