package imageio

import (
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openfluke/deepdream/dream"
)

func TestSaveLoadPNG(t *testing.T) {
	img := NoiseImage(9, 5, 3, 1)
	// Quantize first so the round trip is exact
	for i, v := range img.Pix {
		img.Pix[i] = math.Round(v*255) / 255
	}

	path := filepath.Join(t.TempDir(), "out.png")
	if err := SaveImage(path, img, 0); err != nil {
		t.Fatalf("SaveImage: %v", err)
	}
	back, err := LoadImage(path, 0)
	if err != nil {
		t.Fatalf("LoadImage: %v", err)
	}
	if back.Width != 9 || back.Height != 5 || back.Channels != 3 {
		t.Fatalf("Expected 9x5x3, got %dx%dx%d", back.Width, back.Height, back.Channels)
	}
	for i := range img.Pix {
		if math.Abs(back.Pix[i]-img.Pix[i]) > 1e-9 {
			t.Fatalf("pixel %d: expected %f, got %f", i, img.Pix[i], back.Pix[i])
		}
	}
}

func TestSaveJPEG(t *testing.T) {
	img := dream.NewImage(16, 16, 3)
	for i := range img.Pix {
		img.Pix[i] = 0.5
	}
	path := filepath.Join(t.TempDir(), "out.jpg")
	if err := SaveImage(path, img, 90); err != nil {
		t.Fatalf("SaveImage: %v", err)
	}
	back, err := LoadImage(path, 0)
	if err != nil {
		t.Fatalf("LoadImage: %v", err)
	}
	for i, v := range back.Pix {
		if math.Abs(v-0.5) > 0.02 {
			t.Fatalf("pixel %d: expected ~0.5, got %f", i, v)
		}
	}
}

func TestSaveUnknownFormat(t *testing.T) {
	if err := SaveImage(filepath.Join(t.TempDir(), "out.tiff"), dream.NewImage(1, 1, 1), 0); err == nil {
		t.Error("Expected error for .tiff")
	}
}

func TestLoadResizesGray(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 40, 20))
	for i := range gray.Pix {
		gray.Pix[i] = 128
	}
	path := filepath.Join(t.TempDir(), "gray.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, gray); err != nil {
		t.Fatal(err)
	}
	f.Close()

	img, err := LoadImage(path, 10)
	if err != nil {
		t.Fatalf("LoadImage: %v", err)
	}
	if img.Width != 10 || img.Height != 5 || img.Channels != 1 {
		t.Errorf("Expected 10x5x1, got %dx%dx%d", img.Width, img.Height, img.Channels)
	}
	if math.Abs(img.Pix[0]-128.0/255) > 1.0/255 {
		t.Errorf("Expected ~0.5, got %f", img.Pix[0])
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := LoadImage(filepath.Join(t.TempDir(), "nope.png"), 0); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestFitSize(t *testing.T) {
	tests := []struct{ w, h, size, wantW, wantH int }{
		{1200, 800, 600, 600, 400},
		{800, 1200, 600, 400, 600},
		{100, 50, 600, 600, 300},
		{100, 50, 0, 100, 50},
		{1000, 1, 10, 10, 1},
	}
	for _, tt := range tests {
		if w, h := FitSize(tt.w, tt.h, tt.size); w != tt.wantW || h != tt.wantH {
			t.Errorf("FitSize(%d, %d, %d) = %dx%d, want %dx%d", tt.w, tt.h, tt.size, w, h, tt.wantW, tt.wantH)
		}
	}
}

func TestNoiseImage(t *testing.T) {
	a := NoiseImage(8, 8, 3, 42)
	b := NoiseImage(8, 8, 3, 42)
	if !a.InRange() {
		t.Error("Noise out of range")
	}
	for i := range a.Pix {
		if a.Pix[i] != b.Pix[i] {
			t.Fatal("Same seed must give the same noise")
		}
	}
	c := NoiseImage(8, 8, 3, 43)
	if c.Pix[0] == a.Pix[0] && c.Pix[1] == a.Pix[1] {
		t.Error("Different seeds should differ")
	}
}

func TestRunDir(t *testing.T) {
	now := time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC)
	dir, err := RunDir(t.TempDir(), now)
	if err != nil {
		t.Fatalf("RunDir: %v", err)
	}
	if filepath.Base(dir) != "2024-03-09_14-05-06" {
		t.Errorf("Unexpected dir name %s", filepath.Base(dir))
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("Run dir not created: %v", err)
	}
}
