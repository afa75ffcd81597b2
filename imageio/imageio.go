// Package imageio loads and stores dream images on disk.
package imageio

import (
	"fmt"
	"image"
	"image/draw"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/anthonynsimon/bild/transform"

	"github.com/openfluke/deepdream/dream"
)

// DefaultJPEGQuality is used when SaveImage is given a quality outside 1..100
const DefaultJPEGQuality = 95

// LoadImage decodes a PNG, JPEG or BMP file. When size > 0 the image is rescaled so its
// longer side equals size. Gray files stay single-channel.
func LoadImage(path string, size int) (*dream.Image, error) {
	img, err := imgio.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}

	_, gray := img.(*image.Gray)
	if _, gray16 := img.(*image.Gray16); gray16 {
		gray = true
	}

	if size > 0 {
		b := img.Bounds()
		w, h := FitSize(b.Dx(), b.Dy(), size)
		if w != b.Dx() || h != b.Dy() {
			img = transform.Resize(img, w, h, transform.Linear)
			if gray {
				g := image.NewGray(img.Bounds())
				draw.Draw(g, g.Bounds(), img, img.Bounds().Min, draw.Src)
				img = g
			}
		}
	}
	return dream.FromImage(img), nil
}

// FitSize scales (width, height) so the longer side equals size, keeping the aspect ratio
func FitSize(width, height, size int) (int, int) {
	if width <= 0 || height <= 0 || size <= 0 {
		return width, height
	}
	scale := float64(size) / float64(max(width, height))
	w := max(1, int(math.Round(float64(width)*scale)))
	h := max(1, int(math.Round(float64(height)*scale)))
	return w, h
}

// SaveImage encodes by file extension: .png, .jpg/.jpeg or .bmp
func SaveImage(path string, img *dream.Image, quality int) error {
	var encoder imgio.Encoder
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		encoder = imgio.PNGEncoder()
	case ".jpg", ".jpeg":
		if quality < 1 || quality > 100 {
			quality = DefaultJPEGQuality
		}
		encoder = imgio.JPEGEncoder(quality)
	case ".bmp":
		encoder = imgio.BMPEncoder()
	default:
		return fmt.Errorf("unsupported image format %q", filepath.Ext(path))
	}
	if err := imgio.Save(path, img.ToImage(), encoder); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}
	return nil
}

// NoiseImage returns uniform [0,1] noise, used as the start image when no input is given
func NoiseImage(width, height, channels int, seed int64) *dream.Image {
	rng := rand.New(rand.NewSource(seed))
	img := dream.NewImage(width, height, channels)
	for i := range img.Pix {
		img.Pix[i] = rng.Float64()
	}
	return img
}

// RunDir creates root/<timestamp> for the files of one run
func RunDir(root string, now time.Time) (string, error) {
	dir := filepath.Join(root, now.Format("2006-01-02_15-04-05"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create run directory: %w", err)
	}
	return dir, nil
}
