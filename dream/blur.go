package dream

import "math"

const blurKernelSize = 9

// cascadeCoefficients scale sigma for the three blurs that are averaged
var cascadeCoefficients = [3]float64{0.5, 1.0, 2.0}

// CascadeBlur averages Gaussian blurs of img at sigma times 0.5, 1 and 2.
// Borders are reflect-padded so the output keeps the input size.
func CascadeBlur(img *Image, sigma float64) *Image {
	out := NewImage(img.Width, img.Height, img.Channels)
	for _, coeff := range cascadeCoefficients {
		blurred := GaussianBlur(img, sigma*coeff)
		for i, v := range blurred.Pix {
			out.Pix[i] += v / float64(len(cascadeCoefficients))
		}
	}
	return out
}

// GaussianBlur applies a separable 9-tap Gaussian with reflect padding
func GaussianBlur(img *Image, sigma float64) *Image {
	kernel := gaussianKernel(sigma, blurKernelSize)
	tmp := convolveAxis(img, kernel, true)
	return convolveAxis(tmp, kernel, false)
}

// gaussianKernel returns a normalized 1-D kernel; sigma <= 0 yields the identity
func gaussianKernel(sigma float64, size int) []float64 {
	k := make([]float64, size)
	centre := float64(size-1) / 2
	if !(sigma > 0) {
		k[size/2] = 1
		return k
	}
	sum := 0.0
	for i := range k {
		d := (float64(i) - centre) / sigma
		k[i] = math.Exp(-d * d / 2)
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

func convolveAxis(img *Image, kernel []float64, horizontal bool) *Image {
	out := NewImage(img.Width, img.Height, img.Channels)
	w, h, c := img.Width, img.Height, img.Channels
	half := len(kernel) / 2

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst := (y*w + x) * c
			for k, kv := range kernel {
				sx, sy := x, y
				if horizontal {
					sx = reflect(x+k-half, w)
				} else {
					sy = reflect(y+k-half, h)
				}
				src := (sy*w + sx) * c
				for ch := 0; ch < c; ch++ {
					out.Pix[dst+ch] += img.Pix[src+ch] * kv
				}
			}
		}
	}
	return out
}

// reflect mirrors i into [0, n) without repeating the edge sample
func reflect(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * (n - 1)
	i = wrap(i, period)
	if i >= n {
		i = period - i
	}
	return i
}
