package dream

// Roll circularly shifts img by dy rows and dx columns: out(y+dy, x+dx) = in(y, x).
// Roll(Roll(img, dy, dx), -dy, -dx) reproduces img exactly.
func Roll(img *Image, dy, dx int) *Image {
	out := NewImage(img.Width, img.Height, img.Channels)
	w, h, c := img.Width, img.Height, img.Channels
	dy, dx = wrap(dy, h), wrap(dx, w)
	if dy == 0 && dx == 0 {
		copy(out.Pix, img.Pix)
		return out
	}

	for y := 0; y < h; y++ {
		ty := (y + dy) % h
		for x := 0; x < w; x++ {
			tx := (x + dx) % w
			copy(out.Pix[(ty*w+tx)*c:(ty*w+tx+1)*c], img.Pix[(y*w+x)*c:(y*w+x+1)*c])
		}
	}
	return out
}

// wrap reduces i into [0, n)
func wrap(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}
