package tonemap

import "image"

// AutoContrast remaps img in place so its darkest level becomes 0 and its
// brightest 255. Images with a single level are left untouched.
func AutoContrast(img *image.Gray) {
	var hist [256]int
	for _, v := range img.Pix {
		hist[v]++
	}
	lo, hi := 0, 255
	for lo < 256 && hist[lo] == 0 {
		lo++
	}
	for hi >= 0 && hist[hi] == 0 {
		hi--
	}
	if hi <= lo {
		return
	}

	var lut [256]uint8
	for i := range lut {
		v := (i - lo) * 255 / (hi - lo)
		lut[i] = uint8(min(max(v, 0), 255))
	}
	for i, v := range img.Pix {
		img.Pix[i] = lut[v]
	}
}
