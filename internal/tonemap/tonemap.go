// Package tonemap converts arbitrary-range rasters into 8-bit display images.
package tonemap

import (
	"image"
	"math"
	"slices"

	"github.com/sky-unifier/sky-unifier-go/internal/sky"
)

const (
	blackPercentile = 1
	whitePercentile = 99
)

// Map stretches r into an 8-bit image of the same shape. It never fails:
// all-non-finite and flat inputs produce an all-zero image.
//
// Black and white points are the 1st and 99th percentiles so a handful of
// cosmic rays or saturated pixels do not flatten the rest of the image.
func Map(r sky.Raster, stretch sky.Stretch) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, max(r.Width, 0), max(r.Height, 0)))
	n := len(img.Pix)
	if n == 0 || len(r.Pix) < n {
		return img
	}

	finite := make([]float64, 0, n)
	for _, v := range r.Pix[:n] {
		if isFinite(v) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return img
	}
	slices.Sort(finite)
	fill := percentileSorted(finite, 50)

	samples := make([]float64, n)
	for i, v := range r.Pix[:n] {
		if !isFinite(v) {
			v = fill
		}
		samples[i] = v
	}
	sorted := slices.Clone(samples)
	slices.Sort(sorted)

	black, okB := percentile(sorted, blackPercentile)
	white, okW := percentile(sorted, whitePercentile)
	if !okB || !okW {
		black, white = sorted[0], sorted[len(sorted)-1]
	}
	if black == white || !isFinite(white-black) {
		return img
	}

	curve := curveFor(stretch)
	span := white - black
	for i, v := range samples {
		x := (min(max(v, black), white) - black) / span
		x = curve(x) * 255
		img.Pix[i] = uint8(min(max(x, 0), 255))
	}
	AutoContrast(img)
	return img
}

func curveFor(s sky.Stretch) func(float64) float64 {
	switch s {
	case sky.StretchSqrt:
		return math.Sqrt
	case sky.StretchLog:
		return func(x float64) float64 { return math.Log1p(9*x) / math.Log(10) }
	default:
		return func(x float64) float64 { return x }
	}
}

// percentile expects sorted input and interpolates linearly between the two
// closest order statistics.
func percentile(sorted []float64, p float64) (float64, bool) {
	if len(sorted) == 0 || p < 0 || p > 100 {
		return 0, false
	}
	v := percentileSorted(sorted, p)
	return v, isFinite(v)
}

func percentileSorted(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
