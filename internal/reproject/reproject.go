// Package reproject resamples source rasters onto a target grid.
package reproject

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sky-unifier/sky-unifier-go/internal/sky"
	"github.com/sky-unifier/sky-unifier-go/internal/wcs"
)

// Resampler maps src, described by srcWCS, onto a width x height raster
// described by dstWCS. Target pixels without source coverage are NaN.
type Resampler interface {
	Resample(ctx context.Context, src sky.Raster, srcWCS, dstWCS wcs.Projection, width, height int) (sky.Raster, error)
}

// Aligner puts a fetched raster on the request grid.
type Aligner struct {
	Resampler Resampler
}

func (a Aligner) Align(ctx context.Context, raw sky.RawSourceRaster, grid sky.TargetGrid) (sky.AlignedRaster, error) {
	if !raw.Raster.Valid() {
		return sky.AlignedRaster{}, fmt.Errorf("%w: source raster is empty or malformed", sky.ErrAlignmentFailed)
	}
	if raw.WCS == nil {
		return sky.AlignedRaster{}, fmt.Errorf("%w: source has no coordinate system", sky.ErrAlignmentFailed)
	}

	out, err := a.Resampler.Resample(ctx, raw.Raster, raw.WCS, grid.WCS, grid.Size, grid.Size)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return sky.AlignedRaster{}, err
		}
		return sky.AlignedRaster{}, fmt.Errorf("%w: %v", sky.ErrAlignmentFailed, err)
	}
	if out.Width != grid.Size || out.Height != grid.Size || !out.Valid() {
		return sky.AlignedRaster{}, fmt.Errorf("%w: resampler returned %dx%d, want %dx%d", sky.ErrAlignmentFailed, out.Width, out.Height, grid.Size, grid.Size)
	}

	lo, hi, n := out.FiniteRange()
	return sky.AlignedRaster{Raster: out, Min: lo, Max: hi, Finite: n}, nil
}

// Bilinear is an in-process resampler: every target pixel centre is mapped to
// the sky and back into the source, where the four neighbouring samples are
// interpolated. Neighbours that are NaN are excluded from the weights, and
// equal neighbours are returned exactly.
type Bilinear struct{}

func (Bilinear) Resample(ctx context.Context, src sky.Raster, srcWCS, dstWCS wcs.Projection, width, height int) (sky.Raster, error) {
	if width <= 0 || height <= 0 {
		return sky.Raster{}, fmt.Errorf("invalid target shape %dx%d", width, height)
	}
	out := sky.NewRaster(width, height)
	for y := 0; y < height; y++ {
		if err := ctx.Err(); err != nil {
			return sky.Raster{}, err
		}
		for x := 0; x < width; x++ {
			out.Pix[y*width+x] = math.NaN()
			ra, dec, ok := dstWCS.PixelToWorld(float64(x), float64(y))
			if !ok {
				continue
			}
			sx, sy, ok := srcWCS.WorldToPixel(ra, dec)
			if !ok {
				continue
			}
			out.Pix[y*width+x] = sample(src, sx, sy)
		}
	}
	return out, nil
}

// sample interpolates src at a zero-based pixel position. Positions more than
// half a pixel outside the raster are NaN.
func sample(src sky.Raster, x, y float64) float64 {
	if x < -0.5 || y < -0.5 || x > float64(src.Width)-0.5 || y > float64(src.Height)-0.5 {
		return math.NaN()
	}
	x = clamp(x, 0, float64(src.Width-1))
	y = clamp(y, 0, float64(src.Height-1))

	x0, y0 := int(math.Floor(x)), int(math.Floor(y))
	x1, y1 := min(x0+1, src.Width-1), min(y0+1, src.Height-1)
	fx, fy := x-float64(x0), y-float64(y0)

	var sum, weight, first float64
	same := true
	for _, p := range [4]struct {
		x, y int
		w    float64
	}{
		{x0, y0, (1 - fx) * (1 - fy)},
		{x1, y0, fx * (1 - fy)},
		{x0, y1, (1 - fx) * fy},
		{x1, y1, fx * fy},
	} {
		if p.w == 0 {
			continue
		}
		v := src.At(p.x, p.y)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if weight == 0 {
			first = v
		} else if v != first {
			same = false
		}
		sum += v * p.w
		weight += p.w
	}
	if weight == 0 {
		return math.NaN()
	}
	if same {
		return first
	}
	return sum / weight
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
