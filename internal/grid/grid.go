// Package grid derives the common target grid all layers of a request are
// resampled onto.
package grid

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/sky-unifier/sky-unifier-go/internal/sky"
	"github.com/sky-unifier/sky-unifier-go/internal/wcs"
)

// MinPixels keeps rendered images from degenerating.
const MinPixels = 10

type Builder struct {
	MaxFieldDeg float64
	MaxPixels   int
	Logger      *slog.Logger
}

// Build returns a square tangent-plane grid centred on (ra, dec). The pixel
// count is ceil(size*3600/scale) clamped to [MinPixels, MaxPixels]; hitting the
// ceiling degrades resolution and logs a warning instead of failing.
func (b Builder) Build(ra, dec, sizeDeg, pixelScaleArcsec float64) (sky.TargetGrid, error) {
	if err := sky.ValidateField(sizeDeg, b.MaxFieldDeg); err != nil {
		return sky.TargetGrid{}, err
	}
	if math.IsNaN(pixelScaleArcsec) || math.IsInf(pixelScaleArcsec, 0) || pixelScaleArcsec <= 0 {
		return sky.TargetGrid{}, fmt.Errorf("%w: pixel scale must be positive", sky.ErrInvalidField)
	}

	maxPixels := b.MaxPixels
	if maxPixels < MinPixels {
		maxPixels = MinPixels
	}

	requested := math.Ceil(sizeDeg * 3600 / pixelScaleArcsec)
	npix := MinPixels
	switch {
	case requested > float64(maxPixels):
		b.logger().Warn("requested resolution exceeds pixel cap",
			"requested", requested,
			"capped", maxPixels,
		)
		npix = maxPixels
	case requested > MinPixels:
		npix = int(requested)
	}

	half := float64(npix) / 2
	scaleDeg := pixelScaleArcsec / 3600
	return sky.TargetGrid{
		Projection: sky.ProjectionTAN,
		CenterRA:   ra,
		CenterDec:  dec,
		Size:       npix,
		PixelScale: pixelScaleArcsec,
		WCS:        wcs.NewTAN(ra, dec, half, half, -scaleDeg, scaleDeg),
	}, nil
}

func (b Builder) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.Default()
	}
	return b.Logger
}
