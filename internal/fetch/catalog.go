package fetch

import (
	"bytes"
	"context"
	"fmt"

	"github.com/sky-unifier/sky-unifier-go/internal/fitsimage"
	"github.com/sky-unifier/sky-unifier-go/internal/sky"
)

// ImageArchive returns a single FITS cutout of a named survey.
type ImageArchive interface {
	QueryImage(ctx context.Context, ra, dec float64, survey string, sizeDeg float64, pixels int) ([]byte, error)
}

type CatalogFetcher struct {
	Archive ImageArchive
}

func (f *CatalogFetcher) FetchCatalog(ctx context.Context, src sky.CatalogSource, ra, dec, sizeDeg float64, pixels int) (sky.RawSourceRaster, error) {
	payload, err := f.Archive.QueryImage(ctx, ra, dec, src.Name, sizeDeg, pixels)
	if err != nil {
		if ctx.Err() != nil {
			return sky.RawSourceRaster{}, ctx.Err()
		}
		return sky.RawSourceRaster{}, fmt.Errorf("%w: SkyView error for '%s': %v", sky.ErrFetchFailed, src.Name, err)
	}
	if len(payload) == 0 {
		return sky.RawSourceRaster{}, fmt.Errorf("%w: archive returned no images", sky.ErrFetchFailed)
	}
	if err := fitsimage.Sniff(payload); err != nil {
		return sky.RawSourceRaster{}, fmt.Errorf("SkyView error for '%s': %w", src.Name, err)
	}

	img, err := fitsimage.Decode(bytes.NewReader(payload))
	if err != nil {
		return sky.RawSourceRaster{}, err
	}
	return sky.RawSourceRaster{SourceID: src.ID(), Raster: img.Raster, WCS: img.WCS}, nil
}
