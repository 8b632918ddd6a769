// Package fetch retrieves the native raster of a source for a sky region.
package fetch

import (
	"context"
	"fmt"

	"github.com/sky-unifier/sky-unifier-go/internal/sky"
)

// Fetcher returns the raster of src covering sizeDeg around (ra, dec).
// pixels is the requested cutout width for archives that resample on their side.
type Fetcher interface {
	Fetch(ctx context.Context, src sky.Source, ra, dec, sizeDeg float64, pixels int) (sky.RawSourceRaster, error)
}

// Dispatcher routes each source variant to its fetcher.
type Dispatcher struct {
	Catalog *CatalogFetcher
	Mission *MissionFetcher
}

func (d Dispatcher) Fetch(ctx context.Context, src sky.Source, ra, dec, sizeDeg float64, pixels int) (sky.RawSourceRaster, error) {
	switch s := src.(type) {
	case sky.CatalogSource:
		if d.Catalog == nil {
			return sky.RawSourceRaster{}, fmt.Errorf("%w: no catalog archive configured", sky.ErrFetchFailed)
		}
		return d.Catalog.FetchCatalog(ctx, s, ra, dec, sizeDeg, pixels)
	case sky.MissionSource:
		if d.Mission == nil {
			return sky.RawSourceRaster{}, fmt.Errorf("%w: no mission archive configured", sky.ErrFetchFailed)
		}
		return d.Mission.FetchMission(ctx, s, ra, dec, sizeDeg)
	default:
		return sky.RawSourceRaster{}, fmt.Errorf("%w: unsupported source %T", sky.ErrFetchFailed, src)
	}
}
