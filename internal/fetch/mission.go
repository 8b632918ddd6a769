package fetch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/sky-unifier/sky-unifier-go/internal/archive/mast"
	"github.com/sky-unifier/sky-unifier-go/internal/fitsimage"
	"github.com/sky-unifier/sky-unifier-go/internal/sky"
)

// Each mission cause also matches sky.ErrFetchFailed.
var (
	ErrMissionQuery          = fmt.Errorf("%w: mission query failed", sky.ErrFetchFailed)
	ErrNoMissionObservations = fmt.Errorf("%w: no mission observations", sky.ErrFetchFailed)
	ErrNoMatchingProduct     = fmt.Errorf("%w: no matching product", sky.ErrFetchFailed)
	ErrDownload              = fmt.Errorf("%w: product download failed", sky.ErrFetchFailed)
)

// MissionArchive is the subset of the MAST client the mission fetcher uses.
type MissionArchive interface {
	QueryRegion(ctx context.Context, ra, dec, radiusDeg float64) ([]mast.Observation, error)
	ProductList(ctx context.Context, obs mast.Observation) (mast.ProductList, error)
	Download(ctx context.Context, p mast.Product) (string, error)
	OpenDownload(name string) (io.ReadCloser, error)
}

type MissionFetcher struct {
	Archive MissionArchive
	Logger  *slog.Logger
}

// FetchMission searches a cone of radius sizeDeg, takes the first observation
// of the mission, the first of its products in the requested filter, and
// reads the downloaded file.
func (f *MissionFetcher) FetchMission(ctx context.Context, src sky.MissionSource, ra, dec, sizeDeg float64) (sky.RawSourceRaster, error) {
	obs, err := f.Archive.QueryRegion(ctx, ra, dec, sizeDeg)
	if err != nil {
		if ctx.Err() != nil {
			return sky.RawSourceRaster{}, ctx.Err()
		}
		return sky.RawSourceRaster{}, fmt.Errorf("%w: %v", ErrMissionQuery, err)
	}

	var match *mast.Observation
	for i := range obs {
		if strings.EqualFold(obs[i].Collection, src.Mission) {
			match = &obs[i]
			break
		}
	}
	if match == nil {
		return sky.RawSourceRaster{}, fmt.Errorf("%w: no %s observations found at this location", ErrNoMissionObservations, src.Mission)
	}

	list, err := f.Archive.ProductList(ctx, *match)
	if err != nil {
		if ctx.Err() != nil {
			return sky.RawSourceRaster{}, ctx.Err()
		}
		return sky.RawSourceRaster{}, fmt.Errorf("%w: product list for %s: %v", ErrMissionQuery, match.ObsID, err)
	}
	products := list.Products
	if src.Filter != "" && list.HasFilters {
		filtered := products[:0:0]
		for _, p := range products {
			if strings.EqualFold(p.Filters, src.Filter) {
				filtered = append(filtered, p)
			}
		}
		products = filtered
	}
	if len(products) == 0 {
		return sky.RawSourceRaster{}, fmt.Errorf("%w: no %s products with filter '%s'", ErrNoMatchingProduct, src.Mission, src.Filter)
	}

	name, err := f.Archive.Download(ctx, products[0])
	if err != nil {
		if ctx.Err() != nil {
			return sky.RawSourceRaster{}, ctx.Err()
		}
		return sky.RawSourceRaster{}, fmt.Errorf("%w: %v", ErrDownload, err)
	}
	f.logger().Info("mission product downloaded",
		"source", src.ID(),
		"obsid", match.ObsID,
		"file", name,
	)

	file, err := f.Archive.OpenDownload(name)
	if err != nil {
		return sky.RawSourceRaster{}, fmt.Errorf("%w: %v", ErrDownload, err)
	}
	defer file.Close()

	br := bufio.NewReaderSize(file, 3072)
	head, err := br.Peek(3072)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return sky.RawSourceRaster{}, fmt.Errorf("%w: read %s: %v", ErrDownload, name, err)
	}
	if err := fitsimage.Sniff(head); err != nil {
		return sky.RawSourceRaster{}, fmt.Errorf("%w: %s: %v", ErrDownload, name, err)
	}

	img, err := fitsimage.Decode(br)
	if err != nil {
		return sky.RawSourceRaster{}, err
	}
	return sky.RawSourceRaster{SourceID: src.ID(), Raster: img.Raster, WCS: img.WCS}, nil
}

func (f *MissionFetcher) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}
