package sky

import (
	"math"

	"github.com/sky-unifier/sky-unifier-go/internal/wcs"
)

// Raster is a row-major grid of samples; Pix[y*Width+x].
type Raster struct {
	Width  int
	Height int
	Pix    []float64
}

func NewRaster(width, height int) Raster {
	return Raster{Width: width, Height: height, Pix: make([]float64, width*height)}
}

func (r Raster) At(x, y int) float64 {
	return r.Pix[y*r.Width+x]
}

func (r Raster) Valid() bool {
	return r.Width > 0 && r.Height > 0 && len(r.Pix) == r.Width*r.Height
}

// FiniteRange returns min and max over finite samples and how many there were.
// With no finite samples min and max are NaN.
func (r Raster) FiniteRange() (min, max float64, n int) {
	min, max = math.NaN(), math.NaN()
	for _, v := range r.Pix {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if n == 0 || v < min {
			min = v
		}
		if n == 0 || v > max {
			max = v
		}
		n++
	}
	return min, max, n
}

const ProjectionTAN = "TAN"

// TargetGrid is the common pixel grid every layer of a request is resampled onto.
// It is built once per request and only read afterwards.
type TargetGrid struct {
	Projection string
	CenterRA   float64
	CenterDec  float64
	Size       int
	PixelScale float64
	WCS        wcs.TAN
}

// RawSourceRaster is the native raster of one source before alignment.
type RawSourceRaster struct {
	SourceID string
	Raster   Raster
	WCS      wcs.Projection
}

// AlignedRaster is a source resampled onto the target grid.
type AlignedRaster struct {
	Raster Raster
	Min    float64
	Max    float64
	Finite int
}
