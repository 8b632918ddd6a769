// Package wcs models the gnomonic (TAN) world coordinate systems used to map
// image pixels to equatorial sky coordinates.
//
// Pixel coordinates are zero-based: (0, 0) is the centre of the first sample.
// FITS reference pixels (CRPIX) stay one-based as written in headers.
package wcs

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalid = errors.New("invalid wcs")

// Projection maps between zero-based pixel coordinates and (ra, dec) in degrees.
type Projection interface {
	PixelToWorld(x, y float64) (ra, dec float64, ok bool)
	WorldToPixel(ra, dec float64) (x, y float64, ok bool)
}

// TAN is a tangent-plane projection described by FITS CRVAL, CRPIX and CD keywords.
type TAN struct {
	CRVal [2]float64
	CRPix [2]float64
	CD    [2][2]float64
}

// NewTAN builds an unrotated projection from per-axis increments in degrees/pixel.
func NewTAN(ra, dec, crpix1, crpix2, cdelt1, cdelt2 float64) TAN {
	return TAN{
		CRVal: [2]float64{ra, dec},
		CRPix: [2]float64{crpix1, crpix2},
		CD:    [2][2]float64{{cdelt1, 0}, {0, cdelt2}},
	}
}

func (t TAN) Validate() error {
	for _, v := range []float64{t.CRVal[0], t.CRVal[1], t.CRPix[0], t.CRPix[1], t.CD[0][0], t.CD[0][1], t.CD[1][0], t.CD[1][1]} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite keyword value", ErrInvalid)
		}
	}
	if t.CRVal[1] < -90 || t.CRVal[1] > 90 {
		return fmt.Errorf("%w: reference declination %v out of range", ErrInvalid, t.CRVal[1])
	}
	if t.det() == 0 {
		return fmt.Errorf("%w: singular CD matrix", ErrInvalid)
	}
	return nil
}

// PixelScale returns the mean absolute increment of both axes in degrees/pixel.
func (t TAN) PixelScale() float64 {
	return math.Sqrt(math.Abs(t.det()))
}

func (t TAN) det() float64 {
	return t.CD[0][0]*t.CD[1][1] - t.CD[0][1]*t.CD[1][0]
}

func (t TAN) PixelToWorld(x, y float64) (float64, float64, bool) {
	dx := x + 1 - t.CRPix[0]
	dy := y + 1 - t.CRPix[1]
	xi := (t.CD[0][0]*dx + t.CD[0][1]*dy) * deg2rad
	eta := (t.CD[1][0]*dx + t.CD[1][1]*dy) * deg2rad

	ra0 := t.CRVal[0] * deg2rad
	dec0 := t.CRVal[1] * deg2rad

	rho := math.Hypot(xi, eta)
	if rho == 0 {
		return normalizeRA(t.CRVal[0]), t.CRVal[1], true
	}
	c := math.Atan(rho)
	sinC, cosC := math.Sin(c), math.Cos(c)
	sinDec0, cosDec0 := math.Sin(dec0), math.Cos(dec0)

	dec := math.Asin(cosC*sinDec0 + eta*sinC*cosDec0/rho)
	ra := ra0 + math.Atan2(xi*sinC, rho*cosDec0*cosC-eta*sinDec0*sinC)
	return normalizeRA(ra * rad2deg), dec * rad2deg, true
}

func (t TAN) WorldToPixel(ra, dec float64) (float64, float64, bool) {
	ra0 := t.CRVal[0] * deg2rad
	dec0 := t.CRVal[1] * deg2rad
	a := ra * deg2rad
	d := dec * deg2rad

	sinD, cosD := math.Sin(d), math.Cos(d)
	sinD0, cosD0 := math.Sin(dec0), math.Cos(dec0)
	cosDA := math.Cos(a - ra0)

	cosC := sinD0*sinD + cosD0*cosD*cosDA
	if cosC <= 0 {
		// behind the tangent plane
		return 0, 0, false
	}
	xi := cosD * math.Sin(a-ra0) / cosC * rad2deg
	eta := (cosD0*sinD - sinD0*cosD*cosDA) / cosC * rad2deg

	det := t.det()
	if det == 0 {
		return 0, 0, false
	}
	dx := (t.CD[1][1]*xi - t.CD[0][1]*eta) / det
	dy := (-t.CD[1][0]*xi + t.CD[0][0]*eta) / det
	return t.CRPix[0] + dx - 1, t.CRPix[1] + dy - 1, true
}

const (
	deg2rad = math.Pi / 180
	rad2deg = 180 / math.Pi
)

func normalizeRA(ra float64) float64 {
	ra = math.Mod(ra, 360)
	if ra < 0 {
		ra += 360
	}
	return ra
}
