// Package fitsimage extracts the first data-bearing image and its world
// coordinate system from a FITS payload.
package fitsimage

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/astrogo/fitsio"
	"github.com/gabriel-vasile/mimetype"

	"github.com/sky-unifier/sky-unifier-go/internal/sky"
	"github.com/sky-unifier/sky-unifier-go/internal/wcs"
)

// Image is the decoded payload of one image HDU.
type Image struct {
	Raster sky.Raster
	WCS    wcs.TAN
	// HDU is the index of the HDU the samples came from.
	HDU int
	// WCSFromPrimary reports that the image header had no usable WCS and the
	// primary header was used instead.
	WCSFromPrimary bool
}

// Sniff rejects payloads that are recognisably not FITS, such as the HTML
// error pages archives return with a 200 status.
func Sniff(head []byte) error {
	if len(head) == 0 {
		return fmt.Errorf("%w: empty payload", sky.ErrFetchFailed)
	}
	mt := mimetype.Detect(head)
	if mt.Extension() == ".fits" {
		return nil
	}
	for _, text := range []string{"text/html", "application/json", "text/xml", "application/xml"} {
		if mt.Is(text) {
			return fmt.Errorf("%w: archive returned %s instead of FITS", sky.ErrFetchFailed, mt.String())
		}
	}
	return nil
}

// Decode reads a whole FITS payload.
func Decode(r io.Reader) (Image, error) {
	f, err := fitsio.Open(r)
	if err != nil {
		return Image{}, fmt.Errorf("%w: open FITS: %v", sky.ErrFetchFailed, err)
	}
	defer func() { _ = f.Close() }()

	hdus := f.HDUs()
	idx := -1
	var img fitsio.Image
	for i, hdu := range hdus {
		if hdu.Type() != fitsio.IMAGE_HDU {
			continue
		}
		candidate, ok := hdu.(fitsio.Image)
		if !ok || !hasData(candidate) {
			continue
		}
		idx, img = i, candidate
		break
	}
	if img == nil {
		return Image{}, sky.ErrNoImageData
	}

	raster, err := samples(img)
	if err != nil {
		return Image{}, err
	}

	out := Image{Raster: raster, HDU: idx}
	tan, err := wcs.FromKeywords(Keywords(img.Header()))
	if err == nil {
		out.WCS = tan
		return out, nil
	}
	if idx == 0 {
		return Image{}, fmt.Errorf("%w: %v", sky.ErrUnparsableCoordinates, err)
	}
	tan, primaryErr := wcs.FromKeywords(Keywords(hdus[0].Header()))
	if primaryErr != nil {
		return Image{}, fmt.Errorf("%w: image header: %v; primary header: %v", sky.ErrUnparsableCoordinates, err, primaryErr)
	}
	out.WCS = tan
	out.WCSFromPrimary = true
	return out, nil
}

// Keywords flattens a FITS header for WCS parsing.
func Keywords(hdr *fitsio.Header) wcs.Keywords {
	if hdr == nil {
		return nil
	}
	out := make(wcs.Keywords)
	for _, key := range hdr.Keys() {
		card := hdr.Get(key)
		if card == nil {
			continue
		}
		out[strings.ToUpper(strings.TrimSpace(key))] = card.Value
	}
	return out
}

func hasData(img fitsio.Image) bool {
	axes := img.Header().Axes()
	if len(axes) < 2 {
		return false
	}
	for _, n := range axes {
		if n <= 0 {
			return false
		}
	}
	return len(img.Raw()) > 0
}

// samples decodes the first plane of the image, applying BSCALE/BZERO and
// mapping BLANK integers to NaN.
func samples(img fitsio.Image) (sky.Raster, error) {
	hdr := img.Header()
	axes := hdr.Axes()
	width, height := axes[0], axes[1]
	bitpix := hdr.Bitpix()
	size := abs(bitpix) / 8
	n := width * height

	raw := img.Raw()
	if size == 0 || len(raw) < n*size {
		return sky.Raster{}, fmt.Errorf("%w: truncated image data (%d bytes for %dx%d, bitpix %d)", sky.ErrNoImageData, len(raw), width, height, bitpix)
	}

	kw := Keywords(hdr)
	bscale, ok := kw.Number("BSCALE")
	if !ok || bscale == 0 {
		bscale = 1
	}
	bzero, _ := kw.Number("BZERO")
	blank, hasBlank := kw.Number("BLANK")

	out := sky.NewRaster(width, height)
	for i := 0; i < n; i++ {
		b := raw[i*size : (i+1)*size]
		var v float64
		isInt := true
		switch bitpix {
		case 8:
			v = float64(b[0])
		case 16:
			v = float64(int16(binary.BigEndian.Uint16(b)))
		case 32:
			v = float64(int32(binary.BigEndian.Uint32(b)))
		case 64:
			v = float64(int64(binary.BigEndian.Uint64(b)))
		case -32:
			v, isInt = float64(math.Float32frombits(binary.BigEndian.Uint32(b))), false
		case -64:
			v, isInt = math.Float64frombits(binary.BigEndian.Uint64(b)), false
		default:
			return sky.Raster{}, fmt.Errorf("%w: unsupported BITPIX %d", sky.ErrNoImageData, bitpix)
		}
		if isInt && hasBlank && v == blank {
			out.Pix[i] = math.NaN()
			continue
		}
		out.Pix[i] = bzero + bscale*v
	}
	return out, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
