// Package fitstest builds small FITS payloads for tests.
package fitstest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

const block = 2880

// HDU describes one header-data unit. A nil Data writes a header-only HDU.
// Samples are stored as BITPIX -64.
type HDU struct {
	Width  int
	Height int
	Data   []float64
	Cards  map[string]any
}

// Build encodes hdus as a FITS file; the first one is the primary HDU.
func Build(hdus ...HDU) []byte {
	var buf bytes.Buffer
	for i, h := range hdus {
		var hdr bytes.Buffer
		if i == 0 {
			card(&hdr, "SIMPLE", true)
		} else {
			card(&hdr, "XTENSION", "IMAGE")
		}
		if h.Data == nil {
			card(&hdr, "BITPIX", 8)
			card(&hdr, "NAXIS", 0)
		} else {
			card(&hdr, "BITPIX", -64)
			card(&hdr, "NAXIS", 2)
			card(&hdr, "NAXIS1", h.Width)
			card(&hdr, "NAXIS2", h.Height)
		}
		if i == 0 {
			card(&hdr, "EXTEND", true)
		} else {
			card(&hdr, "PCOUNT", 0)
			card(&hdr, "GCOUNT", 1)
		}
		keys := make([]string, 0, len(h.Cards))
		for k := range h.Cards {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			card(&hdr, k, h.Cards[k])
		}
		hdr.WriteString(fmt.Sprintf("%-80s", "END"))
		pad(&hdr, ' ')
		buf.Write(hdr.Bytes())

		if h.Data == nil {
			continue
		}
		var data bytes.Buffer
		for _, v := range h.Data {
			var b [8]byte
			binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
			data.Write(b[:])
		}
		pad(&data, 0)
		buf.Write(data.Bytes())
	}
	return buf.Bytes()
}

// TANCards returns the keywords of a north-up TAN projection centred on
// (ra, dec) with the reference pixel in the middle of a width x height image.
func TANCards(ra, dec float64, width, height int, scaleArcsec float64) map[string]any {
	return map[string]any{
		"CTYPE1": "RA---TAN",
		"CTYPE2": "DEC--TAN",
		"CRVAL1": ra,
		"CRVAL2": dec,
		"CRPIX1": float64(width)/2 + 0.5,
		"CRPIX2": float64(height)/2 + 0.5,
		"CDELT1": -scaleArcsec / 3600,
		"CDELT2": scaleArcsec / 3600,
	}
}

// Constant returns n copies of v.
func Constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func card(buf *bytes.Buffer, key string, value any) {
	var v string
	switch x := value.(type) {
	case bool:
		v = fmt.Sprintf("%20s", "F")
		if x {
			v = fmt.Sprintf("%20s", "T")
		}
	case int:
		v = fmt.Sprintf("%20d", x)
	case float64:
		v = fmt.Sprintf("%20s", strconv.FormatFloat(x, 'E', -1, 64))
	case string:
		v = fmt.Sprintf("'%-8s'", strings.ReplaceAll(x, "'", "''"))
	default:
		panic(fmt.Sprintf("fitstest: unsupported card type %T", value))
	}
	buf.WriteString(fmt.Sprintf("%-80s", fmt.Sprintf("%-8s= %s", key, v)))
}

func pad(buf *bytes.Buffer, b byte) {
	if rem := buf.Len() % block; rem != 0 {
		buf.Write(bytes.Repeat([]byte{b}, block-rem))
	}
}
