package wcs

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Keywords is a flattened FITS header: upper-case keyword to parsed card value.
type Keywords map[string]any

func (k Keywords) Number(key string) (float64, bool) {
	v, ok := k[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int16:
		return float64(n), true
	case int8:
		return float64(n), true
	case uint8:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func (k Keywords) String(key string) (string, bool) {
	v, ok := k[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(s), true
}

// FromKeywords derives a TAN projection from a FITS header. The CD matrix is
// preferred; otherwise CDELT with an optional PC matrix or CROTA2 rotation is used.
// SIP distortion terms are ignored.
func FromKeywords(k Keywords) (TAN, error) {
	if len(k) == 0 {
		return TAN{}, fmt.Errorf("%w: empty header", ErrInvalid)
	}
	ctype1, ok1 := k.String("CTYPE1")
	ctype2, ok2 := k.String("CTYPE2")
	if !ok1 || !ok2 {
		return TAN{}, fmt.Errorf("%w: CTYPE1/CTYPE2 missing", ErrInvalid)
	}
	if !isCelestial(ctype1, "RA") || !isCelestial(ctype2, "DEC") {
		return TAN{}, fmt.Errorf("%w: unsupported axes %q/%q", ErrInvalid, ctype1, ctype2)
	}
	if projectionCode(ctype1) != "TAN" || projectionCode(ctype2) != "TAN" {
		return TAN{}, fmt.Errorf("%w: unsupported projection %q", ErrInvalid, ctype1)
	}

	var t TAN
	for i, key := range []string{"CRVAL1", "CRVAL2"} {
		v, ok := k.Number(key)
		if !ok {
			return TAN{}, fmt.Errorf("%w: %s missing", ErrInvalid, key)
		}
		t.CRVal[i] = v
	}
	for i, key := range []string{"CRPIX1", "CRPIX2"} {
		v, ok := k.Number(key)
		if !ok {
			return TAN{}, fmt.Errorf("%w: %s missing", ErrInvalid, key)
		}
		t.CRPix[i] = v
	}

	if cd, ok := cdMatrix(k); ok {
		t.CD = cd
	} else {
		cdelt1, ok1 := k.Number("CDELT1")
		cdelt2, ok2 := k.Number("CDELT2")
		if !ok1 || !ok2 {
			return TAN{}, fmt.Errorf("%w: neither CD nor CDELT keywords present", ErrInvalid)
		}
		pc := [2][2]float64{{1, 0}, {0, 1}}
		if m, ok := pcMatrix(k); ok {
			pc = m
		} else if rot, ok := k.Number("CROTA2"); ok && rot != 0 {
			r := rot * deg2rad
			pc = [2][2]float64{{math.Cos(r), -math.Sin(r) * cdelt2 / cdelt1}, {math.Sin(r) * cdelt1 / cdelt2, math.Cos(r)}}
		}
		t.CD = [2][2]float64{
			{cdelt1 * pc[0][0], cdelt1 * pc[0][1]},
			{cdelt2 * pc[1][0], cdelt2 * pc[1][1]},
		}
	}

	if err := t.Validate(); err != nil {
		return TAN{}, err
	}
	return t, nil
}

func cdMatrix(k Keywords) ([2][2]float64, bool) {
	return matrix(k, "CD")
}

func pcMatrix(k Keywords) ([2][2]float64, bool) {
	m, ok := matrix(k, "PC")
	if !ok {
		return m, false
	}
	// PC diagonal defaults to unity when only off-diagonal terms are written.
	if _, has := k["PC1_1"]; !has {
		m[0][0] = 1
	}
	if _, has := k["PC2_2"]; !has {
		m[1][1] = 1
	}
	return m, true
}

func matrix(k Keywords, prefix string) ([2][2]float64, bool) {
	var m [2][2]float64
	found := false
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if v, ok := k.Number(fmt.Sprintf("%s%d_%d", prefix, i+1, j+1)); ok {
				m[i][j] = v
				found = true
			}
		}
	}
	return m, found
}

func isCelestial(ctype, axis string) bool {
	name := strings.TrimRight(strings.SplitN(ctype, "-", 2)[0], " ")
	return strings.EqualFold(name, axis)
}

// projectionCode extracts the three-letter algorithm code, e.g. "RA---TAN-SIP" -> "TAN".
func projectionCode(ctype string) string {
	if len(ctype) < 8 {
		return ""
	}
	return strings.ToUpper(ctype[5:8])
}
