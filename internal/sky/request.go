package sky

import (
	"fmt"
	"math"
	"strings"
)

type Stretch string

const (
	StretchLinear Stretch = "linear"
	StretchSqrt   Stretch = "sqrt"
	StretchLog    Stretch = "log"
)

const DefaultStretch = StretchSqrt

// ParseStretch accepts linear, sqrt and log; empty selects DefaultStretch.
func ParseStretch(s string) (Stretch, error) {
	switch Stretch(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return DefaultStretch, nil
	case StretchLinear:
		return StretchLinear, nil
	case StretchSqrt:
		return StretchSqrt, nil
	case StretchLog:
		return StretchLog, nil
	default:
		return "", fmt.Errorf("%w: unsupported stretch %q", ErrInvalidRequest, s)
	}
}

// RenderRequest is an accepted render request. Treat it as immutable.
type RenderRequest struct {
	RA         float64
	Dec        float64
	SizeDeg    float64
	Sources    []Source
	Stretch    Stretch
	PixelScale float64
}

// Limits are the process-wide request safeguards.
type Limits struct {
	MaxFieldDeg float64
	MaxPixels   int
}

// Validate performs the coarse checks that reject a request before any work starts.
func (r RenderRequest) Validate(limits Limits) error {
	if len(r.Sources) == 0 {
		return fmt.Errorf("%w: no surveys requested", ErrInvalidRequest)
	}
	if err := ValidateField(r.SizeDeg, limits.MaxFieldDeg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if !finite(r.RA) || !finite(r.Dec) {
		return fmt.Errorf("%w: ra/dec must be finite", ErrInvalidRequest)
	}
	if r.Dec < -90 || r.Dec > 90 {
		return fmt.Errorf("%w: dec must be within [-90, 90]", ErrInvalidRequest)
	}
	if !finite(r.PixelScale) || r.PixelScale <= 0 {
		return fmt.Errorf("%w: pixel_scale must be positive", ErrInvalidRequest)
	}
	if _, err := ParseStretch(string(r.Stretch)); err != nil {
		return err
	}
	return nil
}

// ValidateField checks a field size against the configured maximum. A size
// equal to the maximum is accepted.
func ValidateField(sizeDeg, maxFieldDeg float64) error {
	if !finite(sizeDeg) || sizeDeg <= 0 {
		return fmt.Errorf("%w: size_deg must be positive", ErrInvalidField)
	}
	if sizeDeg > maxFieldDeg {
		return fmt.Errorf("%w: size_deg too large (max %g deg)", ErrInvalidField, maxFieldDeg)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
