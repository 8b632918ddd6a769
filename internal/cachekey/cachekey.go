// Package cachekey fingerprints the semantic content of a render request.
package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/sky-unifier/sky-unifier-go/internal/sky"
)

// Fingerprint returns a 64-character hex digest of req. Numeric fields are
// rounded to six decimals so representation noise below 1e-6 does not change
// the key; sources are encoded in request order, so reordering them changes it.
func Fingerprint(req sky.RenderRequest) string {
	sum := sha256.Sum256([]byte(Canonical(req)))
	return hex.EncodeToString(sum[:])
}

// Canonical is the pre-hash key, exposed for logging and tests.
func Canonical(req sky.RenderRequest) string {
	parts := []string{
		fixed(req.RA),
		fixed(req.Dec),
		fixed(req.SizeDeg),
		sourceList(sky.SourceIDs(req.Sources)),
		string(req.Stretch),
		fixed(req.PixelScale),
	}
	return strings.Join(parts, "_")
}

// sourceList length-prefixes each id so ids containing the separator
// cannot collide with a longer list.
func sourceList(ids []string) string {
	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(len(id)))
		b.WriteByte(':')
		b.WriteString(id)
	}
	return b.String()
}

func fixed(v float64) string {
	s := strconv.FormatFloat(v, 'f', 6, 64)
	if s == "-0.000000" {
		return "0.000000"
	}
	return s
}
