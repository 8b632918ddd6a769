package artifacts

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/golang/snappy"

	"github.com/sky-unifier/sky-unifier-go/internal/sky"
)

var rawMagic = [4]byte{'S', 'K', 'Y', 'F'}

const rawHeaderLen = 12

var ErrCorruptRaw = errors.New("corrupt raw layer")

// EncodeRaw serialises r as a snappy block holding a "SKYF" magic, width and
// height as little-endian uint32, then the samples as little-endian float32.
// NaN survives the conversion.
func EncodeRaw(r sky.Raster) ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: raster %dx%d with %d samples", ErrCorruptRaw, r.Width, r.Height, len(r.Pix))
	}
	buf := make([]byte, rawHeaderLen+4*len(r.Pix))
	copy(buf, rawMagic[:])
	binary.LittleEndian.PutUint32(buf[4:], uint32(r.Width))
	binary.LittleEndian.PutUint32(buf[8:], uint32(r.Height))
	for i, v := range r.Pix {
		binary.LittleEndian.PutUint32(buf[rawHeaderLen+4*i:], math.Float32bits(float32(v)))
	}
	return snappy.Encode(nil, buf), nil
}

func DecodeRaw(b []byte) (sky.Raster, error) {
	buf, err := snappy.Decode(nil, b)
	if err != nil {
		return sky.Raster{}, fmt.Errorf("%w: %v", ErrCorruptRaw, err)
	}
	if len(buf) < rawHeaderLen || [4]byte(buf[:4]) != rawMagic {
		return sky.Raster{}, fmt.Errorf("%w: bad header", ErrCorruptRaw)
	}
	w := int(binary.LittleEndian.Uint32(buf[4:]))
	h := int(binary.LittleEndian.Uint32(buf[8:]))
	if w <= 0 || h <= 0 || len(buf)-rawHeaderLen != 4*w*h {
		return sky.Raster{}, fmt.Errorf("%w: %dx%d does not match %d payload bytes", ErrCorruptRaw, w, h, len(buf)-rawHeaderLen)
	}
	out := sky.NewRaster(w, h)
	for i := range out.Pix {
		out.Pix[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[rawHeaderLen+4*i:])))
	}
	return out, nil
}
