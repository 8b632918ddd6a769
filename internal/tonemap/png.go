package tonemap

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
)

// EncodePNG encodes an 8-bit grayscale layer.
func EncodePNG(img *image.Gray) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
