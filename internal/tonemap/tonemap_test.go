package tonemap

import (
	"bytes"
	"image"
	"image/png"
	"math"
	"testing"

	"github.com/sky-unifier/sky-unifier-go/internal/sky"
)

func filled(w, h int, v float64) sky.Raster {
	r := sky.NewRaster(w, h)
	for i := range r.Pix {
		r.Pix[i] = v
	}
	return r
}

func gradient(w, h int) sky.Raster {
	r := sky.NewRaster(w, h)
	for i := range r.Pix {
		r.Pix[i] = float64(i)
	}
	return r
}

func allZero(img *image.Gray) bool {
	for _, v := range img.Pix {
		if v != 0 {
			return false
		}
	}
	return true
}

func TestMap_TotalOnDegenerateInputs(t *testing.T) {
	cases := map[string]sky.Raster{
		"all nan":   filled(7, 3, math.NaN()),
		"all inf":   filled(4, 4, math.Inf(-1)),
		"all equal": filled(5, 9, 42),
		"normal":    gradient(8, 6),
		"single":    filled(1, 1, 3),
	}
	for _, stretch := range []sky.Stretch{sky.StretchLinear, sky.StretchSqrt, sky.StretchLog} {
		for name, r := range cases {
			img := Map(r, stretch)
			b := img.Bounds()
			if b.Dx() != r.Width || b.Dy() != r.Height {
				t.Fatalf("%s/%s: bounds=%v, want %dx%d", name, stretch, b, r.Width, r.Height)
			}
		}
	}
}

func TestMap_AllNaNIsBlack(t *testing.T) {
	if img := Map(filled(3, 3, math.NaN()), sky.StretchSqrt); !allZero(img) {
		t.Fatalf("expected all-zero image, got %v", img.Pix)
	}
}

func TestMap_FlatFieldIsBlack(t *testing.T) {
	if img := Map(filled(600, 600, 1234.5), sky.StretchSqrt); !allZero(img) {
		t.Fatalf("expected all-zero image for flat field")
	}
}

func TestMap_ShortPixelBufferDoesNotPanic(t *testing.T) {
	r := sky.Raster{Width: 4, Height: 4, Pix: []float64{1, 2}}
	img := Map(r, sky.StretchLinear)
	if img.Bounds().Dx() != 4 || !allZero(img) {
		t.Fatalf("expected zero 4x4 image")
	}
}

func TestMap_LinearPreservesOrder(t *testing.T) {
	r := sky.NewRaster(16, 16)
	// values already in [0,255], shuffled so order is not positional
	for i := range r.Pix {
		r.Pix[i] = float64((i * 97) % 256)
	}
	img := Map(r, sky.StretchLinear)

	for i := range r.Pix {
		for j := range r.Pix {
			if r.Pix[i] < r.Pix[j] && img.Pix[i] > img.Pix[j] {
				t.Fatalf("order violated: in[%d]=%v<in[%d]=%v but out %d>%d", i, r.Pix[i], j, r.Pix[j], img.Pix[i], img.Pix[j])
			}
		}
	}
	lo, hi := uint8(255), uint8(0)
	for _, v := range img.Pix {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	if lo != 0 || hi != 255 {
		t.Fatalf("range=[%d,%d], want [0,255]", lo, hi)
	}
}

func TestMap_NaNTakesMedianValue(t *testing.T) {
	r := gradient(10, 10)
	r.Pix[0] = math.NaN()
	img := Map(r, sky.StretchLinear)
	if img.Pix[0] == 0 {
		t.Fatalf("NaN sample should be filled with the median, got black")
	}
	if d := int(img.Pix[0]) - int(img.Pix[50]); d < -3 || d > 3 {
		t.Fatalf("NaN sample=%d, want close to median pixel %d", img.Pix[0], img.Pix[50])
	}
}

func TestMap_RobustToOutliers(t *testing.T) {
	r := gradient(20, 20)
	r.Pix[399] = 1e12
	img := Map(r, sky.StretchLinear)
	if img.Pix[200] < 100 {
		t.Fatalf("mid pixel=%d crushed by outlier", img.Pix[200])
	}
}

func TestMap_SqrtBrightensMidtones(t *testing.T) {
	r := gradient(10, 10)
	lin := Map(r, sky.StretchLinear)
	sqrt := Map(r, sky.StretchSqrt)
	lg := Map(r, sky.StretchLog)
	if !(sqrt.Pix[25] > lin.Pix[25]) {
		t.Fatalf("sqrt=%d, linear=%d: expected sqrt brighter", sqrt.Pix[25], lin.Pix[25])
	}
	if !(lg.Pix[25] > lin.Pix[25]) {
		t.Fatalf("log=%d, linear=%d: expected log brighter", lg.Pix[25], lin.Pix[25])
	}
}

func TestPercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}
	if v, ok := percentile(sorted, 50); !ok || v != 2.5 {
		t.Fatalf("percentile(50)=%v,%v, want 2.5", v, ok)
	}
	if v, _ := percentile(sorted, 0); v != 1 {
		t.Fatalf("percentile(0)=%v, want 1", v)
	}
	if v, _ := percentile(sorted, 100); v != 4 {
		t.Fatalf("percentile(100)=%v, want 4", v)
	}
	if _, ok := percentile(nil, 50); ok {
		t.Fatalf("percentile(nil) expected not ok")
	}
}

func TestAutoContrast(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 3, 1))
	img.Pix = []uint8{50, 75, 100}
	AutoContrast(img)
	if img.Pix[0] != 0 || img.Pix[2] != 255 {
		t.Fatalf("AutoContrast()=%v, want [0 _ 255]", img.Pix)
	}
	if img.Pix[1] != 127 {
		t.Fatalf("AutoContrast() mid=%d, want 127", img.Pix[1])
	}
}

func TestAutoContrast_SingleLevelUnchanged(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	for i := range img.Pix {
		img.Pix[i] = 9
	}
	AutoContrast(img)
	for _, v := range img.Pix {
		if v != 9 {
			t.Fatalf("AutoContrast() changed single-level image: %v", img.Pix)
		}
	}
}

func TestEncodePNG(t *testing.T) {
	img := Map(gradient(12, 7), sky.StretchSqrt)
	data, err := EncodePNG(img)
	if err != nil {
		t.Fatalf("EncodePNG() err=%v", err)
	}
	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("png.Decode() err=%v", err)
	}
	if decoded.Bounds() != img.Bounds() {
		t.Fatalf("bounds=%v, want %v", decoded.Bounds(), img.Bounds())
	}
	if _, ok := decoded.(*image.Gray); !ok {
		t.Fatalf("decoded type=%T, want *image.Gray", decoded)
	}
}
