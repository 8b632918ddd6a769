package grid

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/sky-unifier/sky-unifier-go/internal/sky"
)

func testBuilder(buf *bytes.Buffer) Builder {
	return Builder{
		MaxFieldDeg: 2,
		MaxPixels:   2500,
		Logger:      slog.New(slog.NewJSONHandler(buf, nil)),
	}
}

func TestBuild_PixelCount(t *testing.T) {
	var buf bytes.Buffer
	g, err := testBuilder(&buf).Build(10.68, 41.27, 0.1, 1.0)
	if err != nil {
		t.Fatalf("Build() err=%v", err)
	}
	if g.Size != 360 {
		t.Fatalf("Size=%d, want 360", g.Size)
	}
	if g.Projection != sky.ProjectionTAN {
		t.Fatalf("Projection=%q, want TAN", g.Projection)
	}
	if g.WCS.CRPix != [2]float64{180, 180} {
		t.Fatalf("CRPix=%v, want [180 180]", g.WCS.CRPix)
	}
	if g.WCS.CD[0][0] >= 0 || g.WCS.CD[1][1] <= 0 {
		t.Fatalf("CD=%v, want negative first axis and positive second axis", g.WCS.CD)
	}
	if buf.Len() != 0 {
		t.Fatalf("unexpected log output: %s", buf.String())
	}
}

func TestBuild_BoundsHoldForAllInputs(t *testing.T) {
	var buf bytes.Buffer
	b := testBuilder(&buf)
	sizes := []float64{1e-6, 0.001, 0.01, 0.1, 0.5, 1, 1.999, 2}
	scales := []float64{0.01, 0.1, 0.5, 1, 2.5, 10, 60, 3600, 1e6}
	for _, size := range sizes {
		for _, scale := range scales {
			g, err := b.Build(0, 0, size, scale)
			if err != nil {
				t.Fatalf("Build(%v,%v) err=%v", size, scale, err)
			}
			if g.Size < MinPixels || g.Size > b.MaxPixels {
				t.Fatalf("Build(%v,%v) Size=%d out of [%d,%d]", size, scale, g.Size, MinPixels, b.MaxPixels)
			}
		}
	}
}

func TestBuild_FloorClamp(t *testing.T) {
	var buf bytes.Buffer
	g, err := testBuilder(&buf).Build(0, 0, 0.001, 10)
	if err != nil {
		t.Fatalf("Build() err=%v", err)
	}
	if g.Size != MinPixels {
		t.Fatalf("Size=%d, want %d", g.Size, MinPixels)
	}
}

func TestBuild_CeilingClampWarns(t *testing.T) {
	var buf bytes.Buffer
	g, err := testBuilder(&buf).Build(0, 0, 2, 0.1)
	if err != nil {
		t.Fatalf("Build() err=%v", err)
	}
	if g.Size != 2500 {
		t.Fatalf("Size=%d, want 2500", g.Size)
	}
	if !strings.Contains(buf.String(), "exceeds pixel cap") {
		t.Fatalf("expected warning, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), `"level":"WARN"`) {
		t.Fatalf("expected WARN level, got %q", buf.String())
	}
}

func TestBuild_InvalidField(t *testing.T) {
	var buf bytes.Buffer
	b := testBuilder(&buf)
	for _, size := range []float64{0, -0.5, 2.01, 5} {
		if _, err := b.Build(0, 0, size, 1); !errors.Is(err, sky.ErrInvalidField) {
			t.Fatalf("Build(size=%v) err=%v, want ErrInvalidField", size, err)
		}
	}
	if _, err := b.Build(0, 0, 2, 1); err != nil {
		t.Fatalf("Build(size=max) err=%v", err)
	}
}

func TestBuild_InvalidPixelScale(t *testing.T) {
	var buf bytes.Buffer
	if _, err := testBuilder(&buf).Build(0, 0, 0.1, 0); !errors.Is(err, sky.ErrInvalidField) {
		t.Fatalf("Build(scale=0) err=%v, want ErrInvalidField", err)
	}
}
