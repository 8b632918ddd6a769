package render

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sky-unifier/sky-unifier-go/internal/artifacts"
	"github.com/sky-unifier/sky-unifier-go/internal/fetch"
	"github.com/sky-unifier/sky-unifier-go/internal/sky"
	"github.com/sky-unifier/sky-unifier-go/internal/tonemap"
)

type Aligner interface {
	Align(ctx context.Context, raw sky.RawSourceRaster, grid sky.TargetGrid) (sky.AlignedRaster, error)
}

// Pipeline turns one source into one stored layer.
type Pipeline struct {
	Fetcher fetch.Fetcher
	Aligner Aligner
	Store   artifacts.Store
	// Timeout bounds a single layer; zero disables it.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Render never returns an error or panics: every failure, including a panic
// in a collaborator, is reported as a LayerFailure.
func (p *Pipeline) Render(ctx context.Context, src sky.Source, req sky.RenderRequest, grid sky.TargetGrid) (out sky.LayerOutcome) {
	start := time.Now()
	logger := p.logger().With("source", src.ID())

	defer func() {
		if r := recover(); r != nil {
			cause := fmt.Sprintf("internal error: %v", r)
			logger.Error("layer panicked", "error", cause)
			out = failure(src, cause)
		}
	}()

	layerCtx := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		layerCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	artifact, err := p.render(layerCtx, src, req, grid)
	if err != nil {
		cause := p.describe(ctx, layerCtx, err)
		logger.Warn("layer failed", "error", cause, "duration_ms", time.Since(start).Milliseconds())
		return failure(src, cause)
	}
	artifact.Duration = time.Since(start)
	logger.Info("layer rendered",
		"layer_id", artifact.ID,
		"width", artifact.Width,
		"height", artifact.Height,
		"duration_ms", artifact.Duration.Milliseconds(),
	)
	return sky.LayerOutcome{Artifact: artifact}
}

func (p *Pipeline) render(ctx context.Context, src sky.Source, req sky.RenderRequest, grid sky.TargetGrid) (*sky.LayerArtifact, error) {
	raw, err := p.Fetcher.Fetch(ctx, src, req.RA, req.Dec, req.SizeDeg, grid.Size)
	if err != nil {
		return nil, err
	}
	aligned, err := p.Aligner.Align(ctx, raw, grid)
	if err != nil {
		return nil, err
	}

	img := tonemap.Map(aligned.Raster, req.Stretch)
	png, err := tonemap.EncodePNG(img)
	if err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	sidecar, err := artifacts.EncodeRaw(aligned.Raster)
	if err != nil {
		return nil, fmt.Errorf("encode raw samples: %w", err)
	}

	id, err := newLayerID()
	if err != nil {
		return nil, err
	}
	a := &sky.LayerArtifact{
		ID:       id,
		SourceID: src.ID(),
		ImageKey: artifacts.PNGKey(id),
		RawKey:   artifacts.RawKey(id),
		Min:      aligned.Min,
		Max:      aligned.Max,
		Width:    aligned.Raster.Width,
		Height:   aligned.Raster.Height,
	}
	if err := p.Store.Put(ctx, a.RawKey, bytes.NewReader(sidecar), int64(len(sidecar)), artifacts.ContentTypeRaw); err != nil {
		return nil, fmt.Errorf("store raw samples: %w", err)
	}
	// The PNG is written last so a listed layer always has its samples.
	if err := p.Store.Put(ctx, a.ImageKey, bytes.NewReader(png), int64(len(png)), artifacts.ContentTypePNG); err != nil {
		return nil, fmt.Errorf("store png: %w", err)
	}
	return a, nil
}

// describe attributes a context error to the caller when the caller's
// context ended first and to the layer timeout otherwise.
func (p *Pipeline) describe(parent, layer context.Context, err error) string {
	switch {
	case errors.Is(parent.Err(), context.DeadlineExceeded):
		return "request deadline exceeded"
	case parent.Err() != nil:
		return "canceled"
	case p.Timeout > 0 && errors.Is(layer.Err(), context.DeadlineExceeded):
		return fmt.Sprintf("timed out after %s", p.Timeout)
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	return err.Error()
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func failure(src sky.Source, cause string) sky.LayerOutcome {
	return sky.LayerOutcome{Failure: &sky.LayerFailure{SourceID: src.ID(), Cause: cause}}
}

func newLayerID() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate layer id: %w", err)
	}
	return hex.EncodeToString(u[:]), nil
}
