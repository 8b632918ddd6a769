// Package render fans a render request out over a shared worker pool and
// collects one outcome per requested source.
package render

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/sky-unifier/sky-unifier-go/internal/cachekey"
	"github.com/sky-unifier/sky-unifier-go/internal/grid"
	"github.com/sky-unifier/sky-unifier-go/internal/sky"
)

// LayerRenderer is the per-source unit of work run on the pool.
type LayerRenderer interface {
	Render(ctx context.Context, src sky.Source, req sky.RenderRequest, grid sky.TargetGrid) sky.LayerOutcome
}

type Result struct {
	Layers      []sky.LayerArtifact
	Failures    []sky.LayerFailure
	Outcomes    []sky.LayerOutcome
	Grid        sky.TargetGrid
	Fingerprint string
	Duration    time.Duration
}

// SortByRequestOrder reorders layers and failures by the position of their
// source in the request. Results are otherwise in completion order.
func (r *Result) SortByRequestOrder() {
	sort.SliceStable(r.Outcomes, func(i, j int) bool { return r.Outcomes[i].Index < r.Outcomes[j].Index })
	r.Layers, r.Failures = split(r.Outcomes)
}

type Orchestrator struct {
	Limits   sky.Limits
	Pool     *Pool
	Pipeline LayerRenderer
	Logger   *slog.Logger
}

// RenderAll validates req, builds one grid and runs one pipeline per source.
// Only request-level problems are returned as errors.
func (o *Orchestrator) RenderAll(ctx context.Context, req sky.RenderRequest) (Result, error) {
	start := time.Now()
	if err := req.Validate(o.Limits); err != nil {
		return Result{}, err
	}

	builder := grid.Builder{MaxFieldDeg: o.Limits.MaxFieldDeg, MaxPixels: o.Limits.MaxPixels, Logger: o.logger()}
	g, err := builder.Build(req.RA, req.Dec, req.SizeDeg, req.PixelScale)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", sky.ErrInvalidRequest, err)
	}

	n := len(req.Sources)
	outcomes := make(chan sky.LayerOutcome, n)
	go func() {
		for i, src := range req.Sources {
			err := o.Pool.Submit(ctx, func() {
				// A panicking renderer must not take the shared worker down
				// or leave the collector one outcome short.
				defer func() {
					if r := recover(); r != nil {
						cause := fmt.Sprintf("internal error: %v", r)
						o.logger().Error("layer panicked", "source", src.ID(), "error", cause)
						outcomes <- failed(i, src, cause)
					}
				}()
				out := o.Pipeline.Render(ctx, src, req, g)
				out.Index = i
				outcomes <- out
			})
			if err != nil {
				outcomes <- failed(i, src, fmt.Sprintf("not started: %v", err))
			}
		}
	}()

	res := Result{Grid: g, Fingerprint: cachekey.Fingerprint(req), Outcomes: make([]sky.LayerOutcome, 0, n)}
	for len(res.Outcomes) < n {
		res.Outcomes = append(res.Outcomes, <-outcomes)
	}
	res.Layers, res.Failures = split(res.Outcomes)
	res.Duration = time.Since(start)

	o.logger().Info("render complete",
		"fingerprint", res.Fingerprint,
		"grid_size", g.Size,
		"layers", len(res.Layers),
		"failures", len(res.Failures),
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

func failed(i int, src sky.Source, cause string) sky.LayerOutcome {
	return sky.LayerOutcome{Index: i, Failure: &sky.LayerFailure{SourceID: src.ID(), Cause: cause}}
}

func split(outcomes []sky.LayerOutcome) ([]sky.LayerArtifact, []sky.LayerFailure) {
	layers := make([]sky.LayerArtifact, 0, len(outcomes))
	failures := make([]sky.LayerFailure, 0)
	for _, out := range outcomes {
		switch {
		case out.Artifact != nil:
			layers = append(layers, *out.Artifact)
		case out.Failure != nil:
			failures = append(failures, *out.Failure)
		}
	}
	return layers, failures
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}
