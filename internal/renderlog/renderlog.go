// Package renderlog keeps a ledger of render requests and their per-layer
// outcomes.
package renderlog

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sky-unifier/sky-unifier-go/internal/sky"
)

//go:embed schema.sql
var schemaSQL string

type Entry struct {
	RenderID    string
	RequestID   string
	Fingerprint string
	Request     sky.RenderRequest
	GridSize    int
	Outcomes    []sky.LayerOutcome
	Duration    time.Duration
	CreatedAt   time.Time
}

func (e Entry) Validate() error {
	if strings.TrimSpace(e.RenderID) == "" {
		return errors.New("RenderID is required")
	}
	if strings.TrimSpace(e.Fingerprint) == "" {
		return errors.New("Fingerprint is required")
	}
	if e.GridSize <= 0 {
		return errors.New("GridSize must be positive")
	}
	return nil
}

// Recorder persists render entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Nop discards entries; used when no database is configured.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }

type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// EnsureSchema creates the ledger tables when missing.
func EnsureSchema(ctx context.Context, db Execer) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure render ledger schema: %w", err)
	}
	return nil
}

type PostgresRecorder struct {
	db *sql.DB
}

func NewPostgresRecorder(db *sql.DB) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

// Record writes the request row and one row per outcome in one transaction.
func (r *PostgresRecorder) Record(ctx context.Context, e Entry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insert(ctx, tx, e); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insert(ctx context.Context, ex Execer, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if err := e.Validate(); err != nil {
		return err
	}
	sources, err := json.Marshal(sky.SourceIDs(e.Request.Sources))
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}

	failures := 0
	for _, o := range e.Outcomes {
		if o.Failure != nil {
			failures++
		}
	}

	_, err = ex.ExecContext(
		ctx,
		`INSERT INTO render_requests (
			render_id,
			fingerprint,
			ra,
			dec,
			size_deg,
			pixel_scale,
			stretch,
			sources,
			grid_size,
			layer_count,
			failure_count,
			duration_ms,
			request_id,
			created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		e.RenderID,
		e.Fingerprint,
		e.Request.RA,
		e.Request.Dec,
		e.Request.SizeDeg,
		e.Request.PixelScale,
		string(e.Request.Stretch),
		sources,
		e.GridSize,
		len(e.Outcomes)-failures,
		failures,
		e.Duration.Milliseconds(),
		nullString(e.RequestID),
		e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert render request: %w", err)
	}

	for _, o := range e.Outcomes {
		var (
			source     string
			layerID    sql.NullString
			lo, hi     sql.NullFloat64
			cause      sql.NullString
			durationMs sql.NullInt64
		)
		switch {
		case o.Artifact != nil:
			source = o.Artifact.SourceID
			layerID = nullString(o.Artifact.ID)
			lo, hi = nullFloat(o.Artifact.Min), nullFloat(o.Artifact.Max)
			durationMs = sql.NullInt64{Int64: o.Artifact.Duration.Milliseconds(), Valid: true}
		case o.Failure != nil:
			source = o.Failure.SourceID
			cause = nullString(o.Failure.Cause)
		default:
			continue
		}
		_, err := ex.ExecContext(
			ctx,
			`INSERT INTO render_layers (
				render_id,
				position,
				source,
				layer_id,
				min_value,
				max_value,
				error,
				duration_ms
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			e.RenderID,
			o.Index,
			source,
			layerID,
			lo,
			hi,
			cause,
			durationMs,
		)
		if err != nil {
			return fmt.Errorf("insert render layer %d: %w", o.Index, err)
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v) && !math.IsInf(v, 0)}
}
