package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/sky-unifier/sky-unifier-go/internal/archive/mast"
	"github.com/sky-unifier/sky-unifier-go/internal/archive/skyview"
	"github.com/sky-unifier/sky-unifier-go/internal/artifacts"
	"github.com/sky-unifier/sky-unifier-go/internal/catalog"
	"github.com/sky-unifier/sky-unifier-go/internal/config"
	"github.com/sky-unifier/sky-unifier-go/internal/fetch"
	"github.com/sky-unifier/sky-unifier-go/internal/platform/apispec"
	"github.com/sky-unifier/sky-unifier-go/internal/platform/httpserver"
	"github.com/sky-unifier/sky-unifier-go/internal/platform/objectstore"
	"github.com/sky-unifier/sky-unifier-go/internal/platform/postgres"
	"github.com/sky-unifier/sky-unifier-go/internal/render"
	"github.com/sky-unifier/sky-unifier-go/internal/renderlog"
	"github.com/sky-unifier/sky-unifier-go/internal/reproject"
	"github.com/sky-unifier/sky-unifier-go/internal/sky"
)

const service = "sky-unifier"

// version is overridden at link time.
var version = "0.4"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(2)
	}

	store, storeCheck, closeStore, err := newArtifactStore(ctx, cfg)
	if err != nil {
		logger.Error("artifact store unavailable", "backend", cfg.ArtifactBackend, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	if err := os.MkdirAll(cfg.DownloadDir, 0o755); err != nil {
		logger.Error("download dir unavailable", "dir", cfg.DownloadDir, "error", err)
		os.Exit(1)
	}
	mastClient, err := mast.New(mast.Config{
		BaseURL:   cfg.MASTURL,
		Timeout:   cfg.ArchiveTimeout,
		Downloads: osfs.New(cfg.DownloadDir),
	})
	if err != nil {
		logger.Error("invalid mast config", "error", err)
		os.Exit(2)
	}
	skyviewClient := skyview.New(skyview.Config{
		BaseURL: cfg.SkyViewURL,
		FormURL: cfg.SkyViewFormURL,
		Timeout: cfg.ArchiveTimeout,
	})

	pool := render.NewPool(cfg.Workers)
	defer pool.Close()

	orchestrator := &render.Orchestrator{
		Limits: sky.Limits{MaxFieldDeg: cfg.MaxFieldDeg, MaxPixels: cfg.MaxPixels},
		Pool:   pool,
		Pipeline: &render.Pipeline{
			Fetcher: fetch.Dispatcher{
				Catalog: &fetch.CatalogFetcher{Archive: skyviewClient},
				Mission: &fetch.MissionFetcher{Archive: mastClient, Logger: logger},
			},
			Aligner: reproject.Aligner{Resampler: reproject.Bilinear{}},
			Store:   store,
			Timeout: cfg.LayerTimeout,
			Logger:  logger,
		},
		Logger: logger,
	}

	spec, err := apispec.Load(ctx)
	if err != nil {
		logger.Error("invalid openapi document", "error", err)
		os.Exit(1)
	}

	checks := []httpserver.ReadinessCheck{{Name: "artifacts", Check: storeCheck}}

	var ledger renderlog.Recorder = renderlog.Nop{}
	dbCfg, err := postgres.ConfigFromEnv()
	switch {
	case errors.Is(err, postgres.ErrDisabled):
		logger.Info("render ledger disabled", "reason", "DATABASE_URL not set")
	case err != nil:
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	default:
		db, err := postgres.Open(ctx, dbCfg)
		if err != nil {
			logger.Error("database unavailable", "error", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		if err := renderlog.EnsureSchema(ctx, db); err != nil {
			logger.Error("render ledger schema failed", "error", err)
			os.Exit(1)
		}
		ledger = renderlog.NewPostgresRecorder(db)
		checks = append(checks, httpserver.ReadinessCheck{
			Name: "postgres",
			Check: func(ctx context.Context) error {
				checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
				defer cancel()
				return db.PingContext(checkCtx)
			},
		})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz(service))
	mux.HandleFunc("/readyz", httpserver.ReadyzWithChecks(service, checks...))

	api := newSkyUnifierAPI(logger, spec, orchestrator, store, catalog.NewCache(skyviewClient, logger), ledger, cfg.DefaultPixelScale, version)
	api.register(mux)

	logger.Info("starting",
		"version", version,
		"workers", cfg.Workers,
		"artifact_backend", cfg.ArtifactBackend,
		"max_field_deg", cfg.MaxFieldDeg,
		"max_pixels", cfg.MaxPixels,
	)

	srvCfg := httpserver.Config{
		Service:         service,
		Addr:            cfg.HTTPAddr,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}
	handler := httpserver.CORS(cfg.AllowOrigin, mux)
	if err := httpserver.Run(ctx, logger, srvCfg, httpserver.Wrap(logger, service, handler)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// newArtifactStore opens the configured layer store and returns its readiness
// check and a release func.
func newArtifactStore(ctx context.Context, cfg config.Config) (artifacts.Store, func(context.Context) error, func(), error) {
	switch cfg.ArtifactBackend {
	case config.BackendMinIO:
		osCfg, err := objectstore.ConfigFromEnv()
		if err != nil {
			return nil, nil, nil, err
		}
		bucket, err := objectstore.Open(osCfg)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := bucket.Ensure(ctx); err != nil {
			return nil, nil, nil, err
		}
		check := func(ctx context.Context) error {
			checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
			defer cancel()
			return bucket.Check(checkCtx)
		}
		return artifacts.NewMinioStore(bucket.Client, bucket.Name, bucket.Prefix), check, func() {}, nil

	case config.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("gcs client: %w", err)
		}
		check := func(ctx context.Context) error {
			checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
			defer cancel()
			_, err := client.Bucket(cfg.GCSBucket).Attrs(checkCtx)
			return err
		}
		return artifacts.NewGCSStore(client, cfg.GCSBucket, cfg.GCSPrefix), check, func() { _ = client.Close() }, nil

	default:
		if err := os.MkdirAll(cfg.LayerDir, 0o755); err != nil {
			return nil, nil, nil, err
		}
		check := func(context.Context) error {
			_, err := os.Stat(cfg.LayerDir)
			return err
		}
		return artifacts.NewFileStore(osfs.New(cfg.LayerDir)), check, func() {}, nil
	}
}
