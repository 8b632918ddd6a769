// Package config assembles the service configuration from built-in defaults,
// an optional YAML file named by SKY_UNIFIER_CONFIG, and environment
// overrides, in that order.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sky-unifier/sky-unifier-go/internal/archive/mast"
	"github.com/sky-unifier/sky-unifier-go/internal/archive/skyview"
	"github.com/sky-unifier/sky-unifier-go/internal/platform/env"
)

const (
	BackendFS    = "fs"
	BackendMinIO = "minio"
	BackendGCS   = "gcs"
)

type Config struct {
	HTTPAddr        string        `yaml:"http_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowOrigin     string        `yaml:"allow_origin"`

	MaxFieldDeg       float64       `yaml:"max_field_deg"`
	MaxPixels         int           `yaml:"max_pixels"`
	DefaultPixelScale float64       `yaml:"default_pixel_scale"`
	Workers           int           `yaml:"workers"`
	LayerTimeout      time.Duration `yaml:"layer_timeout"`

	ArchiveTimeout time.Duration `yaml:"archive_timeout"`
	SkyViewURL     string        `yaml:"skyview_url"`
	SkyViewFormURL string        `yaml:"skyview_form_url"`
	MASTURL        string        `yaml:"mast_url"`
	DownloadDir    string        `yaml:"download_dir"`

	ArtifactBackend string `yaml:"artifact_backend"`
	LayerDir        string `yaml:"layer_dir"`
	GCSBucket       string `yaml:"gcs_bucket"`
	GCSPrefix       string `yaml:"gcs_prefix"`
}

func Defaults() Config {
	return Config{
		HTTPAddr:          ":8000",
		ShutdownTimeout:   10 * time.Second,
		AllowOrigin:       "*",
		MaxFieldDeg:       2.0,
		MaxPixels:         2500,
		DefaultPixelScale: 1.0,
		Workers:           4,
		LayerTimeout:      3 * time.Minute,
		ArchiveTimeout:    2 * time.Minute,
		SkyViewURL:        skyview.DefaultBaseURL,
		SkyViewFormURL:    skyview.DefaultFormURL,
		MASTURL:           mast.DefaultBaseURL,
		DownloadDir:       filepath.Join(os.TempDir(), "sky-unifier", "mast"),
		ArtifactBackend:   BackendFS,
		LayerDir:          "layers",
	}
}

// Load reads the configuration and validates it.
func Load() (Config, error) {
	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv("SKY_UNIFIER_CONFIG")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if cfg, err = Parse(data, cfg); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse overlays a YAML document on base. Unknown keys are rejected.
func Parse(data []byte, base Config) (Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	cfg := base
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var err error
	c.HTTPAddr = env.String("SKY_UNIFIER_HTTP_ADDR", c.HTTPAddr)
	c.AllowOrigin = env.String("SKY_UNIFIER_ALLOW_ORIGIN", c.AllowOrigin)
	if c.ShutdownTimeout, err = env.Duration("SKY_UNIFIER_SHUTDOWN_TIMEOUT", c.ShutdownTimeout); err != nil {
		return err
	}
	if c.MaxFieldDeg, err = env.Float("SKY_UNIFIER_MAX_FIELD_DEG", c.MaxFieldDeg); err != nil {
		return err
	}
	if c.MaxPixels, err = env.Int("SKY_UNIFIER_MAX_PIXELS", c.MaxPixels); err != nil {
		return err
	}
	if c.DefaultPixelScale, err = env.Float("SKY_UNIFIER_DEFAULT_PIXEL_SCALE", c.DefaultPixelScale); err != nil {
		return err
	}
	if c.Workers, err = env.Int("SKY_UNIFIER_WORKERS", c.Workers); err != nil {
		return err
	}
	if c.LayerTimeout, err = env.Duration("SKY_UNIFIER_LAYER_TIMEOUT", c.LayerTimeout); err != nil {
		return err
	}
	if c.ArchiveTimeout, err = env.Duration("SKY_UNIFIER_ARCHIVE_TIMEOUT", c.ArchiveTimeout); err != nil {
		return err
	}
	c.SkyViewURL = env.String("SKY_UNIFIER_SKYVIEW_URL", c.SkyViewURL)
	c.SkyViewFormURL = env.String("SKY_UNIFIER_SKYVIEW_FORM_URL", c.SkyViewFormURL)
	c.MASTURL = env.String("SKY_UNIFIER_MAST_URL", c.MASTURL)
	c.DownloadDir = env.String("SKY_UNIFIER_DOWNLOAD_DIR", c.DownloadDir)
	c.ArtifactBackend = strings.ToLower(strings.TrimSpace(env.String("SKY_UNIFIER_ARTIFACT_BACKEND", c.ArtifactBackend)))
	c.LayerDir = env.String("SKY_UNIFIER_LAYER_DIR", c.LayerDir)
	c.GCSBucket = env.String("SKY_UNIFIER_GCS_BUCKET", c.GCSBucket)
	c.GCSPrefix = strings.Trim(env.String("SKY_UNIFIER_GCS_PREFIX", c.GCSPrefix), "/")
	return nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errors.New("SKY_UNIFIER_HTTP_ADDR is required")
	}
	if !(c.MaxFieldDeg > 0) || math.IsInf(c.MaxFieldDeg, 0) {
		return errors.New("SKY_UNIFIER_MAX_FIELD_DEG must be positive")
	}
	if c.MaxPixels < 10 {
		return errors.New("SKY_UNIFIER_MAX_PIXELS must be >= 10")
	}
	if !(c.DefaultPixelScale > 0) || math.IsInf(c.DefaultPixelScale, 0) {
		return errors.New("SKY_UNIFIER_DEFAULT_PIXEL_SCALE must be positive")
	}
	if c.Workers < 1 {
		return errors.New("SKY_UNIFIER_WORKERS must be >= 1")
	}
	if c.LayerTimeout <= 0 {
		return errors.New("SKY_UNIFIER_LAYER_TIMEOUT must be positive")
	}
	if c.ArchiveTimeout <= 0 {
		return errors.New("SKY_UNIFIER_ARCHIVE_TIMEOUT must be positive")
	}
	if strings.TrimSpace(c.DownloadDir) == "" {
		return errors.New("SKY_UNIFIER_DOWNLOAD_DIR is required")
	}
	switch c.ArtifactBackend {
	case BackendFS:
		if strings.TrimSpace(c.LayerDir) == "" {
			return errors.New("SKY_UNIFIER_LAYER_DIR is required for the fs backend")
		}
	case BackendMinIO:
	case BackendGCS:
		if strings.TrimSpace(c.GCSBucket) == "" {
			return errors.New("SKY_UNIFIER_GCS_BUCKET is required for the gcs backend")
		}
	default:
		return fmt.Errorf("SKY_UNIFIER_ARTIFACT_BACKEND unsupported: %q", c.ArtifactBackend)
	}
	return nil
}
