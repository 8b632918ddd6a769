package objectstore

import (
	"errors"
	"strings"

	"github.com/sky-unifier/sky-unifier-go/internal/platform/env"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
	// Prefix is prepended to every object key.
	Prefix string
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("SKY_UNIFIER_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:  env.String("SKY_UNIFIER_MINIO_ENDPOINT", "localhost:9000"),
		AccessKey: env.String("SKY_UNIFIER_MINIO_ACCESS_KEY", ""),
		SecretKey: env.String("SKY_UNIFIER_MINIO_SECRET_KEY", ""),
		Region:    env.String("SKY_UNIFIER_MINIO_REGION", "us-east-1"),
		UseSSL:    useSSL,
		Bucket:    env.String("SKY_UNIFIER_MINIO_BUCKET", "sky-unifier-layers"),
		Prefix:    strings.Trim(env.String("SKY_UNIFIER_MINIO_PREFIX", ""), "/"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("SKY_UNIFIER_MINIO_ENDPOINT is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return errors.New("SKY_UNIFIER_MINIO_ENDPOINT must be host[:port] without scheme")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return errors.New("SKY_UNIFIER_MINIO_ACCESS_KEY and SKY_UNIFIER_MINIO_SECRET_KEY are required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("SKY_UNIFIER_MINIO_BUCKET is required")
	}
	return nil
}
