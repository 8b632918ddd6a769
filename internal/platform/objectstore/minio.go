package objectstore

import (
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Bucket is the MinIO bucket that holds rendered layers.
type Bucket struct {
	Client *minio.Client
	Name   string
	Region string
	Prefix string
}

// Open builds a client for cfg without contacting the server.
func Open(cfg Config) (*Bucket, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	transport, err := minio.DefaultTransport(cfg.UseSSL)
	if err != nil {
		return nil, fmt.Errorf("minio transport: %w", err)
	}
	transport.ResponseHeaderTimeout = 30 * time.Second
	transport.TLSHandshakeTimeout = 5 * time.Second

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &Bucket{Client: client, Name: cfg.Bucket, Region: cfg.Region, Prefix: cfg.Prefix}, nil
}

// Ensure creates the bucket when it does not exist yet. A concurrent creator
// winning the race is not an error.
func (b *Bucket) Ensure(ctx context.Context) error {
	exists, err := b.Client.BucketExists(ctx, b.Name)
	if err != nil {
		return fmt.Errorf("layer bucket %s: %w", b.Name, err)
	}
	if exists {
		return nil
	}
	err = b.Client.MakeBucket(ctx, b.Name, minio.MakeBucketOptions{Region: b.Region})
	if err != nil {
		if code := minio.ToErrorResponse(err).Code; code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists" {
			return nil
		}
		return fmt.Errorf("create layer bucket %s: %w", b.Name, err)
	}
	return nil
}

// Check is a readiness probe: the bucket must exist and be reachable.
func (b *Bucket) Check(ctx context.Context) error {
	exists, err := b.Client.BucketExists(ctx, b.Name)
	if err != nil {
		return fmt.Errorf("layer bucket %s: %w", b.Name, err)
	}
	if !exists {
		return fmt.Errorf("layer bucket missing: %s", b.Name)
	}
	return nil
}
