package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"
)

// GCSStore keeps artifacts in a Google Cloud Storage bucket.
type GCSStore struct {
	bucket *storage.BucketHandle
	prefix string
}

func NewGCSStore(client *storage.Client, bucket, prefix string) *GCSStore {
	return &GCSStore{bucket: client.Bucket(bucket), prefix: prefix}
}

func (s *GCSStore) object(key string) *storage.ObjectHandle {
	if s.prefix == "" {
		return s.bucket.Object(key)
	}
	return s.bucket.Object(path.Join(s.prefix, key))
}

func (s *GCSStore) Put(ctx context.Context, key string, body io.Reader, _ int64, contentType string) error {
	if err := CheckKey(key); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, body); err != nil {
		// Cancelling the context before Close aborts the upload.
		cancel()
		_ = w.Close()
		return fmt.Errorf("put %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *GCSStore) Open(ctx context.Context, key string) (io.ReadCloser, Info, error) {
	if err := CheckKey(key); err != nil {
		return nil, Info{}, err
	}
	r, err := s.object(key).NewReader(ctx)
	if err != nil {
		return nil, Info{}, mapGCSError(key, err)
	}
	info := Info{Key: key, Size: r.Attrs.Size, ContentType: r.Attrs.ContentType, ModTime: r.Attrs.LastModified}
	return r, info, nil
}

func (s *GCSStore) Stat(ctx context.Context, key string) (Info, error) {
	if err := CheckKey(key); err != nil {
		return Info{}, err
	}
	attrs, err := s.object(key).Attrs(ctx)
	if err != nil {
		return Info{}, mapGCSError(key, err)
	}
	return Info{Key: key, Size: attrs.Size, ContentType: attrs.ContentType, ModTime: attrs.Updated}, nil
}

func mapGCSError(key string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return fmt.Errorf("gcs %s: %w", key, err)
}
