// Package artifacts stores rendered layers: the PNG shown to clients and the
// raw float32 samples it was made from.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	ContentTypePNG = "image/png"
	ContentTypeRaw = "application/octet-stream"

	PNGSuffix = ".png"
	RawSuffix = ".f32.snp"
)

var (
	ErrNotFound   = errors.New("artifact not found")
	ErrInvalidKey = errors.New("invalid artifact key")
)

type Info struct {
	Key         string
	Size        int64
	ContentType string
	ModTime     time.Time
}

// Store is a flat key/value blob store.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, Info, error)
	Stat(ctx context.Context, key string) (Info, error)
}

func PNGKey(id string) string { return id + PNGSuffix }
func RawKey(id string) string { return id + RawSuffix }

// CheckKey accepts flat names made of letters, digits, '.', '-' and '_' that
// do not start with a dot.
func CheckKey(key string) error {
	if key == "" || len(key) > 200 || key[0] == '.' {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}
