package artifacts

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-git/go-billy/v5"
)

// FileStore keeps artifacts as files in a billy filesystem. Writes go to a
// temporary file that is renamed into place, so readers never see partial
// layers.
type FileStore struct {
	fs billy.Filesystem
}

func NewFileStore(fs billy.Filesystem) *FileStore {
	return &FileStore{fs: fs}
}

func (s *FileStore) Put(ctx context.Context, key string, body io.Reader, size int64, _ string) error {
	if err := CheckKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := s.fs.TempFile("", "."+key+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	n, err := io.Copy(tmp, body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil && size >= 0 && n != size {
		err = fmt.Errorf("wrote %d bytes, want %d", n, size)
	}
	if err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := s.fs.Rename(tmpName, key); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) Open(_ context.Context, key string) (io.ReadCloser, Info, error) {
	info, err := s.stat(key)
	if err != nil {
		return nil, Info{}, err
	}
	f, err := s.fs.Open(key)
	if err != nil {
		return nil, Info{}, mapFSError(key, err)
	}
	br := bufio.NewReader(f)
	head, _ := br.Peek(512)
	info.ContentType = detect(key, head)
	return readCloser{Reader: br, Closer: f}, info, nil
}

func (s *FileStore) Stat(_ context.Context, key string) (Info, error) {
	info, err := s.stat(key)
	if err != nil {
		return Info{}, err
	}
	f, err := s.fs.Open(key)
	if err != nil {
		return Info{}, mapFSError(key, err)
	}
	defer f.Close()
	head := make([]byte, 512)
	n, _ := io.ReadFull(f, head)
	info.ContentType = detect(key, head[:n])
	return info, nil
}

func (s *FileStore) stat(key string) (Info, error) {
	if err := CheckKey(key); err != nil {
		return Info{}, err
	}
	fi, err := s.fs.Stat(key)
	if err != nil {
		return Info{}, mapFSError(key, err)
	}
	if fi.IsDir() {
		return Info{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return Info{Key: key, Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

// detect sniffs the stored bytes; the filesystem keeps no content type.
func detect(key string, head []byte) string {
	mt := mimetype.Detect(head)
	if mt.Is(ContentTypePNG) {
		return ContentTypePNG
	}
	if len(key) > len(RawSuffix) && key[len(key)-len(RawSuffix):] == RawSuffix {
		return ContentTypeRaw
	}
	return mt.String()
}

func mapFSError(key string, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return err
}

type readCloser struct {
	io.Reader
	io.Closer
}
