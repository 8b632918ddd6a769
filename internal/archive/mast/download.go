package mast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
)

// Download fetches p into the download filesystem and returns its path there.
// A previously downloaded, non-empty file with the same name is reused.
func (c *Client) Download(ctx context.Context, p Product) (string, error) {
	uri := strings.TrimSpace(p.DataURI)
	if uri == "" {
		return "", errors.New("product has no data uri")
	}
	name := path.Base(strings.TrimSpace(p.Filename))
	if name == "" || name == "." || name == "/" {
		name = path.Base(uri)
	}
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("cannot derive file name for %q", uri)
	}

	if info, err := c.downloads.Stat(name); err == nil && info.Size() > 0 {
		return name, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+downloadPath+"?uri="+url.QueryEscape(uri), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	tmp, err := c.downloads.TempFile("", name+".part-")
	if err != nil {
		return "", fmt.Errorf("create download file: %w", err)
	}
	tmpName := tmp.Name()
	n, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr == nil && n == 0 {
		copyErr = errors.New("empty download")
	}
	if copyErr != nil {
		_ = c.downloads.Remove(tmpName)
		return "", fmt.Errorf("download %s: %w", uri, copyErr)
	}
	if err := c.downloads.Rename(tmpName, name); err != nil {
		_ = c.downloads.Remove(tmpName)
		return "", fmt.Errorf("finalize download: %w", err)
	}
	return name, nil
}

// OpenDownload opens a file previously returned by Download.
func (c *Client) OpenDownload(name string) (io.ReadCloser, error) {
	f, err := c.downloads.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open download %s: %w", name, err)
	}
	return f, nil
}
