// Package mast queries the Mikulski Archive for Space Telescopes (MAST) and
// downloads mission data products.
package mast

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
)

const (
	DefaultBaseURL = "https://mast.stsci.edu"

	invokePath   = "/api/v0/invoke"
	downloadPath = "/api/v0.1/Download/file"

	maxResponseBytes = 32 << 20
	maxPollAttempts  = 30
)

var (
	ErrServiceFailed = errors.New("mast service failed")
	ErrStillRunning  = errors.New("mast query still executing")
)

type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 256 {
		body = body[:256]
	}
	if body == "" {
		return fmt.Sprintf("mast error (status=%d)", e.StatusCode)
	}
	return fmt.Sprintf("mast error (status=%d): %s", e.StatusCode, body)
}

type Config struct {
	BaseURL string
	Timeout time.Duration
	// PollInterval is the wait between re-submissions of a query MAST reports
	// as still executing.
	PollInterval time.Duration
	// Downloads receives downloaded products.
	Downloads billy.Filesystem
}

type Client struct {
	baseURL      string
	pollInterval time.Duration
	http         *http.Client
	downloads    billy.Filesystem
}

func New(cfg Config) (*Client, error) {
	if cfg.Downloads == nil {
		return nil, errors.New("download filesystem is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	return &Client{
		baseURL:      baseURL,
		pollInterval: poll,
		http:         &http.Client{Timeout: timeout},
		downloads:    cfg.Downloads,
	}, nil
}

type invokeRequest struct {
	Service  string         `json:"service"`
	Params   map[string]any `json:"params"`
	Format   string         `json:"format"`
	PageSize int            `json:"pagesize,omitempty"`
	Page     int            `json:"page,omitempty"`
}

type invokeResponse struct {
	Status string            `json:"status"`
	Msg    string            `json:"msg"`
	Fields []field           `json:"fields"`
	Data   []json.RawMessage `json:"data"`
}

type field struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type table struct {
	columns map[string]bool
	rows    []map[string]any
}

func (t table) has(column string) bool { return t.columns[column] }

// invoke runs a MAST service, re-submitting while MAST reports the query as
// executing.
func (c *Client) invoke(ctx context.Context, service string, params map[string]any) (table, error) {
	payload, err := json.Marshal(invokeRequest{Service: service, Params: params, Format: "json", PageSize: 2000, Page: 1})
	if err != nil {
		return table{}, fmt.Errorf("marshal mast request: %w", err)
	}
	form := url.Values{}
	form.Set("request", string(payload))

	for attempt := 0; attempt < maxPollAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+invokePath, strings.NewReader(form.Encode()))
		if err != nil {
			return table{}, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")

		body, err := c.do(req)
		if err != nil {
			return table{}, err
		}
		var resp invokeResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return table{}, fmt.Errorf("decode mast response: %w", err)
		}
		switch strings.ToUpper(resp.Status) {
		case "COMPLETE", "":
			return decodeTable(resp)
		case "EXECUTING":
			select {
			case <-ctx.Done():
				return table{}, ctx.Err()
			case <-time.After(c.pollInterval):
			}
		default:
			return table{}, fmt.Errorf("%w: %s: %s %s", ErrServiceFailed, service, resp.Status, resp.Msg)
		}
	}
	return table{}, fmt.Errorf("%w: %s", ErrStillRunning, service)
}

func decodeTable(resp invokeResponse) (table, error) {
	out := table{columns: make(map[string]bool, len(resp.Fields))}
	for _, f := range resp.Fields {
		out.columns[f.Name] = true
	}
	for i, raw := range resp.Data {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var row map[string]any
		if err := dec.Decode(&row); err != nil {
			return table{}, fmt.Errorf("decode mast row %d: %w", i, err)
		}
		if len(resp.Fields) == 0 {
			for k := range row {
				out.columns[k] = true
			}
		}
		out.rows = append(out.rows, row)
	}
	return out, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read mast response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func str(row map[string]any, key string) string {
	switch v := row[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
