// Package skyview talks to NASA's SkyView virtual observatory.
package skyview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://skyview.gsfc.nasa.gov/current/cgi/pskcall"
	DefaultFormURL = "https://skyview.gsfc.nasa.gov/current/cgi/basicform.pl"

	maxImageBytes = 512 << 20
	maxFormBytes  = 4 << 20
)

var ErrEmptyResponse = errors.New("skyview returned no image")

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
		return fmt.Sprintf("skyview error (status=%d)", e.StatusCode)
	}
	return fmt.Sprintf("skyview error (status=%d): %s", e.StatusCode, body)
}

type Config struct {
	BaseURL string
	FormURL string
	Timeout time.Duration
}

type Client struct {
	baseURL string
	formURL string
	http    *http.Client
}

func New(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	formURL := strings.TrimSpace(cfg.FormURL)
	if formURL == "" {
		formURL = DefaultFormURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		baseURL: baseURL,
		formURL: formURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// QueryImage asks SkyView to resample survey onto a pixels x pixels J2000
// cutout of sizeDeg centred on (ra, dec) and returns the FITS payload.
func (c *Client) QueryImage(ctx context.Context, ra, dec float64, survey string, sizeDeg float64, pixels int) ([]byte, error) {
	survey = strings.TrimSpace(survey)
	if survey == "" {
		return nil, errors.New("survey is required")
	}
	if pixels <= 0 {
		return nil, errors.New("pixels must be positive")
	}

	q := url.Values{}
	q.Set("Position", formatFloat(ra)+","+formatFloat(dec))
	q.Set("Survey", survey)
	q.Set("Size", formatFloat(sizeDeg))
	q.Set("Pixels", strconv.Itoa(pixels))
	q.Set("Coordinates", "J2000")
	q.Set("Return", "FITS")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	body, err := c.do(req, maxImageBytes)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, ErrEmptyResponse
	}
	return body, nil
}

func (c *Client) do(req *http.Request, limit int64) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("read skyview response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
