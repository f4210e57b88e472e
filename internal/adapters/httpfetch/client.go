// Package httpfetch implements ports.Fetcher over plain HTTP GET.
//
// Fetches are one-shot: no retries, no backoff. A failed atlas fetch is
// not fatal here; the catalog layer decides how to degrade.
package httpfetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrNotJSON is returned when a server answers with something other than a
// JSON document, typically an HTML error page served with status 200.
var ErrNotJSON = errors.New("response is not JSON")

// DefaultTimeout bounds a single document fetch.
const DefaultTimeout = 15 * time.Second

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 32 << 20

// Client fetches JSON documents over HTTP.
type Client struct {
	http *http.Client
	log  *zap.Logger
}

// New creates a Client. A non-positive timeout falls back to DefaultTimeout.
func New(timeout time.Duration, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		http: &http.Client{Timeout: timeout},
		log:  log.Named("fetch"),
	}
}

// FetchJSON GETs url and returns the raw body after checking that the
// server actually sent JSON. Misconfigured hosts serve HTML error pages
// with status 200; those come back as ErrNotJSON instead of poisoning
// the document parsers downstream.
func (c *Client) FetchJSON(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: unexpected status %s", url, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", url, err)
	}

	if !looksLikeJSON(resp.Header.Get("Content-Type"), body) {
		c.log.Warn("rejecting non-JSON response",
			zap.String("url", url),
			zap.String("contentType", resp.Header.Get("Content-Type")))
		return nil, fmt.Errorf("fetching %s: %w", url, ErrNotJSON)
	}

	c.log.Debug("fetched document", zap.String("url", url), zap.Int("bytes", len(body)))
	return body, nil
}

// looksLikeJSON accepts application/json, text/json, and any +json media
// type. With no Content-Type at all, the first body byte decides.
func looksLikeJSON(contentType string, body []byte) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType == "" {
		trimmed := bytes.TrimLeft(body, " \t\r\n")
		return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
	}
	mediaType = strings.ToLower(mediaType)
	if mediaType == "application/json" || mediaType == "text/json" {
		return true
	}
	return strings.HasSuffix(mediaType, "+json")
}
