package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/voyagen/mbient/internal/models"
)

// Fetcher retrieves the raw body of a playlist URL.
type Fetcher interface {
	FetchText(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher fetches playlists with a single HTTP GET per call.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// NewHTTPFetcher returns a fetcher with the given User-Agent (optional) and request timeout.
func NewHTTPFetcher(userAgent string, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// FetchText issues a GET to url and returns the body. Any non-2xx status is an error.
func (f *HTTPFetcher) FetchText(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("NewRequest: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ReadAll: %w", err)
	}
	return body, nil
}

// FetchM3U fetches the M3U playlist from url and parses it.
func FetchM3U(ctx context.Context, f Fetcher, url string, p Parser) ([]models.Channel, error) {
	body, err := f.FetchText(ctx, url)
	if err != nil {
		return nil, err
	}
	return p.ParseReader(bytes.NewReader(body))
}
