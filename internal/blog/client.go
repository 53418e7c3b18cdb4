// Package blog reads published posts from the site's blog REST API.
package blog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/voyagen/mbient/internal/models"
)

const (
	DefaultBaseURL     = "https://www.wixapis.com"
	defaultLimit       = 36
	defaultHTTPTimeout = 30 * time.Second
	publishedLayout    = "2006-01-02T15:04:05.000Z0700"
	displayLayout      = "Jan 2, 2006"
)

// ErrUnauthorized is returned when the API rejects the authorization code.
var ErrUnauthorized = errors.New("blog: unauthorized")

// Client is a lightweight blog posts HTTP client.
type Client struct {
	baseURL    string
	accountID  string
	siteID     string
	httpClient *http.Client
}

// NewClient creates a blog client. If baseURL is empty it defaults to DefaultBaseURL.
func NewClient(baseURL, accountID, siteID string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		accountID: accountID,
		siteID:    siteID,
		httpClient: &http.Client{
			Timeout: defaultHTTPTimeout,
		},
	}
}

type apiErrorResponse struct {
	Message string `json:"message"`
}

// ListPosts fetches the newest posts, most recent first.
// A limit <= 0 uses the API page size of 36.
func (c *Client) ListPosts(ctx context.Context, token string, limit int) (*models.BlogResponse, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	q := url.Values{}
	q.Set("paging.limit", strconv.Itoa(limit))
	q.Set("sort", "PUBLISHED_DATE_DESC")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v3/posts?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("wix-account-id", c.accountID)
	req.Header.Set("wix-site-id", c.siteID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		var apiErr apiErrorResponse
		_ = json.Unmarshal(body, &apiErr)
		return nil, fmt.Errorf("blog API %d: %s", resp.StatusCode, apiErr.Message)
	}

	var out models.BlogResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if out.Posts == nil {
		out.Posts = []models.BlogPost{}
	}
	return &out, nil
}

// PostURL returns the public page of a post.
func PostURL(siteURL, slug string) string {
	return strings.TrimRight(siteURL, "/") + "/post/" + slug
}

// FormatPublished renders an API timestamp as "Jan 2, 2006".
// Unparseable input is returned unchanged.
func FormatPublished(s string) string {
	t, err := time.Parse(publishedLayout, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return s
		}
	}
	return t.Format(displayLayout)
}
