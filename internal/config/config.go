package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidFallbackHost is returned when LOGO_FALLBACK_HOST contains a scheme or path.
var ErrInvalidFallbackHost = errors.New("logo fallback host must be host[:port] without scheme or path")

// Config holds application configuration.
type Config struct {
	ServerPort string
	UserAgent  string
	Timeout    time.Duration

	// FallbackHost ("host:port") serves synthesized channel logos.
	FallbackHost string
	// StreamServerHost resolves relative URLs in Collection.json.
	StreamServerHost string
	// DataDir holds Collection.json and settings.json.
	DataDir string

	DatabaseURL string // optional
	RedisURL    string // optional
	RefreshCron string // optional, standard 5-field cron spec

	BlogAPIURL    string
	BlogAccountID string
	BlogSiteID    string
	BlogSiteURL   string

	LogLevel string
	SafeLogs bool
}

const (
	defaultServerPort = "8080"
	defaultUserAgent  = "Mbient/1.0"
	defaultTimeout    = 30 * time.Second
	defaultBlogAPIURL = "https://www.wixapis.com"
)

// Load builds config from environment variables.
// .env.local and .env in the working directory (or next to the executable)
// fill in variables that are not already set.
func Load() (*Config, error) {
	loadEnvFiles()
	c := &Config{
		ServerPort:       os.Getenv("SERVER_PORT"),
		UserAgent:        os.Getenv("FETCHER_USER_AGENT"),
		FallbackHost:     os.Getenv("LOGO_FALLBACK_HOST"),
		StreamServerHost: os.Getenv("STREAM_SERVER_HOST"),
		DataDir:          os.Getenv("DATA_DIR"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		RefreshCron:      os.Getenv("REFRESH_CRON"),
		BlogAPIURL:       os.Getenv("BLOG_API_URL"),
		BlogAccountID:    os.Getenv("BLOG_ACCOUNT_ID"),
		BlogSiteID:       os.Getenv("BLOG_SITE_ID"),
		BlogSiteURL:      os.Getenv("BLOG_SITE_URL"),
		LogLevel:         os.Getenv("LOG_LEVEL"),
		SafeLogs:         os.Getenv("SAFE_LOGS") == "true",
	}
	if s := os.Getenv("FETCHER_TIMEOUT"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			c.Timeout = d
		}
	}
	return c.finish()
}

// finish applies defaults and validates.
func (c *Config) finish() (*Config, error) {
	if c.ServerPort == "" {
		c.ServerPort = defaultServerPort
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.DataDir == "" {
		c.DataDir = "."
	}
	if c.BlogAPIURL == "" {
		c.BlogAPIURL = defaultBlogAPIURL
	}
	c.BlogAPIURL = strings.TrimRight(c.BlogAPIURL, "/")
	c.BlogSiteURL = strings.TrimRight(c.BlogSiteURL, "/")

	if strings.Contains(c.FallbackHost, "://") || strings.Contains(c.FallbackHost, "/") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFallbackHost, c.FallbackHost)
	}
	if c.RefreshCron != "" {
		if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
			return nil, fmt.Errorf("refresh cron %q: %w", c.RefreshCron, err)
		}
	}
	return c, nil
}

// BlogEnabled reports whether enough is configured to call the blog API.
func (c *Config) BlogEnabled() bool {
	return c.BlogAccountID != "" && c.BlogSiteID != ""
}
