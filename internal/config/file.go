package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	ServerPort       string `yaml:"server_port"`
	UserAgent        string `yaml:"user_agent"`
	Timeout          string `yaml:"timeout"`
	FallbackHost     string `yaml:"logo_fallback_host"`
	StreamServerHost string `yaml:"stream_server_host"`
	DataDir          string `yaml:"data_dir"`
	DatabaseURL      string `yaml:"database_url"`
	RedisURL         string `yaml:"redis_url"`
	RefreshCron      string `yaml:"refresh_cron"`
	Blog             struct {
		APIURL    string `yaml:"api_url"`
		AccountID string `yaml:"account_id"`
		SiteID    string `yaml:"site_id"`
		SiteURL   string `yaml:"site_url"`
	} `yaml:"blog"`
	LogLevel string `yaml:"log_level"`
	SafeLogs bool   `yaml:"safe_logs"`
}

// LoadFromFile loads config from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	c := &Config{
		ServerPort:       f.ServerPort,
		UserAgent:        f.UserAgent,
		FallbackHost:     f.FallbackHost,
		StreamServerHost: f.StreamServerHost,
		DataDir:          f.DataDir,
		DatabaseURL:      f.DatabaseURL,
		RedisURL:         f.RedisURL,
		RefreshCron:      f.RefreshCron,
		BlogAPIURL:       f.Blog.APIURL,
		BlogAccountID:    f.Blog.AccountID,
		BlogSiteID:       f.Blog.SiteID,
		BlogSiteURL:      f.Blog.SiteURL,
		LogLevel:         f.LogLevel,
		SafeLogs:         f.SafeLogs,
	}
	if f.Timeout != "" {
		if d, err := time.ParseDuration(f.Timeout); err == nil {
			c.Timeout = d
		}
	}
	return c.finish()
}
