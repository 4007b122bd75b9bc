package client

import (
	"net/url"
	"strings"
)

// Config holds the bucket coordinates and credentials the Client signs with.
// Credentials are never compiled in; they come from configuration, the
// environment or a keys file.
type Config struct {
	BaseURL   string // e.g. https://guild-bucket.s3.eu-west-2.amazonaws.com/
	Host      string // signed host; defaults to the BaseURL host
	Region    string
	AccessKey string
	SecretKey string
}

// WithDefaults returns a copy of the config with default values applied.
// BaseURL gets a trailing slash and an empty Host is taken from BaseURL.
func (c *Config) WithDefaults() *Config {
	cfg := *c
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	if cfg.BaseURL != "" && !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	if cfg.Host == "" {
		if u, err := url.Parse(cfg.BaseURL); err == nil {
			cfg.Host = u.Host
		}
	}
	return &cfg
}

// Validate checks if required fields are set.
// Use WithDefaults() first to derive the host from the base URL.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrBaseURLRequired
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidBaseURL
	}
	if c.Region == "" {
		return ErrRegionRequired
	}
	if c.AccessKey == "" {
		return ErrAccessKeyRequired
	}
	if c.SecretKey == "" {
		return ErrSecretKeyRequired
	}
	return nil
}
