package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds harvester configuration.
type Config struct {
	BaseURL         string        `mapstructure:"base_url"`
	ProfilePath     string        `mapstructure:"profile_path"`
	WishlistPath    string        `mapstructure:"wishlist_path"`
	Timeout         time.Duration `mapstructure:"timeout"`
	ReviewPageDelay time.Duration `mapstructure:"review_page_delay"`
	MaxReviewPages  int           `mapstructure:"max_review_pages"`
	DedupeMaxSize   int           `mapstructure:"dedupe_max_size"`
	UserAgent       string        `mapstructure:"user_agent"`
	AcceptLanguage  string        `mapstructure:"accept_language"`

	StoreType     string `mapstructure:"store"` // postgres, mongo, or none
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	MongoURI      string `mapstructure:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database"`

	ExportFile   string `mapstructure:"export_file"`
	ExportFormat string `mapstructure:"export_format"` // csv, json, or dual
	MetricsAddr  string `mapstructure:"metrics_addr"`
	Verbose      bool   `mapstructure:"verbose"`
}

// DefaultConfig returns conservative defaults for the storefront.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:         "https://siriust.ru",
		ProfilePath:     "/profiles-update/",
		WishlistPath:    "/wishlist/",
		Timeout:         10 * time.Second,
		ReviewPageDelay: 2 * time.Second,
		MaxReviewPages:  100,
		DedupeMaxSize:   10000,
		UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64)",
		AcceptLanguage:  "ru-RU,ru",
		StoreType:       "postgres",
		PostgresDSN:     "postgres://localhost:5432/harvester",
		MongoDatabase:   "harvester",
		ExportFormat:    "json",
		Verbose:         false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if !strings.HasPrefix(c.ProfilePath, "/") {
		return fmt.Errorf("profile path must start with /")
	}
	if !strings.HasPrefix(c.WishlistPath, "/") {
		return fmt.Errorf("wishlist path must start with /")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.ReviewPageDelay < 0 {
		return fmt.Errorf("review page delay cannot be negative")
	}
	if c.MaxReviewPages <= 0 {
		return fmt.Errorf("max review pages must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	switch c.StoreType {
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("postgres DSN cannot be empty when store is postgres")
		}
	case "mongo":
		if c.MongoURI == "" {
			return fmt.Errorf("mongo URI cannot be empty when store is mongo")
		}
		if c.MongoDatabase == "" {
			return fmt.Errorf("mongo database cannot be empty when store is mongo")
		}
	case "none":
	default:
		return fmt.Errorf("store must be postgres, mongo, or none")
	}

	if c.ExportFile != "" && c.ExportFormat != "csv" && c.ExportFormat != "json" && c.ExportFormat != "dual" {
		return fmt.Errorf("export format must be csv, json, or dual")
	}

	return nil
}
