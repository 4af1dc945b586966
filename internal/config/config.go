package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"snda-portal/internal/api"
	"snda-portal/internal/domain"
	"snda-portal/internal/storage"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Store drivers
const (
	DriverMemory   = storage.DriverMemory
	DriverFile     = storage.DriverFile
	DriverPostgres = storage.DriverPostgres
)

// Config holds application configuration
type Config struct {
	APIBaseURL   string
	PublicOrigin string
	Locale       string
	StoreDriver  string
	StorePath    string
	StoreSecret  string
	DatabaseURL  string
	RabbitMQURL  string
	FeedPath     string
	RelayPort    string
	APIRateLimit float64
	APIRateBurst int
	Environment  string // development, staging, production
	LogLevel     string
	LogFormat    string

	// Overridable from the TOML file named by PORTAL_CONFIG_FILE
	ConfigFile       string
	Endpoints        api.Endpoints
	StorageKeys      domain.StorageKeys
	AccessCookieTTL  time.Duration
	RefreshCookieTTL time.Duration
}

// Load reads .env if present, then the environment, then the optional TOML
// overlay, and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}

	if cfg.ConfigFile != "" {
		if err := cfg.ApplyFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// FromEnv builds a Config from environment variables and defaults only
func FromEnv() (*Config, error) {
	rateLimit, err := strconv.ParseFloat(getEnv("API_RATE_LIMIT", "10"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid API_RATE_LIMIT: %w", err)
	}
	rateBurst, err := strconv.Atoi(getEnv("API_RATE_BURST", "20"))
	if err != nil {
		return nil, fmt.Errorf("invalid API_RATE_BURST: %w", err)
	}

	return &Config{
		APIBaseURL:       getEnv("NEXT_PUBLIC_API_URL", getEnv("API_BASE_URL", "http://127.0.0.1:8000")),
		PublicOrigin:     getEnv("PUBLIC_ORIGIN", ""),
		Locale:           getEnv("LOCALE", "en"),
		StoreDriver:      getEnv("STORE_DRIVER", DriverFile),
		StorePath:        getEnv("STORE_PATH", defaultStorePath()),
		StoreSecret:      getEnv("STORE_SECRET", ""),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		RabbitMQURL:      getEnv("RABBITMQ_URL", ""),
		FeedPath:         getEnv("FEED_PATH", "/ws/stories/"),
		RelayPort:        getEnv("RELAY_PORT", "8090"),
		APIRateLimit:     rateLimit,
		APIRateBurst:     rateBurst,
		Environment:      getEnv("ENVIRONMENT", "development"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "json"),
		ConfigFile:       getEnv("PORTAL_CONFIG_FILE", ""),
		Endpoints:        api.DefaultEndpoints(),
		StorageKeys:      domain.DefaultStorageKeys(),
		AccessCookieTTL:  storage.DefaultAccessCookieTTL,
		RefreshCookieTTL: storage.DefaultRefreshCookieTTL,
	}, nil
}

type fileConfig struct {
	Endpoints   api.Endpoints      `toml:"endpoints"`
	StorageKeys domain.StorageKeys `toml:"storage_keys"`
	Cookies     struct {
		AccessTTL  string `toml:"access_ttl"`
		RefreshTTL string `toml:"refresh_ttl"`
	} `toml:"cookies"`
}

// ApplyFile overlays the keys defined in a TOML file. Keys the file does not
// define keep their current values.
func (c *Config) ApplyFile(path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load portal config: %w", err)
	}

	if meta.IsDefined("endpoints", "login") {
		c.Endpoints.Login = strings.TrimSpace(raw.Endpoints.Login)
	}
	if meta.IsDefined("endpoints", "refresh") {
		c.Endpoints.Refresh = strings.TrimSpace(raw.Endpoints.Refresh)
	}
	if meta.IsDefined("endpoints", "me") {
		c.Endpoints.Me = strings.TrimSpace(raw.Endpoints.Me)
	}
	if meta.IsDefined("storage_keys", "access_token") {
		c.StorageKeys.AccessToken = strings.TrimSpace(raw.StorageKeys.AccessToken)
	}
	if meta.IsDefined("storage_keys", "refresh_token") {
		c.StorageKeys.RefreshToken = strings.TrimSpace(raw.StorageKeys.RefreshToken)
	}
	if meta.IsDefined("storage_keys", "user") {
		c.StorageKeys.User = strings.TrimSpace(raw.StorageKeys.User)
	}
	if meta.IsDefined("cookies", "access_ttl") {
		d, err := time.ParseDuration(raw.Cookies.AccessTTL)
		if err != nil {
			return fmt.Errorf("load portal config: cookies.access_ttl: %w", err)
		}
		c.AccessCookieTTL = d
	}
	if meta.IsDefined("cookies", "refresh_ttl") {
		d, err := time.ParseDuration(raw.Cookies.RefreshTTL)
		if err != nil {
			return fmt.Errorf("load portal config: cookies.refresh_ttl: %w", err)
		}
		c.RefreshCookieTTL = d
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		slog.Warn("unknown keys in portal config",
			slog.String("path", path),
			slog.Any("keys", undecoded))
	}
	return nil
}

// Validate checks configuration for security and correctness
func (c *Config) Validate() error {
	base, err := url.Parse(c.APIBaseURL)
	if err != nil || base.Host == "" || (base.Scheme != "http" && base.Scheme != "https") {
		return fmt.Errorf("API base URL must be an absolute http(s) URL (got %q)", c.APIBaseURL)
	}

	switch c.StoreDriver {
	case DriverMemory, DriverFile:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL must be set when STORE_DRIVER is postgres")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be one of memory, file, postgres (got %q)", c.StoreDriver)
	}

	if c.Locale != "en" && c.Locale != "ar" {
		return fmt.Errorf("LOCALE must be en or ar (got %q)", c.Locale)
	}

	if _, err := strconv.Atoi(c.RelayPort); err != nil {
		return fmt.Errorf("RELAY_PORT must be numeric (got %q)", c.RelayPort)
	}

	if c.APIRateLimit < 0 || c.APIRateBurst < 0 {
		return errors.New("API_RATE_LIMIT and API_RATE_BURST must not be negative")
	}

	if err := c.StorageKeys.Validate(); err != nil {
		return err
	}
	if c.AccessCookieTTL <= 0 || c.RefreshCookieTTL <= 0 {
		return errors.New("cookie lifetimes must be positive")
	}

	if c.IsProduction() {
		if base.Scheme != "https" {
			return fmt.Errorf("API base URL must use HTTPS in production (got %q)", c.APIBaseURL)
		}
		if c.StoreDriver == DriverFile && c.StoreSecret == "" {
			return errors.New("STORE_SECRET must be set in production when STORE_DRIVER is file")
		}
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev" || c.Environment == ""
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".snda", "session.json")
	}
	return filepath.Join(home, ".snda", "session.json")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
