// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backends.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds the reference server configuration.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string

	// Database
	DatabaseDriver string
	DatabaseURL    string

	// S3 storage
	S3Endpoint  string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3UseSSL    bool

	// TLS (optional, HTTPS when both are set)
	TLSCertFile string
	TLSKeyFile  string

	// Auth (disabled when JWTSecret is empty)
	JWTSecret         string
	TokenTTL          time.Duration
	AdminUsername     string
	AdminPasswordHash string

	// OIDC (optional)
	OIDCIssuerURL string
	OIDCClientID  string

	// Storage backend ("local" or "s3", default: "local")
	StorageBackend   string
	LocalStoragePath string

	// Uploads
	MaxUploadSize int64
}

// Load reads server configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:        envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr:       envOr("METRICS_ADDR", ":9090"),
		LogLevel:          envOr("LOG_LEVEL", "info"),
		LogFormat:         envOr("LOG_FORMAT", "json"),
		DatabaseDriver:    strings.ToLower(envOr("DATABASE_DRIVER", DriverSQLite)),
		DatabaseURL:       envOr("DATABASE_URL", ""),
		S3Endpoint:        envOr("S3_ENDPOINT", ""),
		S3Bucket:          envOr("S3_BUCKET", ""),
		S3AccessKey:       envOr("S3_ACCESS_KEY", ""),
		S3SecretKey:       envOr("S3_SECRET_KEY", ""),
		S3Region:          envOr("S3_REGION", "us-east-1"),
		S3UseSSL:          envBool("S3_USE_SSL", false),
		TLSCertFile:       envOr("TLS_CERT_FILE", ""),
		TLSKeyFile:        envOr("TLS_KEY_FILE", ""),
		JWTSecret:         envOr("JWT_SECRET", ""),
		TokenTTL:          envDuration("TOKEN_TTL", 24*time.Hour),
		AdminUsername:     envOr("ADMIN_USERNAME", "admin"),
		AdminPasswordHash: envOr("ADMIN_PASSWORD_HASH", ""),
		OIDCIssuerURL:     envOr("OIDC_ISSUER_URL", ""),
		OIDCClientID:      envOr("OIDC_CLIENT_ID", ""),
		StorageBackend:    strings.ToLower(envOr("STORAGE_BACKEND", StorageLocal)),
		LocalStoragePath:  envOr("LOCAL_STORAGE_PATH", "./data/storage"),
		MaxUploadSize:     envInt64("MAX_UPLOAD_SIZE", 100*1024*1024), // 100MB default
	}

	switch cfg.DatabaseDriver {
	case DriverSQLite:
		if cfg.DatabaseURL == "" {
			cfg.DatabaseURL = "explorer.db"
		}
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return nil, fmt.Errorf("unknown DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}

	switch cfg.StorageBackend {
	case StorageLocal:
	case StorageS3:
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET is required for the s3 storage backend")
		}
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}

	if cfg.OIDCIssuerURL != "" && cfg.OIDCClientID == "" {
		return nil, fmt.Errorf("OIDC_CLIENT_ID is required when OIDC_ISSUER_URL is set")
	}
	if cfg.MaxUploadSize <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_SIZE must be positive")
	}

	return cfg, nil
}

// AuthEnabled reports whether the API requires bearer tokens.
func (c *Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}

// Client modes.
const (
	ModeDemo   = "demo"
	ModeRemote = "remote"
)

// ClientConfig holds defaults for the explorer CLI. Flags override it.
type ClientConfig struct {
	Mode     string
	URL      string
	Token    string
	Snapshot string
	Bucket   string
	LogLevel string
	Timeout  time.Duration
}

// LoadClient reads client defaults from environment variables.
func LoadClient() (*ClientConfig, error) {
	cfg := &ClientConfig{
		Mode:     strings.ToLower(envOr("EXPLORER_MODE", ModeDemo)),
		URL:      envOr("EXPLORER_URL", ""),
		Token:    envOr("EXPLORER_TOKEN", ""),
		Snapshot: envOr("EXPLORER_SNAPSHOT", ""),
		Bucket:   envOr("EXPLORER_BUCKET", "default"),
		LogLevel: envOr("LOG_LEVEL", "warn"),
		Timeout:  envDuration("EXPLORER_TIMEOUT", 30*time.Second),
	}
	return cfg, cfg.Validate()
}

// Validate checks mode-dependent settings.
func (c *ClientConfig) Validate() error {
	switch c.Mode {
	case ModeDemo:
	case ModeRemote:
		if c.URL == "" {
			return fmt.Errorf("EXPLORER_URL is required in remote mode")
		}
	default:
		return fmt.Errorf("unknown mode %q (want %s or %s)", c.Mode, ModeDemo, ModeRemote)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
