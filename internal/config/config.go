// Package config provides environment-backed configuration for go-faceauth commands.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Defaults used when the environment does not say otherwise.
const (
	DefaultBaseURL      = "https://api.faceauth.io"
	DefaultModelPath    = "https://github.com/opencv/opencv_zoo/raw/main/models/face_detection_yunet"
	DefaultCamera       = "0"
	DefaultListen       = ":8080"
	DefaultLogLevel     = "info"
	DefaultPollInterval = 200 * time.Millisecond
)

// Config is the process-level configuration shared by all subcommands.
type Config struct {
	APIKey       string
	BaseURL      string
	ModelPath    string
	ModelCache   string
	Camera       string
	Listen       string
	LogLevel     string
	PollInterval time.Duration
	AuditDB      string
}

// Load reads configuration from FACEAUTH_* environment variables.
func Load() Config {
	return Config{
		APIKey:       os.Getenv("FACEAUTH_API_KEY"),
		BaseURL:      env("FACEAUTH_BASE_URL", DefaultBaseURL),
		ModelPath:    env("FACEAUTH_MODEL_PATH", DefaultModelPath),
		ModelCache:   env("FACEAUTH_MODEL_CACHE", defaultModelCache()),
		Camera:       env("FACEAUTH_CAMERA", DefaultCamera),
		Listen:       env("FACEAUTH_LISTEN", DefaultListen),
		LogLevel:     env("FACEAUTH_LOG_LEVEL", DefaultLogLevel),
		PollInterval: duration("FACEAUTH_POLL_INTERVAL", DefaultPollInterval),
		AuditDB:      AuditDSN(),
	}
}

// Validate checks that the fields every capture command needs are present.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("config: API key required (set FACEAUTH_API_KEY or --api-key)")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: poll interval must be positive, got %v", c.PollInterval)
	}
	return nil
}

// AuditDSN returns the Postgres connection string for the audit trail.
// FACEAUTH_AUDIT_DB wins; otherwise it is assembled from POSTGRES_* variables.
// Returns "" when neither is set, which disables auditing.
func AuditDSN() string {
	if dsn := os.Getenv("FACEAUTH_AUDIT_DB"); dsn != "" {
		return dsn
	}
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	port := env("POSTGRES_PORT", "5432")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		os.Getenv("POSTGRES_USER"), os.Getenv("POSTGRES_PASSWORD"), host, port, os.Getenv("POSTGRES_DB"))
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: invalid %s=%q, using %v\n", key, v, fallback)
		return fallback
	}
	return d
}

func defaultModelCache() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "faceauth", "models")
	}
	return filepath.Join(os.TempDir(), "faceauth-models")
}
