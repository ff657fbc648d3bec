package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type Config struct {
	HTTPAddr   string // RELAY_HTTP_ADDR (default ":" + PORT, or ":5000")
	DBPath     string // RELAY_DB_PATH (default "meetingrelay.db")
	ForwardURL string // RELAY_FORWARD_URL (optional, empty = every delivery fails as unconfigured)
	NATSURL    string // RELAY_NATS_URL (optional, empty = no events)

	ArchiveDir        string // RELAY_ARCHIVE_DIR (optional)
	ArchiveS3Bucket   string // RELAY_ARCHIVE_S3_BUCKET (takes precedence over ArchiveDir)
	ArchiveS3Region   string // RELAY_ARCHIVE_S3_REGION (default "us-east-1")
	ArchiveS3Endpoint string // RELAY_ARCHIVE_S3_ENDPOINT (custom endpoint for MinIO)
	ArchiveS3Prefix   string // RELAY_ARCHIVE_S3_PREFIX (default "meetingrelay/")

	ExportCron string // RELAY_EXPORT_CRON (optional standard cron expression)

	LogLevel  zerolog.Level // RELAY_LOG_LEVEL (default "info")
	LogFormat string        // RELAY_LOG_FORMAT ("console" or "json")
}

// LoadDotenv reads .env-style files into the environment without overriding
// variables that are already set. Missing files are ignored.
func LoadDotenv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func Load() (*Config, error) {
	c := &Config{
		HTTPAddr:          os.Getenv("RELAY_HTTP_ADDR"),
		DBPath:            envOrDefault("RELAY_DB_PATH", "meetingrelay.db"),
		ForwardURL:        os.Getenv("RELAY_FORWARD_URL"),
		NATSURL:           os.Getenv("RELAY_NATS_URL"),
		ArchiveDir:        os.Getenv("RELAY_ARCHIVE_DIR"),
		ArchiveS3Bucket:   os.Getenv("RELAY_ARCHIVE_S3_BUCKET"),
		ArchiveS3Region:   envOrDefault("RELAY_ARCHIVE_S3_REGION", "us-east-1"),
		ArchiveS3Endpoint: os.Getenv("RELAY_ARCHIVE_S3_ENDPOINT"),
		ArchiveS3Prefix:   envOrDefault("RELAY_ARCHIVE_S3_PREFIX", "meetingrelay/"),
		ExportCron:        os.Getenv("RELAY_EXPORT_CRON"),
		LogFormat:         envOrDefault("RELAY_LOG_FORMAT", "console"),
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":" + envOrDefault("PORT", "5000")
	}

	level, err := zerolog.ParseLevel(envOrDefault("RELAY_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("RELAY_LOG_LEVEL: %w", err)
	}
	c.LogLevel = level

	if c.LogFormat != "console" && c.LogFormat != "json" {
		return nil, fmt.Errorf("RELAY_LOG_FORMAT: unknown format %q", c.LogFormat)
	}
	if c.ExportCron != "" {
		if _, err := cron.ParseStandard(c.ExportCron); err != nil {
			return nil, fmt.Errorf("RELAY_EXPORT_CRON: %w", err)
		}
	}
	return c, nil
}

// ArchiveEnabled reports whether payloads and exports have somewhere to go.
func (c *Config) ArchiveEnabled() bool {
	return c.ArchiveS3Bucket != "" || c.ArchiveDir != ""
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
