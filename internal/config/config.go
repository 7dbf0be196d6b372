// Package config defines tlearchive configuration and how it is loaded.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/star/tlearchive/internal/tle"
)

// Config contains process configuration.
type Config struct {
	// SourceURL is the endpoint returning a JSON array of GP element records.
	SourceURL string `koanf:"source_url" validate:"required,url"`

	// TargetID is the NORAD catalog number to archive.
	TargetID int64 `koanf:"target_identifier" validate:"gt=0"`

	// ArchivePath is the JSON file holding the archive.
	ArchivePath string `koanf:"archive_path" validate:"required"`

	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn warning error"`

	// HTTPTimeout bounds the single fetch request.
	HTTPTimeout time.Duration `koanf:"http_timeout" validate:"gt=0"`

	// Interval runs the fetch periodically when positive; zero runs once.
	Interval time.Duration `koanf:"interval" validate:"gte=0"`

	// Addr is the listen address for health and metrics in scheduled mode.
	Addr string `koanf:"addr"`

	// MetricsFile, when set, receives a Prometheus textfile dump after each run.
	MetricsFile string `koanf:"metrics_file"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		SourceURL:   tle.DefaultSourceURL,
		TargetID:    25544,
		ArchivePath: "iss_tle.json",
		LogLevel:    "info",
		HTTPTimeout: tle.DefaultTimeout,
	}
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Scheduled reports whether the process should keep running.
func (c *Config) Scheduled() bool {
	return c.Interval > 0
}

// SlogLevel maps LogLevel to a slog.Level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
