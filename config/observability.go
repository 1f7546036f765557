package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// ObservabilityConfig groups logging and metrics settings.
type ObservabilityConfig struct {
	Logging LoggingConfig
	Metrics MetricsConfig
}

// Sanitize normalizes both sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Logging.Sanitize()
	c.Metrics.Sanitize()
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level  string    `env:"LOG_LEVEL"  envDefault:"info"`
	Format LogFormat `env:"LOG_FORMAT" envDefault:"json"`
}

// Sanitize falls back to json for unknown formats. Level is checked by
// SlogLevel.
func (c *LoggingConfig) Sanitize() {
	c.Level = strings.ToLower(strings.TrimSpace(c.Level))
	if f := LogFormat(strings.ToLower(strings.TrimSpace(string(c.Format)))); f == LogFormatText {
		c.Format = f
	} else {
		c.Format = LogFormatJSON
	}
}

// SlogLevel parses Level ("debug", "info", "warn", "error", or offsets such
// as "info+2"). Empty means info.
func (c LoggingConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if c.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return lvl, nil
}

// MetricsConfig controls StatsD emission.
type MetricsConfig struct {
	Enabled       bool   `env:"OBSERVABILITY_METRICS_ENABLED"        envDefault:"false"`
	StatsdAddress string `env:"OBSERVABILITY_METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	Prefix        string `env:"OBSERVABILITY_METRICS_PREFIX"         envDefault:"dealshub"`
}

// Sanitize trims the address and prefix. Metrics without an address stay off.
func (c *MetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	c.Prefix = strings.Trim(strings.TrimSpace(c.Prefix), ".")
	c.Enabled = c.Enabled && c.StatsdAddress != ""
}

// IsEnabled reports whether a StatsD client should be dialed.
func (c *MetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}
