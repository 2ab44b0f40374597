package poller

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	pkgconfig "channelwatch/pkg/config"
)

// Config holds the configuration for the polling worker: when to poll,
// how long one cycle may run, and where the operational HTTP servers
// listen.
type Config struct {
	// CronSchedule is the cron expression or descriptor for poll cycles.
	// Supports the standard 5-field syntax and descriptors like
	// "@every 1m".
	// Default: "@every 1m"
	CronSchedule string

	// Timezone is the IANA timezone name for cron scheduling.
	// Default: "UTC"
	Timezone string

	// PollTimeout is the deadline for one full poll cycle across all
	// channels.
	// Default: 2m
	PollTimeout time.Duration

	// Parallelism is the maximum number of channels fetched concurrently
	// within one cycle.
	// Range: 1-50
	// Default: 4
	Parallelism int

	// HealthPort is the port for the health check server.
	// Range: 1024-65535
	// Default: 9091
	HealthPort int

	// MetricsPort is the port for the Prometheus metrics server.
	// Range: 1024-65535
	// Default: 9090
	MetricsPort int

	// ChannelsFile is the path to the YAML file listing the channels to
	// poll. Empty means targets come from environment variables.
	ChannelsFile string
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() Config {
	return Config{
		CronSchedule: "@every 1m",
		Timezone:     "UTC",
		PollTimeout:  2 * time.Minute,
		Parallelism:  4,
		HealthPort:   9091,
		MetricsPort:  9090,
	}
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.CronSchedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", c.CronSchedule, err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	if err := pkgconfig.ValidatePositiveDuration(c.PollTimeout); err != nil {
		return fmt.Errorf("invalid poll timeout: %w", err)
	}
	if err := pkgconfig.ValidateIntRange(c.Parallelism, 1, 50); err != nil {
		return fmt.Errorf("invalid parallelism: %w", err)
	}
	if err := pkgconfig.ValidateIntRange(c.HealthPort, 1024, 65535); err != nil {
		return fmt.Errorf("invalid health port: %w", err)
	}
	if err := pkgconfig.ValidateIntRange(c.MetricsPort, 1024, 65535); err != nil {
		return fmt.Errorf("invalid metrics port: %w", err)
	}
	return nil
}

// LoadConfigFromEnv loads the worker configuration from environment
// variables, falling back to defaults for unset or unparseable values.
//
// Environment variables:
//   - POLL_CRON_SCHEDULE: cron expression (default: "@every 1m")
//   - POLL_TIMEZONE: IANA timezone (default: "UTC")
//   - POLL_TIMEOUT: duration (default: 2m)
//   - POLL_PARALLELISM: integer (default: 4)
//   - HEALTH_PORT: integer (default: 9091)
//   - METRICS_PORT: integer (default: 9090)
//   - POLL_CHANNELS_FILE: path to channels YAML (default: unset)
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	cfg.CronSchedule = pkgconfig.GetEnvString("POLL_CRON_SCHEDULE", cfg.CronSchedule)
	cfg.Timezone = pkgconfig.GetEnvString("POLL_TIMEZONE", cfg.Timezone)
	cfg.PollTimeout = pkgconfig.GetEnvDuration("POLL_TIMEOUT", cfg.PollTimeout)
	cfg.Parallelism = pkgconfig.GetEnvInt("POLL_PARALLELISM", cfg.Parallelism)
	cfg.HealthPort = pkgconfig.GetEnvInt("HEALTH_PORT", cfg.HealthPort)
	cfg.MetricsPort = pkgconfig.GetEnvInt("METRICS_PORT", cfg.MetricsPort)
	cfg.ChannelsFile = pkgconfig.GetEnvString("POLL_CHANNELS_FILE", cfg.ChannelsFile)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}
