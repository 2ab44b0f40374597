package thingspeak

import (
	"fmt"
	"net/url"
	"time"

	pkgconfig "channelwatch/pkg/config"
)

// Config holds the configuration for the channel client.
// This configuration controls timeouts, retry behavior, caching, and the
// optional proxy transport used when the direct path is blocked.
//
// All fields have defaults; Validate rejects values that would make the
// client unsafe or useless.
type Config struct {
	// BaseURL is the telemetry API origin.
	// Default: "https://api.thingspeak.com"
	BaseURL string

	// ProxyURL is the optional proxy origin used as a secondary transport
	// after the direct path has exhausted its retries. The proxy receives
	// a POST describing the target request. Empty disables the fallback.
	// Default: "" (disabled)
	ProxyURL string

	// Timeout is the deadline for a single network attempt. The retry
	// loop applies it per attempt, not to the whole call.
	// Default: 15s
	Timeout time.Duration

	// RetryAttempts is the number of direct network attempts before the
	// client falls back to the proxy and then the stale cache.
	// Range: 1-10
	// Default: 3
	RetryAttempts int

	// RetryDelay is the backoff unit between attempts. The sleep after
	// attempt n is RetryDelay × n.
	// Default: 1s
	RetryDelay time.Duration

	// CacheEnabled controls whether successful payloads are cached and
	// whether cached data may be served.
	// Default: true
	CacheEnabled bool

	// CacheTTL is the freshness window for cached payloads. Entries older
	// than this are only served as an explicitly expired last resort.
	// Default: 60s
	CacheTTL time.Duration

	// DefaultResults is the feed entry count requested when a caller does
	// not specify one.
	// Range: 1-8000 (the API caps a single request at 8000 entries)
	// Default: 100
	DefaultResults int

	// RatePerSecond throttles outgoing attempts to stay under the API's
	// rate limit instead of burning retries on 429 responses.
	// Zero or negative disables throttling.
	// Default: 1.0
	RatePerSecond float64

	// RateBurst is the token bucket burst size for the rate limiter.
	// Default: 5
	RateBurst int

	// Debug enables per-attempt debug logging.
	// Default: false
	Debug bool
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://api.thingspeak.com",
		ProxyURL:       "",
		Timeout:        15 * time.Second,
		RetryAttempts:  3,
		RetryDelay:     1 * time.Second,
		CacheEnabled:   true,
		CacheTTL:       60 * time.Second,
		DefaultResults: 100,
		RatePerSecond:  1.0,
		RateBurst:      5,
	}
}

// Validate checks if the configuration values are valid.
//
// Validation rules:
//   - BaseURL: must parse as an absolute http(s) URL
//   - ProxyURL: must parse as an absolute http(s) URL when set
//   - Timeout, RetryDelay, CacheTTL: must be positive
//   - RetryAttempts: 1-10
//   - DefaultResults: 1-8000
func (c *Config) Validate() error {
	if err := validateOrigin("base URL", c.BaseURL); err != nil {
		return err
	}
	if c.ProxyURL != "" {
		if err := validateOrigin("proxy URL", c.ProxyURL); err != nil {
			return err
		}
	}
	if err := pkgconfig.ValidatePositiveDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	if err := pkgconfig.ValidatePositiveDuration(c.RetryDelay); err != nil {
		return fmt.Errorf("invalid retry delay: %w", err)
	}
	if err := pkgconfig.ValidatePositiveDuration(c.CacheTTL); err != nil {
		return fmt.Errorf("invalid cache TTL: %w", err)
	}
	if err := pkgconfig.ValidateIntRange(c.RetryAttempts, 1, 10); err != nil {
		return fmt.Errorf("invalid retry attempts: %w", err)
	}
	if err := pkgconfig.ValidateIntRange(c.DefaultResults, 1, 8000); err != nil {
		return fmt.Errorf("invalid default results: %w", err)
	}
	return nil
}

func validateOrigin(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid %s %q: scheme must be http or https", name, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid %s %q: missing host", name, raw)
	}
	return nil
}

// LoadConfigFromEnv loads configuration from environment variables,
// falling back to defaults for unset or unparseable values. The loaded
// configuration is validated before being returned.
//
// Environment variables:
//   - THINGSPEAK_BASE_URL: API origin (default: https://api.thingspeak.com)
//   - THINGSPEAK_PROXY_URL: proxy origin (default: unset)
//   - THINGSPEAK_TIMEOUT: per-attempt timeout, e.g. "15s" (default: 15s)
//   - THINGSPEAK_RETRY_ATTEMPTS: integer (default: 3)
//   - THINGSPEAK_RETRY_DELAY: duration (default: 1s)
//   - THINGSPEAK_CACHE_ENABLED: boolean (default: true)
//   - THINGSPEAK_CACHE_TTL: duration (default: 60s)
//   - THINGSPEAK_DEFAULT_RESULTS: integer (default: 100)
//   - THINGSPEAK_RATE_PER_SECOND: float (default: 1.0)
//   - THINGSPEAK_RATE_BURST: integer (default: 5)
//   - THINGSPEAK_DEBUG: boolean (default: false)
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	cfg.BaseURL = pkgconfig.GetEnvString("THINGSPEAK_BASE_URL", cfg.BaseURL)
	cfg.ProxyURL = pkgconfig.GetEnvString("THINGSPEAK_PROXY_URL", cfg.ProxyURL)
	cfg.Timeout = pkgconfig.GetEnvDuration("THINGSPEAK_TIMEOUT", cfg.Timeout)
	cfg.RetryAttempts = pkgconfig.GetEnvInt("THINGSPEAK_RETRY_ATTEMPTS", cfg.RetryAttempts)
	cfg.RetryDelay = pkgconfig.GetEnvDuration("THINGSPEAK_RETRY_DELAY", cfg.RetryDelay)
	cfg.CacheEnabled = pkgconfig.GetEnvBool("THINGSPEAK_CACHE_ENABLED", cfg.CacheEnabled)
	cfg.CacheTTL = pkgconfig.GetEnvDuration("THINGSPEAK_CACHE_TTL", cfg.CacheTTL)
	cfg.DefaultResults = pkgconfig.GetEnvInt("THINGSPEAK_DEFAULT_RESULTS", cfg.DefaultResults)
	cfg.RatePerSecond = pkgconfig.GetEnvFloat("THINGSPEAK_RATE_PER_SECOND", cfg.RatePerSecond)
	cfg.RateBurst = pkgconfig.GetEnvInt("THINGSPEAK_RATE_BURST", cfg.RateBurst)
	cfg.Debug = pkgconfig.GetEnvBool("THINGSPEAK_DEBUG", cfg.Debug)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}
