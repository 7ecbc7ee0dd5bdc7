package config

import (
	"errors"
	"fmt"
)

// Validate checks that all values are usable.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}

	switch c.Cache.Backend {
	case "redis":
		if c.Cache.RedisHost == "" {
			return errors.New("REDIS_HOST is required for the redis cache backend")
		}
		if c.Cache.RedisPort < 1 || c.Cache.RedisPort > 65535 {
			return fmt.Errorf("REDIS_PORT must be between 1 and 65535, got %d", c.Cache.RedisPort)
		}
	case "memory":
	default:
		return fmt.Errorf("CACHE_BACKEND must be redis or memory, got %q", c.Cache.Backend)
	}

	if c.Refresh.IntervalSeconds < 1 {
		return errors.New("REFRESH_INTERVAL must be >= 1")
	}
	if c.Cache.TTLSeconds < 1 {
		return errors.New("CACHE_TTL must be >= 1")
	}

	if c.Retry.MaxRetries < 0 {
		return errors.New("MAX_RETRIES must be >= 0")
	}
	if c.Retry.BaseDelayMs < 0 || c.Retry.MaxDelayMs < 0 {
		return errors.New("retry delays must be >= 0")
	}
	if c.Retry.BaseDelayMs > c.Retry.MaxDelayMs {
		return fmt.Errorf("RETRY_BASE_DELAY_MS (%d) must not exceed RETRY_MAX_DELAY_MS (%d)",
			c.Retry.BaseDelayMs, c.Retry.MaxDelayMs)
	}

	if c.Pagination.MaxLimit < 1 {
		return errors.New("MAX_LIMIT must be >= 1")
	}
	if c.Pagination.DefaultLimit < 1 || c.Pagination.DefaultLimit > c.Pagination.MaxLimit {
		return fmt.Errorf("DEFAULT_LIMIT must be between 1 and MAX_LIMIT (%d), got %d",
			c.Pagination.MaxLimit, c.Pagination.DefaultLimit)
	}

	if c.Upstream.TimeoutMs < 1 {
		return errors.New("UPSTREAM_TIMEOUT_MS must be >= 1")
	}

	if c.Detector.PriceDeltaPct < 0 || c.Detector.VolumeSpikePct < 0 {
		return errors.New("detector thresholds must be >= 0")
	}

	return nil
}
