// Package config loads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config is built once at startup and passed to component constructors.
type Config struct {
	Port          int    `env:"PORT,default=3001"`
	AllowedOrigin string `env:"ALLOWED_ORIGIN,default=http://localhost:3000"`

	Cache      CacheConfig
	Refresh    RefreshConfig
	Retry      RetryConfig
	Pagination PaginationConfig
	Upstream   UpstreamConfig
	Detector   DetectorConfig
	RateLimit  RateLimitConfig
	Log        LogConfig
}

// CacheConfig configures the snapshot store.
type CacheConfig struct {
	Backend       string `env:"CACHE_BACKEND,default=redis"`
	RedisHost     string `env:"REDIS_HOST,default=localhost"`
	RedisPort     int    `env:"REDIS_PORT,default=6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB,default=0"`
	TTLSeconds    int    `env:"CACHE_TTL"` // zero means same as refresh interval
}

// RefreshConfig configures the scheduler.
type RefreshConfig struct {
	IntervalSeconds int `env:"REFRESH_INTERVAL,default=30"`
}

// RetryConfig configures the upstream retry policy.
type RetryConfig struct {
	MaxRetries  int `env:"MAX_RETRIES,default=3"`
	BaseDelayMs int `env:"RETRY_BASE_DELAY_MS,default=1000"`
	MaxDelayMs  int `env:"RETRY_MAX_DELAY_MS,default=10000"`
}

// PaginationConfig bounds query limits.
type PaginationConfig struct {
	DefaultLimit int `env:"DEFAULT_LIMIT,default=25"`
	MaxLimit     int `env:"MAX_LIMIT,default=50"`
}

// UpstreamConfig configures the source adapters and the enricher.
type UpstreamConfig struct {
	TimeoutMs       int     `env:"UPSTREAM_TIMEOUT_MS,default=10000"`
	SourceRateLimit float64 `env:"SOURCE_RATE_LIMIT,default=5"`

	BirdeyeAPIKey  string `env:"BIRDEYE_API_KEY"`
	BirdeyeBaseURL string `env:"BIRDEYE_BASE_URL,default=https://public-api.birdeye.so"`
	BirdeyeLimit   int    `env:"BIRDEYE_LIMIT,default=50"`

	JupiterBaseURL string `env:"JUPITER_BASE_URL,default=https://lite-api.jup.ag"`
	JupiterLimit   int    `env:"JUPITER_LIMIT,default=50"`

	DexScreenerBaseURL string `env:"DEXSCREENER_BASE_URL,default=https://api.dexscreener.com"`
	DexScreenerQueries string `env:"DEXSCREENER_QUERIES,default=SOL;raydium;pump"`
	DexScreenerLimit   int    `env:"DEXSCREENER_LIMIT,default=60"`

	CoinGeckoBaseURL string `env:"COINGECKO_BASE_URL,default=https://api.coingecko.com/api/v3"`
	CoinGeckoAPIKey  string `env:"COINGECKO_API_KEY"`
	ReferenceMapFile string `env:"REFERENCE_MAP_FILE"`
}

// DetectorConfig holds change detection thresholds in percent.
type DetectorConfig struct {
	PriceDeltaPct  float64 `env:"PRICE_DELTA_PCT,default=5"`
	VolumeSpikePct float64 `env:"VOLUME_SPIKE_PCT,default=50"`
}

// RateLimitConfig bounds per-client HTTP request rates.
type RateLimitConfig struct {
	RequestsPerSecond float64 `env:"API_RATE_LIMIT,default=20"`
	Burst             int     `env:"API_RATE_BURST,default=40"`
}

// LogConfig configures the root logger.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL,default=info"`
	Format string `env:"LOG_FORMAT,default=json"`
}

// Load reads an optional .env file, decodes the environment and validates the result.
// Variables already set in the environment take precedence over the file.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// Missing files are fine; the process environment is the source of truth.
		_ = godotenv.Load(f)
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Cache.TTLSeconds <= 0 {
		c.Cache.TTLSeconds = c.Refresh.IntervalSeconds
	}
	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
}

// ListenAddr returns the HTTP listen address.
func (c *Config) ListenAddr() string {
	return ":" + strconv.Itoa(c.Port)
}

// RedisAddr returns host:port of the cache store.
func (c *Config) RedisAddr() string {
	return net.JoinHostPort(c.Cache.RedisHost, strconv.Itoa(c.Cache.RedisPort))
}

// RefreshInterval returns the scheduler interval.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Refresh.IntervalSeconds) * time.Second
}

// CacheTTL returns the snapshot expiry.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// UpstreamTimeout returns the per-call timeout.
func (c *Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.Upstream.TimeoutMs) * time.Millisecond
}

// RetryBaseDelay returns the first backoff delay.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Retry.BaseDelayMs) * time.Millisecond
}

// RetryMaxDelay returns the backoff cap.
func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.Retry.MaxDelayMs) * time.Millisecond
}

// DexScreenerQueryList splits the configured search queries.
func (c *Config) DexScreenerQueryList() []string {
	var out []string
	for _, q := range strings.FieldsFunc(c.Upstream.DexScreenerQueries, func(r rune) bool {
		return r == ';' || r == ','
	}) {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out
}
