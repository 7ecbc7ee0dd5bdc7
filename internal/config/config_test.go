package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noEnvFile points Load at a file that does not exist.
func noEnvFile(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, 3001, cfg.Port)
	assert.Equal(t, ":3001", cfg.ListenAddr())
	assert.Equal(t, "localhost:6379", cfg.RedisAddr())
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, 30*time.Second, cfg.RefreshInterval())
	assert.Equal(t, 30*time.Second, cfg.CacheTTL(), "TTL follows the refresh interval")
	assert.Equal(t, "http://localhost:3000", cfg.AllowedOrigin)

	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, time.Second, cfg.RetryBaseDelay())
	assert.Equal(t, 10*time.Second, cfg.RetryMaxDelay())

	assert.Equal(t, 25, cfg.Pagination.DefaultLimit)
	assert.Equal(t, 50, cfg.Pagination.MaxLimit)

	assert.Equal(t, 10*time.Second, cfg.UpstreamTimeout())
	assert.Equal(t, []string{"SOL", "raydium", "pump"}, cfg.DexScreenerQueryList())
	assert.Equal(t, 5.0, cfg.Detector.PriceDeltaPct)
	assert.Equal(t, 50.0, cfg.Detector.VolumeSpikePct)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("REFRESH_INTERVAL", "60")
	t.Setenv("CACHE_TTL", "45")
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("MAX_LIMIT", "100")
	t.Setenv("DEXSCREENER_QUERIES", "bonk, wif")
	t.Setenv("CACHE_BACKEND", "Memory")

	cfg, err := Load(noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, time.Minute, cfg.RefreshInterval())
	assert.Equal(t, 45*time.Second, cfg.CacheTTL())
	assert.Equal(t, "cache.internal:6379", cfg.RedisAddr())
	assert.Equal(t, 100, cfg.Pagination.MaxLimit)
	assert.Equal(t, []string{"bonk", "wif"}, cfg.DexScreenerQueryList())
	assert.Equal(t, "memory", cfg.Cache.Backend)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("# comment\nJUPITER_LIMIT=7\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("JUPITER_LIMIT") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Upstream.JupiterLimit)
}

func TestLoad_InvalidNumber(t *testing.T) {
	t.Setenv("PORT", "not-a-port")

	_, err := Load(noEnvFile(t))
	assert.Error(t, err)
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load(noEnvFile(t))
	require.NoError(t, err)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"port zero", func(c *Config) { c.Port = 0 }},
		{"port too large", func(c *Config) { c.Port = 70000 }},
		{"unknown backend", func(c *Config) { c.Cache.Backend = "memcached" }},
		{"empty redis host", func(c *Config) { c.Cache.RedisHost = "" }},
		{"zero interval", func(c *Config) { c.Refresh.IntervalSeconds = 0 }},
		{"negative retries", func(c *Config) { c.Retry.MaxRetries = -1 }},
		{"base above max delay", func(c *Config) { c.Retry.BaseDelayMs = 20000 }},
		{"default above max limit", func(c *Config) { c.Pagination.DefaultLimit = 60 }},
		{"zero max limit", func(c *Config) { c.Pagination.MaxLimit = 0 }},
		{"zero timeout", func(c *Config) { c.Upstream.TimeoutMs = 0 }},
		{"negative threshold", func(c *Config) { c.Detector.PriceDeltaPct = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_MemoryBackendIgnoresRedis(t *testing.T) {
	cfg := validConfig(t)
	cfg.Cache.Backend = "memory"
	cfg.Cache.RedisHost = ""

	assert.NoError(t, cfg.Validate())
}
