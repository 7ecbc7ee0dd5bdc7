// Package app wires configured components for the binaries.
package app

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"solana-token-feed/internal/config"
	"solana-token-feed/internal/detect"
	"solana-token-feed/internal/domain"
	"solana-token-feed/internal/enrich"
	"solana-token-feed/internal/merge"
	"solana-token-feed/internal/retry"
	"solana-token-feed/internal/sources"
	"solana-token-feed/internal/storage"
	"solana-token-feed/internal/storage/memory"
	redisstore "solana-token-feed/internal/storage/redis"
	"solana-token-feed/internal/upstream"
)

// RetryPolicy builds the adapter retry policy from cfg.
func RetryPolicy(cfg *config.Config) retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxRetries = cfg.Retry.MaxRetries
	p.BaseDelay = cfg.RetryBaseDelay()
	p.MaxDelay = cfg.RetryMaxDelay()
	return p
}

func clientOptions(cfg *config.Config, policy retry.Policy) []upstream.ClientOption {
	return []upstream.ClientOption{
		upstream.WithTimeout(cfg.UpstreamTimeout()),
		upstream.WithRetryPolicy(policy),
		upstream.WithRateLimit(cfg.Upstream.SourceRateLimit, int(cfg.Upstream.SourceRateLimit)+1),
	}
}

// Adapters builds the source adapters in priority order.
func Adapters(cfg *config.Config, logger zerolog.Logger) []sources.Adapter {
	opts := clientOptions(cfg, RetryPolicy(cfg))
	up := cfg.Upstream

	if up.BirdeyeAPIKey == "" {
		logger.Warn().Msg("BIRDEYE_API_KEY not set, primary source disabled")
	}

	return []sources.Adapter{
		sources.NewBirdeye(sources.BirdeyeConfig{
			BaseURL: up.BirdeyeBaseURL,
			APIKey:  up.BirdeyeAPIKey,
			Limit:   up.BirdeyeLimit,
		}, logger, opts...),
		sources.NewJupiter(sources.JupiterConfig{
			BaseURL: up.JupiterBaseURL,
			Limit:   up.JupiterLimit,
		}, logger, opts...),
		sources.NewDexScreener(sources.DexScreenerConfig{
			BaseURL: up.DexScreenerBaseURL,
			Queries: cfg.DexScreenerQueryList(),
			Limit:   up.DexScreenerLimit,
		}, logger, opts...),
	}
}

// Engine builds the merge engine with the CoinGecko enricher.
func Engine(cfg *config.Config, logger zerolog.Logger) (*merge.Engine, error) {
	refs, err := enrich.LoadReferenceMap(cfg.Upstream.ReferenceMapFile)
	if err != nil {
		return nil, err
	}

	// Enrichment is best-effort: one attempt per lookup.
	noRetry := RetryPolicy(cfg)
	noRetry.MaxRetries = 0
	enricher := enrich.NewCoinGecko(enrich.CoinGeckoConfig{
		BaseURL: cfg.Upstream.CoinGeckoBaseURL,
		APIKey:  cfg.Upstream.CoinGeckoAPIKey,
	}, refs, logger, clientOptions(cfg, noRetry)...)

	logger.Info().Int("mapped_tokens", len(refs)).Msg("enrichment reference map loaded")

	return merge.NewEngine(
		merge.WithPriority(domain.DefaultPriority...),
		merge.WithEnricher(enricher),
		merge.WithEnrichLimits(merge.DefaultEnrichConcurrency, cfg.UpstreamTimeout()),
		merge.WithLogger(logger),
	), nil
}

// Detector builds the change detector.
func Detector(cfg *config.Config) *detect.Detector {
	return detect.NewDetector(detect.Thresholds{
		PriceDeltaPct:  cfg.Detector.PriceDeltaPct,
		VolumeSpikePct: cfg.Detector.VolumeSpikePct,
	})
}

// Store builds the configured snapshot store. The closer releases connections.
func Store(cfg *config.Config, logger zerolog.Logger) (storage.SnapshotStore, io.Closer, error) {
	switch cfg.Cache.Backend {
	case "memory":
		logger.Info().Msg("using in-memory snapshot store")
		return memory.NewSnapshotStore(), nopCloser{}, nil
	case "redis":
		logger.Info().Str("addr", cfg.RedisAddr()).Int("db", cfg.Cache.RedisDB).Msg("using redis snapshot store")
		s := redisstore.NewSnapshotStore(redisstore.Config{
			Addr:     cfg.RedisAddr(),
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		}, logger)
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
