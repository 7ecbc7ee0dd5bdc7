package enrich

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"solana-token-feed/internal/observability"
	"solana-token-feed/internal/upstream"
)

// Enricher supplies the 7-day price change for a record.
// ok is false when the key is not covered; err is set when the lookup failed.
type Enricher interface {
	Change7d(ctx context.Context, key string) (change float64, ok bool, err error)
}

// CoinGeckoConfig configures the CoinGecko enricher.
type CoinGeckoConfig struct {
	BaseURL string
	APIKey  string
}

// CoinGecko reads market_data.price_change_percentage_7d from /coins/{id}.
type CoinGecko struct {
	cfg    CoinGeckoConfig
	refs   ReferenceMap
	client *upstream.Client
	logger zerolog.Logger
}

// NewCoinGecko creates the enricher. Only keys present in refs are looked up.
// Callers pass a client with retries disabled; enrichment is best-effort.
func NewCoinGecko(cfg CoinGeckoConfig, refs ReferenceMap, logger zerolog.Logger, opts ...upstream.ClientOption) *CoinGecko {
	base := []upstream.ClientOption{upstream.WithLogger(logger)}
	if cfg.APIKey != "" {
		base = append(base, upstream.WithHeader("x-cg-demo-api-key", cfg.APIKey))
	}

	return &CoinGecko{
		cfg:    cfg,
		refs:   refs,
		client: upstream.NewClient("coingecko", append(base, opts...)...),
		logger: logger.With().Str("component", "coingecko").Logger(),
	}
}

// Change7d implements Enricher.
func (c *CoinGecko) Change7d(ctx context.Context, key string) (float64, bool, error) {
	id, ok := c.refs.Lookup(key)
	if !ok {
		observability.RecordEnrichment("skipped")
		return 0, false, nil
	}

	u := fmt.Sprintf("%s/coins/%s?localization=false&tickers=false&community_data=false&developer_data=false",
		strings.TrimRight(c.cfg.BaseURL, "/"), url.PathEscape(id))
	doc, err := c.client.GetJSON(ctx, u)
	if err != nil {
		observability.RecordEnrichment("error")
		return 0, false, fmt.Errorf("coingecko %s: %w", id, err)
	}

	v := doc.Get("market_data.price_change_percentage_7d")
	if v.Type != gjson.Number {
		observability.RecordEnrichment("skipped")
		return 0, false, nil
	}

	observability.RecordEnrichment("ok")
	return v.Float(), true, nil
}

var _ Enricher = (*CoinGecko)(nil)
