package sources

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"solana-token-feed/internal/domain"
	"solana-token-feed/internal/observability"
	"solana-token-feed/internal/upstream"
)

// BirdeyeConfig configures the Birdeye adapter.
type BirdeyeConfig struct {
	BaseURL string
	APIKey  string
	Limit   int
}

// Birdeye is the primary source: the token list sorted by 24h volume.
type Birdeye struct {
	cfg    BirdeyeConfig
	client *upstream.Client
	logger zerolog.Logger
	now    func() time.Time
}

// NewBirdeye creates a Birdeye adapter.
func NewBirdeye(cfg BirdeyeConfig, logger zerolog.Logger, opts ...upstream.ClientOption) *Birdeye {
	if cfg.Limit <= 0 {
		cfg.Limit = 50
	}
	name := domain.SourceBirdeye.String()
	opts = append([]upstream.ClientOption{
		upstream.WithHeader("X-API-KEY", cfg.APIKey),
		upstream.WithHeader("x-chain", "solana"),
		upstream.WithLogger(logger),
	}, opts...)

	return &Birdeye{
		cfg:    cfg,
		client: upstream.NewClient(name, opts...),
		logger: logger.With().Str("source", name).Logger(),
		now:    time.Now,
	}
}

// Name implements Adapter.
func (b *Birdeye) Name() domain.Source {
	return domain.SourceBirdeye
}

// FetchTokens implements Adapter.
func (b *Birdeye) FetchTokens(ctx context.Context) []*domain.RawRecord {
	if b.cfg.APIKey == "" {
		b.logger.Debug().Msg("no API key configured, skipping")
		return nil
	}

	doc, err := b.client.GetJSON(ctx, b.listURL())
	if err != nil {
		b.logger.Warn().Err(err).Msg("fetch token list failed")
		observability.RecordSourceFetch(b.Name().String(), 0, true)
		return nil
	}

	if s := doc.Get("success"); s.Exists() && !s.Bool() {
		b.logger.Warn().Str("message", doc.Get("message").String()).Msg("token list request rejected")
		observability.RecordSourceFetch(b.Name().String(), 0, true)
		return nil
	}

	fetchedAt := b.now()
	var records []*domain.RawRecord
	doc.Get("data.tokens").ForEach(func(_, t gjson.Result) bool {
		addr := strings.TrimSpace(t.Get("address").String())
		if !ValidAddress(addr) {
			return true
		}
		records = append(records, &domain.RawRecord{
			Source:    domain.SourceBirdeye,
			Address:   addr,
			Name:      t.Get("name").String(),
			Symbol:    t.Get("symbol").String(),
			Price:     optAmount(t.Get("price")),
			MarketCap: optAmount(firstOf(t, "mc", "marketcap")),
			Volume:    optAmount(firstOf(t, "v24hUSD", "volume24hUSD")),
			Liquidity: optAmount(t.Get("liquidity")),
			TxCount:   optAmount(t.Get("trade24h")),
			Change1h:  optFloat(t.Get("price1hChangePercent")),
			Change24h: optFloat(firstOf(t, "price24hChangePercent", "priceChange24hPercent")),
			FetchedAt: fetchedAt,
		})
		return true
	})

	records = finalize(records, b.cfg.Limit)
	observability.RecordSourceFetch(b.Name().String(), len(records), false)
	return records
}

func (b *Birdeye) listURL() string {
	q := url.Values{}
	q.Set("sort_by", "v24hUSD")
	q.Set("sort_type", "desc")
	q.Set("offset", "0")
	q.Set("limit", strconv.Itoa(b.cfg.Limit))
	return fmt.Sprintf("%s/defi/tokenlist?%s", strings.TrimRight(b.cfg.BaseURL, "/"), q.Encode())
}

// firstOf returns the first path present on v.
func firstOf(v gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if r := v.Get(p); r.Exists() {
			return r
		}
	}
	return gjson.Result{}
}

var _ Adapter = (*Birdeye)(nil)
