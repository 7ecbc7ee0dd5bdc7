package sources

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"solana-token-feed/internal/domain"
	"solana-token-feed/internal/observability"
	"solana-token-feed/internal/upstream"
)

// DexScreenerConfig configures the DexScreener adapter.
type DexScreenerConfig struct {
	BaseURL string
	Queries []string
	Limit   int
}

// DexScreener searches pairs and keeps the Solana base tokens.
type DexScreener struct {
	cfg    DexScreenerConfig
	client *upstream.Client
	logger zerolog.Logger
	now    func() time.Time
}

// NewDexScreener creates a DexScreener adapter.
func NewDexScreener(cfg DexScreenerConfig, logger zerolog.Logger, opts ...upstream.ClientOption) *DexScreener {
	if cfg.Limit <= 0 {
		cfg.Limit = 60
	}
	if len(cfg.Queries) == 0 {
		cfg.Queries = []string{"SOL"}
	}
	name := domain.SourceDexScreener.String()
	opts = append([]upstream.ClientOption{upstream.WithLogger(logger)}, opts...)

	return &DexScreener{
		cfg:    cfg,
		client: upstream.NewClient(name, opts...),
		logger: logger.With().Str("source", name).Logger(),
		now:    time.Now,
	}
}

// Name implements Adapter.
func (d *DexScreener) Name() domain.Source {
	return domain.SourceDexScreener
}

// FetchTokens implements Adapter.
func (d *DexScreener) FetchTokens(ctx context.Context) []*domain.RawRecord {
	perQuery := make([][]*domain.RawRecord, len(d.cfg.Queries))

	var failures atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	for i, query := range d.cfg.Queries {
		g.Go(func() error {
			u := fmt.Sprintf("%s/latest/dex/search?q=%s", strings.TrimRight(d.cfg.BaseURL, "/"), url.QueryEscape(query))
			doc, err := d.client.GetJSON(gctx, u)
			if err != nil {
				d.logger.Warn().Err(err).Str("query", query).Msg("search failed")
				failures.Add(1)
				return nil
			}
			perQuery[i] = d.parse(doc)
			return nil
		})
	}
	_ = g.Wait()

	// Concatenate in query order so last-write-wins is deterministic.
	var records []*domain.RawRecord
	for _, rs := range perQuery {
		records = append(records, rs...)
	}
	records = finalize(records, d.cfg.Limit)

	observability.RecordSourceFetch(d.Name().String(), len(records), int(failures.Load()) == len(d.cfg.Queries))
	return records
}

func (d *DexScreener) parse(doc gjson.Result) []*domain.RawRecord {
	fetchedAt := d.now()
	var records []*domain.RawRecord
	doc.Get("pairs").ForEach(func(_, p gjson.Result) bool {
		if p.Get("chainId").String() != "solana" {
			return true
		}
		addr := strings.TrimSpace(p.Get("baseToken.address").String())
		if !ValidAddress(addr) {
			return true
		}
		records = append(records, &domain.RawRecord{
			Source:    domain.SourceDexScreener,
			Address:   addr,
			Name:      p.Get("baseToken.name").String(),
			Symbol:    p.Get("baseToken.symbol").String(),
			Price:     optAmount(p.Get("priceUsd")),
			MarketCap: optAmount(firstOf(p, "marketCap", "fdv")),
			Volume:    optAmount(p.Get("volume.h24")),
			Liquidity: optAmount(p.Get("liquidity.usd")),
			TxCount:   sumKnown(optAmount(p.Get("txns.h24.buys")), optAmount(p.Get("txns.h24.sells"))),
			Change1h:  optFloat(p.Get("priceChange.h1")),
			Change24h: optFloat(p.Get("priceChange.h24")),
			Protocol:  p.Get("dexId").String(),
			FetchedAt: fetchedAt,
		})
		return true
	})
	return records
}

var _ Adapter = (*DexScreener)(nil)
