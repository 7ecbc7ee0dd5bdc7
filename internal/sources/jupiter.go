package sources

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"solana-token-feed/internal/domain"
	"solana-token-feed/internal/observability"
	"solana-token-feed/internal/upstream"
)

// JupiterConfig configures the Jupiter adapter.
type JupiterConfig struct {
	BaseURL string
	Limit   int
}

// jupiterCategories are queried concurrently for token diversity.
var jupiterCategories = []string{"toptrending/1h", "toporganicscore/24h"}

// Jupiter reads the Jupiter token API category lists.
type Jupiter struct {
	cfg    JupiterConfig
	client *upstream.Client
	logger zerolog.Logger
	now    func() time.Time
}

// NewJupiter creates a Jupiter adapter.
func NewJupiter(cfg JupiterConfig, logger zerolog.Logger, opts ...upstream.ClientOption) *Jupiter {
	if cfg.Limit <= 0 {
		cfg.Limit = 50
	}
	name := domain.SourceJupiter.String()
	opts = append([]upstream.ClientOption{upstream.WithLogger(logger)}, opts...)

	return &Jupiter{
		cfg:    cfg,
		client: upstream.NewClient(name, opts...),
		logger: logger.With().Str("source", name).Logger(),
		now:    time.Now,
	}
}

// Name implements Adapter.
func (j *Jupiter) Name() domain.Source {
	return domain.SourceJupiter
}

// FetchTokens implements Adapter.
func (j *Jupiter) FetchTokens(ctx context.Context) []*domain.RawRecord {
	perCategory := make([][]*domain.RawRecord, len(jupiterCategories))

	var (
		mu       sync.Mutex
		failures int
	)
	g, gctx := errgroup.WithContext(ctx)
	for i, category := range jupiterCategories {
		g.Go(func() error {
			url := fmt.Sprintf("%s/tokens/v2/%s?limit=%d", strings.TrimRight(j.cfg.BaseURL, "/"), category, j.cfg.Limit)
			doc, err := j.client.GetJSON(gctx, url)
			if err != nil {
				j.logger.Warn().Err(err).Str("category", category).Msg("fetch category failed")
				mu.Lock()
				failures++
				mu.Unlock()
				// One category failing must not cancel the other.
				return nil
			}
			perCategory[i] = j.parse(doc)
			return nil
		})
	}
	_ = g.Wait()

	var records []*domain.RawRecord
	for _, rs := range perCategory {
		records = append(records, rs...)
	}
	records = finalize(records, j.cfg.Limit)

	observability.RecordSourceFetch(j.Name().String(), len(records), failures == len(jupiterCategories))
	return records
}

func (j *Jupiter) parse(doc gjson.Result) []*domain.RawRecord {
	fetchedAt := j.now()
	var records []*domain.RawRecord
	doc.ForEach(func(_, t gjson.Result) bool {
		addr := strings.TrimSpace(t.Get("id").String())
		if !ValidAddress(addr) {
			return true
		}
		records = append(records, &domain.RawRecord{
			Source:    domain.SourceJupiter,
			Address:   addr,
			Name:      t.Get("name").String(),
			Symbol:    t.Get("symbol").String(),
			Price:     optAmount(t.Get("usdPrice")),
			MarketCap: optAmount(t.Get("mcap")),
			Volume:    sumKnown(optAmount(t.Get("stats24h.buyVolume")), optAmount(t.Get("stats24h.sellVolume"))),
			Liquidity: optAmount(t.Get("liquidity")),
			TxCount:   sumKnown(optAmount(t.Get("stats24h.numBuys")), optAmount(t.Get("stats24h.numSells"))),
			Change1h:  optFloat(t.Get("stats1h.priceChange")),
			Change24h: optFloat(t.Get("stats24h.priceChange")),
			Protocol:  t.Get("launchpad").String(),
			FetchedAt: fetchedAt,
		})
		return true
	})
	return records
}

var _ Adapter = (*Jupiter)(nil)
