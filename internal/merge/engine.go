// Package merge combines per-source listings into one canonical snapshot.
package merge

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"solana-token-feed/internal/domain"
	"solana-token-feed/internal/enrich"
	"solana-token-feed/internal/sources"
)

// Default enrichment limits.
const (
	DefaultEnrichConcurrency = 4
	DefaultEnrichTimeout     = 15 * time.Second
)

// Engine merges source results in a fixed priority order.
type Engine struct {
	priority []domain.Source
	rank     map[domain.Source]int

	enricher    enrich.Enricher
	concurrency int
	timeout     time.Duration

	logger zerolog.Logger
	now    func() time.Time
}

// Option configures Engine.
type Option func(*Engine)

// WithPriority overrides the source priority, highest first. Unknown and
// repeated sources are ignored; an order with no known source keeps the default.
func WithPriority(order ...domain.Source) Option {
	return func(e *Engine) {
		e.priority = append([]domain.Source(nil), order...)
	}
}

// WithEnricher sets the secondary enrichment source.
func WithEnricher(en enrich.Enricher) Option {
	return func(e *Engine) {
		e.enricher = en
	}
}

// WithEnrichLimits bounds enrichment concurrency and total duration.
func WithEnrichLimits(concurrency int, timeout time.Duration) Option {
	return func(e *Engine) {
		if concurrency > 0 {
			e.concurrency = concurrency
		}
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = l.With().Str("component", "merge").Logger()
	}
}

// WithClock sets the time source for snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates a merge engine with the default priority.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		priority:    append([]domain.Source(nil), domain.DefaultPriority...),
		concurrency: DefaultEnrichConcurrency,
		timeout:     DefaultEnrichTimeout,
		logger:      zerolog.Nop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.priority = e.validPriority(e.priority)
	if len(e.priority) == 0 {
		e.priority = append([]domain.Source(nil), domain.DefaultPriority...)
	}
	e.rank = make(map[domain.Source]int, len(e.priority))
	for i, s := range e.priority {
		e.rank[s] = i
	}
	return e
}

// validPriority drops unknown and repeated sources, keeping order.
func (e *Engine) validPriority(order []domain.Source) []domain.Source {
	out := make([]domain.Source, 0, len(order))
	seen := make(map[domain.Source]bool, len(order))
	for _, s := range order {
		if !s.IsValid() {
			e.logger.Warn().Str("source", s.String()).Msg("ignoring unknown source in priority order")
			continue
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// Priority returns the source order, highest first.
func (e *Engine) Priority() []domain.Source {
	return append([]domain.Source(nil), e.priority...)
}

// Merge builds a snapshot from scratch.
func (e *Engine) Merge(sets ...sources.Result) *domain.Snapshot {
	return e.MergeInto(nil, sets...)
}

// MergeInto applies sets on top of base and returns a new snapshot; base is
// not modified. Applying the same sets twice yields the same records.
//
// The first source (by priority) to report a key defines the record. Later
// sources only add their name to Sources and may raise Volume.
func (e *Engine) MergeInto(base *domain.Snapshot, sets ...sources.Result) *domain.Snapshot {
	var records []domain.CanonicalRecord
	if base != nil {
		records = make([]domain.CanonicalRecord, 0, len(base.Records))
		for _, r := range base.Records {
			records = append(records, r.Clone())
		}
	}

	index := make(map[string]int, len(records))
	for i, r := range records {
		index[r.Key] = i
	}

	for _, set := range e.ordered(sets) {
		// Within one set the last record for a key wins, as in the adapters.
		for _, raw := range sources.Dedupe(set.Records) {
			key := raw.Key()
			if raw.Source == "" {
				raw = withSource(raw, set.Source)
			}

			if i, ok := index[key]; ok {
				absorb(&records[i], raw)
				continue
			}
			index[key] = len(records)
			records = append(records, raw.ToCanonical())
		}
	}

	return &domain.Snapshot{Records: records, CapturedAt: e.now()}
}

// ordered sorts sets by priority. Unknown sources go last in argument order.
func (e *Engine) ordered(sets []sources.Result) []sources.Result {
	out := append([]sources.Result(nil), sets...)
	sort.SliceStable(out, func(i, j int) bool {
		return e.rankOf(out[i].Source) < e.rankOf(out[j].Source)
	})
	return out
}

func (e *Engine) rankOf(s domain.Source) int {
	if r, ok := e.rank[s]; ok {
		return r
	}
	return len(e.priority)
}

// absorb folds a lower-priority observation into an existing record.
func absorb(c *domain.CanonicalRecord, raw *domain.RawRecord) {
	name := raw.Source.String()
	if !c.HasSource(name) {
		c.Sources = append(c.Sources, name)
	}
	if v := domain.NonNegative(raw.Volume); v != nil && *v > c.Volume {
		c.Volume = *v
	}
}

func withSource(raw *domain.RawRecord, s domain.Source) *domain.RawRecord {
	c := *raw
	c.Source = s
	return &c
}

// Enrich fills Change7d from the enricher for every record that lacks it.
// Lookups run concurrently under an overall deadline; a failed lookup leaves
// that record untouched. The returned snapshot is a copy.
func (e *Engine) Enrich(ctx context.Context, snap *domain.Snapshot) *domain.Snapshot {
	if snap == nil {
		return nil
	}
	out := domain.NewSnapshot(snap.Records, snap.CapturedAt)
	if e.enricher == nil || len(out.Records) == 0 {
		return out
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i := range out.Records {
		if out.Records[i].Change7d != nil {
			continue
		}
		rec := &out.Records[i]
		g.Go(func() error {
			change, ok, err := e.enricher.Change7d(ctx, rec.Key)
			if err != nil {
				e.logger.Debug().Err(err).Str("key", rec.Key).Msg("enrichment failed")
				return nil
			}
			if ok {
				rec.Change7d = domain.Float(change)
			}
			return nil
		})
	}
	_ = g.Wait()

	return out
}
