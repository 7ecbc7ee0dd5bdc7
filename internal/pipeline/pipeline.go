// Package pipeline runs the fetch, merge, cache, detect and publish cycle and
// answers on-demand queries.
// Flow: adapters -> merge -> enrich -> cache -> detector -> publisher
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"solana-token-feed/internal/detect"
	"solana-token-feed/internal/domain"
	"solana-token-feed/internal/merge"
	"solana-token-feed/internal/observability"
	"solana-token-feed/internal/sources"
	"solana-token-feed/internal/storage"
)

// ErrNoData is returned when every adapter came back empty.
var ErrNoData = errors.New("no token data available from any source")

// Cycle triggers.
const (
	TriggerStartup  = "startup"
	TriggerSchedule = "schedule"
	TriggerOnDemand = "on_demand"
)

// Defaults.
const (
	DefaultDefaultLimit = 25
	DefaultMaxLimit     = 50
	DefaultFetchTimeout = 60 * time.Second
)

// Publisher receives every successful cycle.
type Publisher interface {
	Publish(snap *domain.Snapshot, deltas detect.Deltas)
}

// Options for creating Pipeline.
type Options struct {
	// Required
	Adapters []sources.Adapter
	Engine   *merge.Engine
	Store    storage.SnapshotStore
	Detector *detect.Detector

	// Optional
	Publisher    Publisher
	CacheTTL     time.Duration
	DefaultLimit int
	MaxLimit     int
	FetchTimeout time.Duration // bounds an on-demand fetch shared by waiting callers
	Logger       zerolog.Logger
	Clock        func() time.Time
}

// Status summarizes the cycle history for health reporting.
type Status struct {
	LastCycle   time.Time
	LastRecords int
	Cycles      int64
	LastError   string
}

// Pipeline owns the detector baseline and serializes every cache write.
type Pipeline struct {
	adapters  []sources.Adapter
	engine    *merge.Engine
	store     storage.SnapshotStore
	detector  *detect.Detector
	publisher Publisher

	cacheTTL     time.Duration
	defaultLimit int
	maxLimit     int
	fetchTimeout time.Duration

	logger zerolog.Logger
	now    func() time.Time

	// cycleMu serializes cache writes, detection and publication.
	cycleMu sync.Mutex
	group   singleflight.Group

	statusMu sync.RWMutex
	status   Status
}

// New creates a pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Engine == nil || opts.Store == nil || opts.Detector == nil {
		return nil, fmt.Errorf("pipeline: engine, store and detector are required")
	}
	if len(opts.Adapters) == 0 {
		return nil, fmt.Errorf("pipeline: at least one adapter is required")
	}

	p := &Pipeline{
		adapters:     append([]sources.Adapter(nil), opts.Adapters...),
		engine:       opts.Engine,
		store:        opts.Store,
		detector:     opts.Detector,
		publisher:    opts.Publisher,
		cacheTTL:     opts.CacheTTL,
		defaultLimit: opts.DefaultLimit,
		maxLimit:     opts.MaxLimit,
		fetchTimeout: opts.FetchTimeout,
		logger:       opts.Logger.With().Str("component", "pipeline").Logger(),
		now:          opts.Clock,
	}
	if p.defaultLimit <= 0 {
		p.defaultLimit = DefaultDefaultLimit
	}
	if p.maxLimit <= 0 {
		p.maxLimit = DefaultMaxLimit
	}
	if p.defaultLimit > p.maxLimit {
		p.defaultLimit = p.maxLimit
	}
	if p.fetchTimeout <= 0 {
		p.fetchTimeout = DefaultFetchTimeout
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p, nil
}

// RunCycle fetches every source, bypassing the cache, and on a non-empty
// result writes the snapshot under every query key, runs detection and
// publishes. An empty result changes nothing and returns ErrNoData.
func (p *Pipeline) RunCycle(ctx context.Context, trigger string) (*domain.Snapshot, error) {
	start := p.now()

	snap := p.collect(ctx)
	if snap.Len() == 0 {
		elapsed := p.now().Sub(start)
		observability.RecordCycle(trigger, "empty", elapsed.Seconds(), 0)
		p.recordStatus(0, ErrNoData)
		p.logger.Warn().Str("trigger", trigger).Dur("duration", elapsed).Msg("cycle produced no records, keeping previous state")
		return nil, ErrNoData
	}

	p.cycleMu.Lock()
	p.store.SetMany(ctx, storage.AllCacheKeys(), snap, p.cacheTTL)
	deltas := p.detector.Observe(snap)
	if p.publisher != nil {
		p.publisher.Publish(snap, deltas)
	}
	p.cycleMu.Unlock()

	elapsed := p.now().Sub(start)
	observability.RecordCycle(trigger, "success", elapsed.Seconds(), snap.Len())
	observability.RecordDeltas(len(deltas.PriceDeltas), len(deltas.VolumeSpikes))
	observability.MarkCycleSuccess(p.now().Unix())
	p.recordStatus(snap.Len(), nil)

	p.logger.Info().
		Str("trigger", trigger).
		Int("records", snap.Len()).
		Int("price_deltas", len(deltas.PriceDeltas)).
		Int("volume_spikes", len(deltas.VolumeSpikes)).
		Dur("duration", elapsed).
		Msg("cycle complete")

	return snap, nil
}

// Query answers q from the cache, or on a miss from a live fetch shared by
// every concurrent caller of the same key. The live result is cached under
// that key only; it does not touch the detector or the publisher.
func (p *Pipeline) Query(ctx context.Context, q domain.QuerySpec) (domain.Projection, error) {
	q = q.Clamp(p.defaultLimit, p.maxLimit)
	key := storage.CacheKey(q)

	if snap, ok := p.store.Get(ctx, key); ok {
		observability.RecordCacheLookup(true)
		return domain.Project(snap, q), nil
	}
	observability.RecordCacheLookup(false)

	ch := p.group.DoChan(key, func() (interface{}, error) {
		// The fetch outlives any single caller that gives up.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.fetchTimeout)
		defer cancel()
		return p.fetchAndStore(fetchCtx, key)
	})

	select {
	case <-ctx.Done():
		return domain.Projection{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.Projection{}, res.Err
		}
		return domain.Project(res.Val.(*domain.Snapshot), q), nil
	}
}

func (p *Pipeline) fetchAndStore(ctx context.Context, key string) (*domain.Snapshot, error) {
	start := p.now()

	snap := p.collect(ctx)
	if snap.Len() == 0 {
		observability.RecordCycle(TriggerOnDemand, "empty", p.now().Sub(start).Seconds(), 0)
		p.logger.Warn().Str("key", key).Msg("on-demand fetch produced no records")
		return nil, ErrNoData
	}

	p.cycleMu.Lock()
	p.store.Set(ctx, key, snap, p.cacheTTL)
	p.cycleMu.Unlock()

	observability.RecordCycle(TriggerOnDemand, "success", p.now().Sub(start).Seconds(), snap.Len())
	p.logger.Debug().Str("key", key).Int("records", snap.Len()).Msg("on-demand fetch cached")
	return snap, nil
}

// collect fetches all adapters concurrently, merges in priority order and enriches.
func (p *Pipeline) collect(ctx context.Context) *domain.Snapshot {
	results := sources.FetchAll(ctx, p.adapters)
	for _, r := range results {
		p.logger.Debug().Str("source", r.Source.String()).Int("records", len(r.Records)).Msg("source fetched")
	}

	merged := p.engine.Merge(results...)
	if merged.Len() == 0 {
		return merged
	}
	return p.engine.Enrich(ctx, merged)
}

func (p *Pipeline) recordStatus(records int, err error) {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()

	p.status.Cycles++
	if err != nil {
		p.status.LastError = err.Error()
		return
	}
	p.status.LastCycle = p.now()
	p.status.LastRecords = records
	p.status.LastError = ""
}

// Status returns a copy of the cycle history.
func (p *Pipeline) Status() Status {
	p.statusMu.RLock()
	defer p.statusMu.RUnlock()
	return p.status
}

// Ping reports cache connectivity.
func (p *Pipeline) Ping(ctx context.Context) error {
	return p.store.Ping(ctx)
}
