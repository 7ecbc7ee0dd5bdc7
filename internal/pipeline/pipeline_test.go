package pipeline

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-token-feed/internal/detect"
	"solana-token-feed/internal/domain"
	"solana-token-feed/internal/merge"
	"solana-token-feed/internal/publish"
	"solana-token-feed/internal/sources"
	"solana-token-feed/internal/sources/stub"
	"solana-token-feed/internal/storage"
	"solana-token-feed/internal/storage/memory"
	redisstore "solana-token-feed/internal/storage/redis"
)

func raw(addr string, price, volume float64) *domain.RawRecord {
	return &domain.RawRecord{
		Address:   addr,
		Symbol:    addr,
		Price:     domain.Float(price),
		Volume:    domain.Float(volume),
		MarketCap: domain.Float(price * 10),
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	snaps  []*domain.Snapshot
	deltas []detect.Deltas
}

func (r *recordingPublisher) Publish(snap *domain.Snapshot, d detect.Deltas) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
	r.deltas = append(r.deltas, d)
}

func (r *recordingPublisher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

type fixture struct {
	p     *Pipeline
	store *memory.SnapshotStore
	pub   *recordingPublisher
}

func newFixture(t *testing.T, adapters ...sources.Adapter) fixture {
	t.Helper()
	store := memory.NewSnapshotStore()
	pub := &recordingPublisher{}
	p, err := New(Options{
		Adapters:  adapters,
		Engine:    merge.NewEngine(),
		Store:     store,
		Detector:  detect.NewDetector(detect.DefaultThresholds()),
		Publisher: pub,
		CacheTTL:  time.Minute,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	return fixture{p: p, store: store, pub: pub}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	_, err = New(Options{
		Engine:   merge.NewEngine(),
		Store:    memory.NewSnapshotStore(),
		Detector: detect.NewDetector(detect.DefaultThresholds()),
	})
	assert.Error(t, err)
}

func TestRunCycle_WritesEveryQueryKey(t *testing.T) {
	a := stub.New(domain.SourceBirdeye, []*domain.RawRecord{raw("a", 1, 10), raw("b", 2, 20)})
	f := newFixture(t, a)
	ctx := context.Background()

	snap, err := f.p.RunCycle(ctx, TriggerSchedule)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Len())

	for _, key := range storage.AllCacheKeys() {
		cached, ok := f.store.Get(ctx, key)
		require.True(t, ok, key)
		assert.Equal(t, 2, cached.Len())
	}
	assert.Equal(t, 1, f.pub.count())

	status := f.p.Status()
	assert.Equal(t, int64(1), status.Cycles)
	assert.Equal(t, 2, status.LastRecords)
	assert.False(t, status.LastCycle.IsZero())
	assert.Empty(t, status.LastError)
}

func TestRunCycle_EmptyResultChangesNothing(t *testing.T) {
	a := stub.NewSequence(domain.SourceBirdeye,
		[]*domain.RawRecord{raw("a", 100, 1000)},
		nil,
		[]*domain.RawRecord{raw("a", 100, 1600)},
	)
	f := newFixture(t, a)
	ctx := context.Background()

	_, err := f.p.RunCycle(ctx, TriggerSchedule)
	require.NoError(t, err)

	_, err = f.p.RunCycle(ctx, TriggerSchedule)
	assert.ErrorIs(t, err, ErrNoData)
	assert.Equal(t, 1, f.pub.count(), "empty cycle is not published")

	cached, ok := f.store.Get(ctx, storage.CacheKey(domain.QuerySpec{}))
	require.True(t, ok)
	assert.Equal(t, 1000.0, cached.Records[0].Volume, "previous snapshot stays cached")
	assert.Equal(t, ErrNoData.Error(), f.p.Status().LastError)

	// The baseline survived the empty cycle, so 1000 -> 1600 still flags.
	_, err = f.p.RunCycle(ctx, TriggerSchedule)
	require.NoError(t, err)
	require.Equal(t, 2, f.pub.count())
	assert.Len(t, f.pub.deltas[1].VolumeSpikes, 1)
}

func TestQuery_ServedFromCache(t *testing.T) {
	a := stub.New(domain.SourceBirdeye, []*domain.RawRecord{raw("a", 1, 10), raw("b", 2, 20), raw("c", 3, 30)})
	f := newFixture(t, a)
	ctx := context.Background()

	_, err := f.p.RunCycle(ctx, TriggerStartup)
	require.NoError(t, err)
	require.Equal(t, 1, a.Calls())

	proj, err := f.p.Query(ctx, domain.QuerySpec{SortKey: domain.SortVolume, Limit: 2})
	require.NoError(t, err)

	assert.Equal(t, 1, a.Calls(), "cache hit makes no upstream call")
	assert.Equal(t, 3, proj.Total)
	assert.Equal(t, 2, proj.Limit)
	require.Len(t, proj.Tokens, 2)
	assert.Equal(t, "c", proj.Tokens[0].Key)
	assert.Equal(t, "b", proj.Tokens[1].Key)
}

func TestQuery_MissFetchesAndCachesOneKey(t *testing.T) {
	a := stub.New(domain.SourceBirdeye, []*domain.RawRecord{raw("a", 1, 10)})
	f := newFixture(t, a)
	ctx := context.Background()
	q := domain.QuerySpec{Period: domain.Period1h, SortKey: domain.SortPriceChange}

	proj, err := f.p.Query(ctx, q)
	require.NoError(t, err)
	assert.Len(t, proj.Tokens, 1)
	assert.Equal(t, DefaultDefaultLimit, proj.Limit)

	assert.Equal(t, 1, f.store.Len(), "only the requested key is written")
	_, ok := f.store.Get(ctx, storage.CacheKey(q))
	assert.True(t, ok)
	assert.Equal(t, 0, f.pub.count(), "on-demand fetch is not published")

	_, err = f.p.Query(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 1, a.Calls())
}

func TestQuery_NoDataFromAnySource(t *testing.T) {
	f := newFixture(t,
		stub.New(domain.SourceBirdeye, nil),
		stub.New(domain.SourceJupiter, []*domain.RawRecord{raw("", 1, 1)}),
	)

	_, err := f.p.Query(context.Background(), domain.QuerySpec{})

	assert.ErrorIs(t, err, ErrNoData)
	assert.Equal(t, 0, f.store.Len())
}

func TestQuery_ClampsLimit(t *testing.T) {
	var records []*domain.RawRecord
	for i := 0; i < 60; i++ {
		records = append(records, raw(fmt.Sprintf("t%02d", i), 1, float64(i)))
	}
	f := newFixture(t, stub.New(domain.SourceBirdeye, records))

	proj, err := f.p.Query(context.Background(), domain.QuerySpec{Limit: 500})
	require.NoError(t, err)

	assert.Equal(t, DefaultMaxLimit, proj.Limit)
	assert.Len(t, proj.Tokens, DefaultMaxLimit)
	assert.Equal(t, 60, proj.Total)
}

// blockingAdapter holds every fetch until released.
type blockingAdapter struct {
	release chan struct{}
	calls   atomic.Int32
}

func (b *blockingAdapter) Name() domain.Source { return domain.SourceBirdeye }

func (b *blockingAdapter) FetchTokens(ctx context.Context) []*domain.RawRecord {
	b.calls.Add(1)
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil
	}
	return []*domain.RawRecord{raw("a", 1, 1)}
}

func TestQuery_ConcurrentMissesShareOneFetch(t *testing.T) {
	a := &blockingAdapter{release: make(chan struct{})}
	f := newFixture(t, a)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.p.Query(context.Background(), domain.QuerySpec{})
			errs <- err
		}()
	}

	require.Eventually(t, func() bool { return a.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(a.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), a.calls.Load())
}

func TestQuery_CallerCancellation(t *testing.T) {
	a := &blockingAdapter{release: make(chan struct{})}
	f := newFixture(t, a)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.p.Query(ctx, domain.QuerySpec{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(a.release)
	require.Eventually(t, func() bool { return f.store.Len() == 1 }, time.Second, 5*time.Millisecond,
		"the shared fetch completes after the caller leaves")
}

func TestPipeline_DisjointSourcesEndToEnd(t *testing.T) {
	var primary, secondary []*domain.RawRecord
	for i := 0; i < 20; i++ {
		primary = append(primary, raw(fmt.Sprintf("p%02d", i), 1, float64(100+i)))
	}
	for i := 0; i < 15; i++ {
		secondary = append(secondary, raw(fmt.Sprintf("s%02d", i), 1, float64(i)))
	}
	f := newFixture(t,
		stub.New(domain.SourceBirdeye, primary),
		stub.New(domain.SourceJupiter, secondary),
	)

	snap, err := f.p.RunCycle(context.Background(), TriggerStartup)
	require.NoError(t, err)
	assert.Equal(t, 35, snap.Len())

	proj, err := f.p.Query(context.Background(), domain.QuerySpec{Limit: 50})
	require.NoError(t, err)
	assert.Equal(t, 35, proj.Total)
	assert.Len(t, proj.Tokens, 35)
}

func TestPipeline_VolumeSpikeScenario(t *testing.T) {
	a := stub.NewSequence(domain.SourceBirdeye,
		[]*domain.RawRecord{raw("tok", 1, 1000)},
		[]*domain.RawRecord{raw("tok", 1, 1600)},
		[]*domain.RawRecord{raw("tok", 1, 1650)},
	)
	hub := publish.NewHub()
	p, err := New(Options{
		Adapters:  []sources.Adapter{a},
		Engine:    merge.NewEngine(),
		Store:     memory.NewSnapshotStore(),
		Detector:  detect.NewDetector(detect.DefaultThresholds()),
		Publisher: hub,
		CacheTTL:  time.Minute,
	})
	require.NoError(t, err)

	sub := hub.Subscribe()
	defer sub.Close()
	ctx := context.Background()

	var events []domain.Event
	for i := 0; i < 3; i++ {
		_, err := p.RunCycle(ctx, TriggerSchedule)
		require.NoError(t, err)
	drain:
		for {
			select {
			case ev := <-sub.C:
				events = append(events, ev)
			default:
				break drain
			}
		}
	}

	var types []domain.EventType
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []domain.EventType{
		domain.EventSnapshot,
		domain.EventSnapshot,
		domain.EventVolumeSpike,
		domain.EventSnapshot,
	}, types)
	assert.Equal(t, 1600.0, events[2].Tokens[0].Volume)
}

func TestQuery_CacheDownFallsBackToLiveFetch(t *testing.T) {
	mr := miniredis.RunT(t)
	store := redisstore.NewSnapshotStore(redisstore.Config{Addr: mr.Addr(), OpTimeout: 200 * time.Millisecond}, zerolog.Nop())
	t.Cleanup(func() { _ = store.Close() })
	mr.Close()

	a := stub.New(domain.SourceBirdeye, []*domain.RawRecord{raw("a", 1, 10), raw("b", 2, 20)})
	pub := &recordingPublisher{}
	p, err := New(Options{
		Adapters:  []sources.Adapter{a},
		Engine:    merge.NewEngine(),
		Store:     store,
		Detector:  detect.NewDetector(detect.DefaultThresholds()),
		Publisher: pub,
		CacheTTL:  time.Minute,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = p.RunCycle(ctx, TriggerSchedule)
	require.NoError(t, err, "cache writes failing does not fail the cycle")
	assert.Equal(t, 1, pub.count())

	proj, err := p.Query(ctx, domain.QuerySpec{})
	require.NoError(t, err)
	assert.Equal(t, 2, proj.Total)
	assert.Equal(t, 2, a.Calls(), "every query misses and fetches live")
	assert.Error(t, p.Ping(ctx))
}

func TestRunCycle_StalledCacheDoesNotDelayPublish(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	var connsMu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			connsMu.Lock()
			conns = append(conns, c)
			connsMu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		connsMu.Lock()
		defer connsMu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})

	const opTimeout = 200 * time.Millisecond
	store := redisstore.NewSnapshotStore(redisstore.Config{Addr: ln.Addr().String(), OpTimeout: opTimeout}, zerolog.Nop())
	t.Cleanup(func() { _ = store.Close() })

	pub := &recordingPublisher{}
	p, err := New(Options{
		Adapters:  []sources.Adapter{stub.New(domain.SourceBirdeye, []*domain.RawRecord{raw("a", 1, 10)})},
		Engine:    merge.NewEngine(),
		Store:     store,
		Detector:  detect.NewDetector(detect.DefaultThresholds()),
		Publisher: pub,
		CacheTTL:  30 * time.Second,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)

	start := time.Now()
	_, err = p.RunCycle(context.Background(), TriggerSchedule)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, 1, pub.count())
	assert.Less(t, elapsed, 3*opTimeout, "cache writes for every key share one timeout")
}
