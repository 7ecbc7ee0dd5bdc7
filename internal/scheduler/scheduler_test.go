package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-token-feed/internal/domain"
	"solana-token-feed/internal/pipeline"
)

type fakeRunner struct {
	mu       sync.Mutex
	triggers []string
	block    chan struct{}
	err      error
}

func (f *fakeRunner) RunCycle(ctx context.Context, trigger string) (*domain.Snapshot, error) {
	f.mu.Lock()
	f.triggers = append(f.triggers, trigger)
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &domain.Snapshot{}, f.err
}

func (f *fakeRunner) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.triggers...)
}

func TestScheduler_RunsImmediatelyThenOnInterval(t *testing.T) {
	r := &fakeRunner{}
	s := New(r, time.Second, zerolog.Nop())

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	require.Eventually(t, func() bool { return len(r.calls()) >= 1 }, 500*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, pipeline.TriggerStartup, r.calls()[0])

	require.Eventually(t, func() bool { return len(r.calls()) >= 2 }, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, pipeline.TriggerSchedule, r.calls()[1])
}

func TestScheduler_StartIsIdempotent(t *testing.T) {
	r := &fakeRunner{}
	s := New(r, time.Hour, zerolog.Nop())

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return len(r.calls()) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
	assert.Len(t, r.calls(), 1)
}

func TestScheduler_StopCancelsRunningCycle(t *testing.T) {
	r := &fakeRunner{block: make(chan struct{})}
	s := New(r, time.Hour, zerolog.Nop())

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return len(r.calls()) == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}

func TestScheduler_CycleErrorsDoNotStopSchedule(t *testing.T) {
	r := &fakeRunner{err: pipeline.ErrNoData}
	s := New(r, time.Second, zerolog.Nop())

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	require.Eventually(t, func() bool { return len(r.calls()) >= 2 }, 3*time.Second, 20*time.Millisecond)
}

func TestNew_MinimumInterval(t *testing.T) {
	s := New(&fakeRunner{}, 10*time.Millisecond, zerolog.Nop())

	assert.Equal(t, time.Second, s.interval)
}
