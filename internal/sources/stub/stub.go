// Package stub provides in-memory adapters for tests and offline runs.
package stub

import (
	"context"
	"sync"
	"sync/atomic"

	"solana-token-feed/internal/domain"
)

// Adapter returns fixed in-memory records.
// Implements sources.Adapter.
type Adapter struct {
	source domain.Source

	mu      sync.Mutex
	batches [][]*domain.RawRecord
	calls   atomic.Int64
}

// New creates a stub adapter that returns records on every call.
func New(source domain.Source, records []*domain.RawRecord) *Adapter {
	return &Adapter{source: source, batches: [][]*domain.RawRecord{records}}
}

// NewSequence creates a stub adapter that returns one batch per call.
// The last batch repeats once the sequence is exhausted.
func NewSequence(source domain.Source, batches ...[]*domain.RawRecord) *Adapter {
	return &Adapter{source: source, batches: batches}
}

// Name returns the configured source.
func (a *Adapter) Name() domain.Source {
	return a.source
}

// FetchTokens returns copies of the next batch.
func (a *Adapter) FetchTokens(ctx context.Context) []*domain.RawRecord {
	n := a.calls.Add(1)
	if ctx.Err() != nil {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.batches) == 0 {
		return nil
	}
	idx := int(n - 1)
	if idx >= len(a.batches) {
		idx = len(a.batches) - 1
	}

	batch := a.batches[idx]
	result := make([]*domain.RawRecord, 0, len(batch))
	for _, r := range batch {
		c := *r
		c.Source = a.source
		result = append(result, &c)
	}
	return result
}

// Set replaces the records returned by every later call.
func (a *Adapter) Set(records []*domain.RawRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.batches = [][]*domain.RawRecord{records}
	a.calls.Store(0)
}

// Calls returns how many times FetchTokens was invoked.
func (a *Adapter) Calls() int {
	return int(a.calls.Load())
}
