// Package sources contains the upstream token listing adapters.
package sources

import (
	"context"

	"github.com/mr-tron/base58"
	"golang.org/x/sync/errgroup"

	"solana-token-feed/internal/domain"
)

// Adapter fetches token listings from one provider.
// FetchTokens never fails: unrecoverable errors are logged by the adapter and
// yield an empty result.
type Adapter interface {
	Name() domain.Source
	FetchTokens(ctx context.Context) []*domain.RawRecord
}

// Result is one adapter's contribution to a cycle.
type Result struct {
	Source  domain.Source
	Records []*domain.RawRecord
}

// FetchAll runs every adapter concurrently and waits for all of them.
// Results keep the order of adapters.
func FetchAll(ctx context.Context, adapters []Adapter) []Result {
	results := make([]Result, len(adapters))

	// Adapters never fail, so the group only joins; no sibling is cancelled.
	var g errgroup.Group
	for i, a := range adapters {
		g.Go(func() error {
			results[i] = Result{Source: a.Name(), Records: a.FetchTokens(ctx)}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Dedupe keeps one record per identity key; later records replace earlier ones
// but keep the position of the first occurrence. Records without a key are dropped.
func Dedupe(records []*domain.RawRecord) []*domain.RawRecord {
	pos := make(map[string]int, len(records))
	out := make([]*domain.RawRecord, 0, len(records))
	for _, r := range records {
		if r == nil {
			continue
		}
		key := r.Key()
		if key == "" {
			continue
		}
		if i, ok := pos[key]; ok {
			out[i] = r
			continue
		}
		pos[key] = len(out)
		out = append(out, r)
	}
	return out
}

// Truncate caps records at limit. A limit <= 0 means no cap.
func Truncate(records []*domain.RawRecord, limit int) []*domain.RawRecord {
	if limit > 0 && len(records) > limit {
		return records[:limit]
	}
	return records
}

// finalize applies the per-adapter output rules: dedupe, then cap.
func finalize(records []*domain.RawRecord, limit int) []*domain.RawRecord {
	return Truncate(Dedupe(records), limit)
}

// ValidAddress reports whether s decodes as a 32-byte base58 Solana public key.
func ValidAddress(s string) bool {
	if len(s) < 32 || len(s) > 44 {
		return false
	}
	b, err := base58.Decode(s)
	return err == nil && len(b) == 32
}
