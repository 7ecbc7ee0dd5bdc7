package storage

import (
	"fmt"

	"solana-token-feed/internal/domain"
)

const keyPrefix = "snapshot"

// CacheKey returns the cache key for a query shape: snapshot:{period}:{sort}.
// Limit and cursor are applied after the cache and are not part of the key.
func CacheKey(q domain.QuerySpec) string {
	period := string(q.Period)
	if period == "" {
		period = "all"
	}
	sortKey := string(q.SortKey)
	if sortKey == "" {
		sortKey = "default"
	}
	return fmt.Sprintf("%s:%s:%s", keyPrefix, period, sortKey)
}

// AllCacheKeys lists the key of every query shape the API accepts.
// The scheduler writes the fresh snapshot under each of them.
func AllCacheKeys() []string {
	keys := make([]string, 0, len(domain.Periods())*len(domain.SortKeys()))
	for _, p := range domain.Periods() {
		for _, s := range domain.SortKeys() {
			keys = append(keys, CacheKey(domain.QuerySpec{Period: p, SortKey: s}))
		}
	}
	return keys
}
