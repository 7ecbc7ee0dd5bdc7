// Package storage defines the snapshot cache and its keys.
package storage

import (
	"context"
	"time"

	"solana-token-feed/internal/domain"
)

// SnapshotStore is an expiring key-value cache of merged snapshots.
// Implementations never fail the caller: read errors are misses and write
// errors are dropped after being logged.
type SnapshotStore interface {
	// Get returns the snapshot under key, or ok=false on miss, expiry or error.
	Get(ctx context.Context, key string) (*domain.Snapshot, bool)

	// Set stores snap under key for ttl. A non-positive ttl stores without expiry.
	Set(ctx context.Context, key string, snap *domain.Snapshot, ttl time.Duration)

	// SetMany stores snap under every key in keys for ttl, as one operation
	// bounded by a single store timeout.
	SetMany(ctx context.Context, keys []string, snap *domain.Snapshot, ttl time.Duration)

	// Delete removes key if present.
	Delete(ctx context.Context, key string)

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}
