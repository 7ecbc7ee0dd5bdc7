// Package redis provides a Redis-backed SnapshotStore.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"solana-token-feed/internal/domain"
	"solana-token-feed/internal/observability"
	"solana-token-feed/internal/storage"
)

// Config holds connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int

	// OpTimeout bounds every cache call. Defaults to 2s.
	OpTimeout time.Duration
}

// SnapshotStore stores snapshots as JSON strings with a TTL.
// Every failure is logged, counted and reported to the caller as a miss.
type SnapshotStore struct {
	client    *goredis.Client
	opTimeout time.Duration
	logger    zerolog.Logger
}

// NewSnapshotStore connects lazily; an unreachable server is not an error here.
func NewSnapshotStore(cfg Config, logger zerolog.Logger) *SnapshotStore {
	client := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 2 * time.Second,
		MaxRetries:  1,
	})
	return NewSnapshotStoreFromClient(client, cfg.OpTimeout, logger)
}

// NewSnapshotStoreFromClient wraps an existing client.
func NewSnapshotStoreFromClient(client *goredis.Client, opTimeout time.Duration, logger zerolog.Logger) *SnapshotStore {
	if opTimeout <= 0 {
		opTimeout = 2 * time.Second
	}
	return &SnapshotStore{
		client:    client,
		opTimeout: opTimeout,
		logger:    logger.With().Str("component", "redis").Logger(),
	}
}

// Get implements storage.SnapshotStore.
func (s *SnapshotStore) Get(ctx context.Context, key string) (*domain.Snapshot, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false
	}
	if err != nil {
		s.fail("get", key, err)
		return nil, false
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.fail("decode", key, err)
		return nil, false
	}

	return &snap, true
}

// Set implements storage.SnapshotStore.
func (s *SnapshotStore) Set(ctx context.Context, key string, snap *domain.Snapshot, ttl time.Duration) {
	if snap == nil {
		return
	}

	data, err := json.Marshal(snap)
	if err != nil {
		s.fail("encode", key, err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		s.fail("set", key, err)
	}
}

// SetMany implements storage.SnapshotStore. The value is encoded once and all
// keys are written in a single pipelined round trip.
func (s *SnapshotStore) SetMany(ctx context.Context, keys []string, snap *domain.Snapshot, ttl time.Duration) {
	if snap == nil || len(keys) == 0 {
		return
	}

	data, err := json.Marshal(snap)
	if err != nil {
		s.fail("encode", strings.Join(keys, ","), err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if ttl < 0 {
		ttl = 0
	}
	_, err = s.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, key := range keys {
			pipe.Set(ctx, key, data, ttl)
		}
		return nil
	})
	if err != nil {
		s.fail("set_many", strings.Join(keys, ","), err)
	}
}

// Delete implements storage.SnapshotStore.
func (s *SnapshotStore) Delete(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.client.Del(ctx, key).Err(); err != nil {
		s.fail("delete", key, err)
	}
}

// Ping implements storage.SnapshotStore.
func (s *SnapshotStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	return nil
}

// Close releases the connection pool.
func (s *SnapshotStore) Close() error {
	return s.client.Close()
}

func (s *SnapshotStore) fail(op, key string, err error) {
	observability.RecordCacheError(op)
	s.logger.Warn().Err(err).Str("op", op).Str("key", key).Msg("cache operation failed")
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)
