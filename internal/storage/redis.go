// Package storage keeps hot engine state in Redis so several replicas can
// share bandit statistics.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/easeaico/persona-engine/internal/bandit"
)

// RedisArmStore stores bandit snapshots as JSON strings under a key prefix.
// It implements bandit.Checkpointer.
type RedisArmStore struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// Option configures a RedisArmStore.
type Option func(*RedisArmStore)

// WithTTL expires checkpoints that are not refreshed within ttl.
func WithTTL(ttl time.Duration) Option {
	return func(s *RedisArmStore) { s.ttl = ttl }
}

// NewRedisArmStore wraps an existing client.
func NewRedisArmStore(rdb redis.UniversalClient, prefix string, opts ...Option) *RedisArmStore {
	s := &RedisArmStore{rdb: rdb, prefix: prefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr, prefix string, opts ...Option) (*RedisArmStore, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisArmStore(rdb, prefix, opts...), nil
}

func (s *RedisArmStore) key(id string) string {
	if s.prefix == "" {
		return "bandit:" + id
	}
	return s.prefix + ":bandit:" + id
}

func (s *RedisArmStore) SaveArms(ctx context.Context, id string, snap bandit.Snapshot) error {
	if s == nil || s.rdb == nil {
		return fmt.Errorf("redis client not configured")
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode bandit checkpoint: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(id), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write bandit checkpoint: %w", err)
	}
	return nil
}

func (s *RedisArmStore) LoadArms(ctx context.Context, id string) (bandit.Snapshot, error) {
	if s == nil || s.rdb == nil {
		return bandit.Snapshot{}, fmt.Errorf("redis client not configured")
	}
	raw, err := s.rdb.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return bandit.Snapshot{}, bandit.ErrNoCheckpoint
	}
	if err != nil {
		return bandit.Snapshot{}, fmt.Errorf("failed to read bandit checkpoint: %w", err)
	}
	var snap bandit.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return bandit.Snapshot{}, fmt.Errorf("failed to decode bandit checkpoint: %w", err)
	}
	return snap, nil
}

// Delete removes a checkpoint. Missing keys are not an error.
func (s *RedisArmStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.rdb == nil {
		return fmt.Errorf("redis client not configured")
	}
	if err := s.rdb.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete bandit checkpoint: %w", err)
	}
	return nil
}

// Close releases the client.
func (s *RedisArmStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}
