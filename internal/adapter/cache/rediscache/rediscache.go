// Package rediscache implements the response cache on Redis.
//
// It is a drop-in alternative to the Postgres-backed cache for
// deployments that already run Redis; expiry is delegated to the server
// via key TTLs instead of a stored timestamp.
package rediscache

import (
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/careerforge/ai-gateway/internal/domain"
)

const keyPrefix = "ai:cache:"

// Store implements domain.CacheStore on a Redis client.
type Store struct {
	rdb *redis.Client
}

// New constructs a Store. The client's lifecycle belongs to the caller.
func New(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

// Get returns the cached entry or domain.ErrNotFound. Redis evicts
// expired keys itself, so a hit is always live.
func (s *Store) Get(ctx domain.Context, key string) (domain.CacheEntry, error) {
	val, err := s.rdb.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.CacheEntry{}, fmt.Errorf("op=cache.get: %w", domain.ErrNotFound)
		}
		return domain.CacheEntry{}, fmt.Errorf("op=cache.get: %w", err)
	}
	ttl, err := s.rdb.TTL(ctx, keyPrefix+key).Result()
	if err != nil || ttl < 0 {
		ttl = 0
	}
	return domain.CacheEntry{
		Key:       key,
		Value:     val,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}, nil
}

// Upsert writes the entry with a TTL derived from expiresAt. An already
// expired deadline just deletes any stale value.
func (s *Store) Upsert(ctx domain.Context, key string, value []byte, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return s.Delete(ctx, key)
	}
	if err := s.rdb.Set(ctx, keyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("op=cache.upsert: %w", err)
	}
	return nil
}

// Delete removes the entry; a missing key is not an error.
func (s *Store) Delete(ctx domain.Context, key string) error {
	if err := s.rdb.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("op=cache.delete: %w", err)
	}
	return nil
}

// Ping reports connectivity for readiness checks.
func (s *Store) Ping(ctx domain.Context) error {
	return s.rdb.Ping(ctx).Err()
}
