package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/careerforge/ai-gateway/internal/domain"
)

// CacheRepo stores serialized gateway responses in the ai_cache table.
// Expired rows are deleted lazily on read.
type CacheRepo struct{ Pool PgxPool }

// NewCacheRepo constructs a CacheRepo with the given pool.
func NewCacheRepo(p PgxPool) *CacheRepo { return &CacheRepo{Pool: p} }

// Get returns the entry for key, or domain.ErrNotFound when the key is
// missing or past its expiry. An expired row is removed before returning.
func (r *CacheRepo) Get(ctx domain.Context, key string) (domain.CacheEntry, error) {
	tracer := otel.Tracer("repo.cache")
	ctx, span := tracer.Start(ctx, "cache.Get")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.sql.table", "ai_cache"),
	)
	q := `SELECT key, value, expires_at FROM ai_cache WHERE key=$1`
	var e domain.CacheEntry
	if err := r.Pool.QueryRow(ctx, q, key).Scan(&e.Key, &e.Value, &e.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.CacheEntry{}, fmt.Errorf("op=cache.get: %w", domain.ErrNotFound)
		}
		return domain.CacheEntry{}, fmt.Errorf("op=cache.get: %w", err)
	}
	if time.Now().UTC().After(e.ExpiresAt) {
		_, _ = r.Pool.Exec(ctx, `DELETE FROM ai_cache WHERE key=$1`, key)
		return domain.CacheEntry{}, fmt.Errorf("op=cache.get: %w", domain.ErrNotFound)
	}
	return e, nil
}

// Upsert writes or replaces the entry for key.
func (r *CacheRepo) Upsert(ctx domain.Context, key string, value []byte, expiresAt time.Time) error {
	tracer := otel.Tracer("repo.cache")
	ctx, span := tracer.Start(ctx, "cache.Upsert")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.sql.table", "ai_cache"),
	)
	q := `INSERT INTO ai_cache (key, value, expires_at, created_at) VALUES ($1,$2,$3,$4)
	      ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`
	if _, err := r.Pool.Exec(ctx, q, key, value, expiresAt.UTC(), time.Now().UTC()); err != nil {
		return fmt.Errorf("op=cache.upsert: %w", err)
	}
	return nil
}

// Delete removes the entry for key; deleting a missing key is not an error.
func (r *CacheRepo) Delete(ctx domain.Context, key string) error {
	tracer := otel.Tracer("repo.cache")
	ctx, span := tracer.Start(ctx, "cache.Delete")
	defer span.End()
	if _, err := r.Pool.Exec(ctx, `DELETE FROM ai_cache WHERE key=$1`, key); err != nil {
		return fmt.Errorf("op=cache.delete: %w", err)
	}
	return nil
}
