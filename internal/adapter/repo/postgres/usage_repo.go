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

// UsageRepo maintains the per-user, per-operation, per-month counters in
// the ai_usage table.
type UsageRepo struct{ Pool PgxPool }

// NewUsageRepo constructs a UsageRepo with the given pool.
func NewUsageRepo(p PgxPool) *UsageRepo { return &UsageRepo{Pool: p} }

// IncrementOrCreate bumps the month's counters, creating the row when it
// does not exist. Atomicity comes from the upsert; no lock is held here.
func (r *UsageRepo) IncrementOrCreate(ctx domain.Context, userID, operation, monthKey string, requestDelta, tokenDelta int64) error {
	tracer := otel.Tracer("repo.usage")
	ctx, span := tracer.Start(ctx, "usage.IncrementOrCreate")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.sql.table", "ai_usage"),
	)
	q := `INSERT INTO ai_usage (user_id, operation, month_key, requests, tokens, last_used_at)
	      VALUES ($1,$2,$3,$4,$5,$6)
	      ON CONFLICT (user_id, operation, month_key) DO UPDATE SET
	        requests = ai_usage.requests + EXCLUDED.requests,
	        tokens = ai_usage.tokens + EXCLUDED.tokens,
	        last_used_at = EXCLUDED.last_used_at`
	if _, err := r.Pool.Exec(ctx, q, userID, operation, monthKey, requestDelta, tokenDelta, time.Now().UTC()); err != nil {
		return fmt.Errorf("op=usage.increment: %w", err)
	}
	return nil
}

// Get loads the month's record. A user who has not called the operation
// this month gets a zero record, not an error.
func (r *UsageRepo) Get(ctx domain.Context, userID, operation, monthKey string) (domain.UsageRecord, error) {
	tracer := otel.Tracer("repo.usage")
	ctx, span := tracer.Start(ctx, "usage.Get")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.sql.table", "ai_usage"),
	)
	q := `SELECT user_id, operation, month_key, requests, tokens, last_used_at
	      FROM ai_usage WHERE user_id=$1 AND operation=$2 AND month_key=$3`
	var rec domain.UsageRecord
	err := r.Pool.QueryRow(ctx, q, userID, operation, monthKey).Scan(
		&rec.UserID, &rec.Operation, &rec.MonthKey, &rec.Requests, &rec.Tokens, &rec.LastUsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UsageRecord{UserID: userID, Operation: operation, MonthKey: monthKey}, nil
		}
		return domain.UsageRecord{}, fmt.Errorf("op=usage.get: %w", err)
	}
	return rec, nil
}

// ListForUser returns every operation's record for the user in the given
// month, ordered by operation name.
func (r *UsageRepo) ListForUser(ctx domain.Context, userID, monthKey string) ([]domain.UsageRecord, error) {
	tracer := otel.Tracer("repo.usage")
	ctx, span := tracer.Start(ctx, "usage.ListForUser")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.sql.table", "ai_usage"),
	)
	q := `SELECT user_id, operation, month_key, requests, tokens, last_used_at
	      FROM ai_usage WHERE user_id=$1 AND month_key=$2 ORDER BY operation`
	rows, err := r.Pool.Query(ctx, q, userID, monthKey)
	if err != nil {
		return nil, fmt.Errorf("op=usage.list: %w", err)
	}
	defer rows.Close()
	var out []domain.UsageRecord
	for rows.Next() {
		var rec domain.UsageRecord
		if err := rows.Scan(&rec.UserID, &rec.Operation, &rec.MonthKey, &rec.Requests, &rec.Tokens, &rec.LastUsedAt); err != nil {
			return nil, fmt.Errorf("op=usage.list: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=usage.list: %w", err)
	}
	return out, nil
}
