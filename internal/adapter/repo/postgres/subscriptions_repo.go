package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/careerforge/ai-gateway/internal/domain"
)

// SubscriptionRepo resolves callers to subscription tiers.
type SubscriptionRepo struct{ Pool PgxPool }

// NewSubscriptionRepo constructs a SubscriptionRepo with the given pool.
func NewSubscriptionRepo(p PgxPool) *SubscriptionRepo { return &SubscriptionRepo{Pool: p} }

// TierFor returns the caller's tier. Users without a subscription row are
// on the free tier.
func (r *SubscriptionRepo) TierFor(ctx domain.Context, userID string) (domain.TierName, error) {
	tracer := otel.Tracer("repo.subscriptions")
	ctx, span := tracer.Start(ctx, "subscriptions.TierFor")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.sql.table", "subscriptions"),
	)
	var tier string
	q := `SELECT tier FROM subscriptions WHERE user_id=$1`
	if err := r.Pool.QueryRow(ctx, q, userID).Scan(&tier); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TierFree, nil
		}
		return "", fmt.Errorf("op=subscriptions.tier_for: %w", err)
	}
	return domain.TierName(tier), nil
}
