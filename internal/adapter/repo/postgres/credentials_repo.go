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

// CredentialRepo stores caller API keys encrypted at rest. Only
// ciphertext crosses this boundary; encryption lives in pkg/cryptox.
type CredentialRepo struct{ Pool PgxPool }

// NewCredentialRepo constructs a CredentialRepo with the given pool.
func NewCredentialRepo(p PgxPool) *CredentialRepo { return &CredentialRepo{Pool: p} }

// GetEncrypted returns the stored ciphertext for userID, or
// domain.ErrNotFound when the user has no stored credential.
func (r *CredentialRepo) GetEncrypted(ctx domain.Context, userID string) ([]byte, error) {
	tracer := otel.Tracer("repo.credentials")
	ctx, span := tracer.Start(ctx, "credentials.GetEncrypted")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.sql.table", "ai_credentials"),
	)
	var ct []byte
	q := `SELECT ciphertext FROM ai_credentials WHERE user_id=$1`
	if err := r.Pool.QueryRow(ctx, q, userID).Scan(&ct); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("op=credentials.get: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("op=credentials.get: %w", err)
	}
	return ct, nil
}

// PutEncrypted stores or replaces the ciphertext for userID.
func (r *CredentialRepo) PutEncrypted(ctx domain.Context, userID string, ciphertext []byte) error {
	tracer := otel.Tracer("repo.credentials")
	ctx, span := tracer.Start(ctx, "credentials.PutEncrypted")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.sql.table", "ai_credentials"),
	)
	q := `INSERT INTO ai_credentials (user_id, ciphertext, updated_at) VALUES ($1,$2,$3)
	      ON CONFLICT (user_id) DO UPDATE SET ciphertext = EXCLUDED.ciphertext, updated_at = EXCLUDED.updated_at`
	if _, err := r.Pool.Exec(ctx, q, userID, ciphertext, time.Now().UTC()); err != nil {
		return fmt.Errorf("op=credentials.put: %w", err)
	}
	return nil
}
