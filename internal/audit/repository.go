package audit

import (
	"context"
	"database/sql"
	"fmt"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_events
			(id, business_id, type, actor_user_id, actor_role, ip_address, onboarding_id, call_sid, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.BusinessID, string(e.Type), e.ActorUserID, e.ActorRole, e.IPAddress,
		e.OnboardingID, e.CallSid, e.Message, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: append %s: %w", e.Type, err)
	}
	return nil
}
