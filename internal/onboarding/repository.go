package onboarding

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"voicebot/internal/ai"
)

var (
	ErrNotFound        = errors.New("onboarding: not found")
	ErrInvalidArgument = errors.New("onboarding: invalid argument")
)

// NOTE: onboarding_calls stores questions_asked and extracted_data as JSONB.

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Create(ctx context.Context, businessID string, questions []ai.Question) (Interview, error) {
	if strings.TrimSpace(businessID) == "" || len(questions) == 0 {
		return Interview{}, ErrInvalidArgument
	}
	raw, err := json.Marshal(questions)
	if err != nil {
		return Interview{}, fmt.Errorf("onboarding: encode questions: %w", err)
	}
	const q = `
INSERT INTO onboarding_calls (business_id, questions_asked, extracted_data, status)
VALUES ($1, $2::jsonb, '{}'::jsonb, 'pending')
RETURNING id, created_at
`
	iv := Interview{BusinessID: businessID, Status: StatusPending, Questions: questions, Answers: map[string]string{}}
	if err := r.db.QueryRowContext(ctx, q, businessID, string(raw)).Scan(&iv.ID, &iv.CreatedAt); err != nil {
		return Interview{}, err
	}
	return iv, nil
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (Interview, error) {
	const q = `
SELECT id, business_id, COALESCE(provider_call_sid, ''), status,
       COALESCE(questions_asked::text, ''), COALESCE(extracted_data::text, ''), created_at, completed_at
FROM onboarding_calls
WHERE id = $1
`
	var (
		iv                   Interview
		questions, extracted string
		completed            sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&iv.ID, &iv.BusinessID, &iv.ProviderCallSID, &iv.Status, &questions, &extracted, &iv.CreatedAt, &completed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Interview{}, ErrNotFound
	}
	if err != nil {
		return Interview{}, err
	}
	if completed.Valid {
		t := completed.Time
		iv.CompletedAt = &t
	}
	if iv.Questions, err = decodeQuestions(questions); err != nil {
		return Interview{}, err
	}
	if iv.Answers, err = decodeAnswers(extracted); err != nil {
		return Interview{}, err
	}
	return iv, nil
}

// MarkInProgress attaches the outbound call to a pending interview.
func (r *PostgresRepo) MarkInProgress(ctx context.Context, id, callSid string) error {
	const q = `
UPDATE onboarding_calls
SET provider_call_sid = $2, status = 'in_progress'
WHERE id = $1 AND status = 'pending'
`
	res, err := r.db.ExecContext(ctx, q, id, callSid)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordAnswer merges one answer unless the field already has one.
func (r *PostgresRepo) RecordAnswer(ctx context.Context, id, field, answer string) (bool, error) {
	if field == "" {
		return false, ErrInvalidArgument
	}
	const q = `
UPDATE onboarding_calls
SET extracted_data = COALESCE(extracted_data, '{}'::jsonb) || jsonb_build_object($2::text, $3::text)
WHERE id = $1 AND status <> 'completed' AND NOT (COALESCE(extracted_data, '{}'::jsonb) ? $2)
`
	res, err := r.db.ExecContext(ctx, q, id, field, answer)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Complete closes the interview once and returns the durable answers. ok is
// false when another worker already completed it.
func (r *PostgresRepo) Complete(ctx context.Context, id string, at time.Time) (Interview, bool, error) {
	const q = `
UPDATE onboarding_calls
SET status = 'completed', completed_at = $2
WHERE id = $1 AND status <> 'completed'
RETURNING business_id, COALESCE(provider_call_sid, ''), COALESCE(questions_asked::text, ''), COALESCE(extracted_data::text, '')
`
	iv := Interview{ID: id, Status: StatusCompleted, CompletedAt: &at}
	var questions, extracted string
	err := r.db.QueryRowContext(ctx, q, id, at).Scan(&iv.BusinessID, &iv.ProviderCallSID, &questions, &extracted)
	if errors.Is(err, sql.ErrNoRows) {
		return Interview{}, false, nil
	}
	if err != nil {
		return Interview{}, false, err
	}
	if iv.Questions, err = decodeQuestions(questions); err != nil {
		return Interview{}, false, err
	}
	if iv.Answers, err = decodeAnswers(extracted); err != nil {
		return Interview{}, false, err
	}
	return iv, true, nil
}

func decodeQuestions(raw string) ([]ai.Question, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var out []ai.Question
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("onboarding: decode questions: %w", err)
	}
	return out, nil
}

func decodeAnswers(raw string) (map[string]string, error) {
	out := map[string]string{}
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return out, nil
	}
	var loose map[string]any
	if err := json.Unmarshal([]byte(raw), &loose); err != nil {
		return nil, fmt.Errorf("onboarding: decode answers: %w", err)
	}
	for k, v := range loose {
		switch t := v.(type) {
		case string:
			out[k] = t
		case nil:
		default:
			b, _ := json.Marshal(t)
			out[k] = string(b)
		}
	}
	return out, nil
}
