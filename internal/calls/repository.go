package calls

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound        = errors.New("calls: not found")
	ErrInvalidArgument = errors.New("calls: invalid argument")
)

// NOTE: This repository assumes the calls table has:
// - UNIQUE (provider_call_sid)
// - last_turn INT NOT NULL DEFAULT -1
// - finalized_at TIMESTAMPTZ NULL
// - conversation_log / action_items as JSONB

// PostgresRepo is the durable store for calls. Every state change is a single
// conditional statement so concurrent webhook workers cannot regress a call.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// Create inserts the call unless one already exists for the provider sid.
// created is false for a duplicate delivery of the same inbound call.
func (r *PostgresRepo) Create(ctx context.Context, c Call) (Call, bool, error) {
	if c.ProviderCallSID == "" || c.BusinessID == "" {
		return Call{}, false, ErrInvalidArgument
	}
	if c.Direction == "" {
		c.Direction = DirectionInbound
	}
	const q = `
INSERT INTO calls (business_id, provider_call_sid, caller_number, called_number, direction, status, last_turn)
VALUES ($1, $2, $3, $4, $5, 'in_progress', -1)
ON CONFLICT (provider_call_sid) DO NOTHING
RETURNING id, created_at
`
	err := r.db.QueryRowContext(ctx, q,
		c.BusinessID,
		c.ProviderCallSID,
		c.CallerNumber,
		c.CalledNumber,
		string(c.Direction),
	).Scan(&c.ID, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Call{}, false, nil
	}
	if err != nil {
		return Call{}, false, err
	}
	c.Status = StatusInProgress
	c.LastTurn = -1
	return c, true, nil
}

// GetBySID loads a call by provider sid.
func (r *PostgresRepo) GetBySID(ctx context.Context, sid string) (Call, error) {
	const q = `
SELECT id, provider_call_sid, business_id, caller_number, called_number, direction, status,
       COALESCE(duration_seconds, 0), COALESCE(recording_url, ''), COALESCE(conversation_log::text, ''),
       last_turn, created_at
FROM calls
WHERE provider_call_sid = $1
`
	var (
		c       Call
		convRaw string
	)
	err := r.db.QueryRowContext(ctx, q, sid).Scan(
		&c.ID, &c.ProviderCallSID, &c.BusinessID, &c.CallerNumber, &c.CalledNumber, &c.Direction, &c.Status,
		&c.DurationSeconds, &c.RecordingURL, &convRaw,
		&c.LastTurn, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, ErrNotFound
		}
		return Call{}, err
	}
	if c.ConversationLog, err = decodeLog(convRaw); err != nil {
		return Call{}, err
	}
	return c, nil
}

// ConversationLog returns the durable transcript mirror.
func (r *PostgresRepo) ConversationLog(ctx context.Context, sid string) ([]Entry, error) {
	const q = `SELECT COALESCE(conversation_log::text, '') FROM calls WHERE provider_call_sid = $1`
	var raw string
	if err := r.db.QueryRowContext(ctx, q, sid).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeLog(raw)
}

// MirrorConversation stores the transcript as of turn. A mirror carrying an
// older or equal turn never overwrites a newer one; written reports whether
// this call won.
func (r *PostgresRepo) MirrorConversation(ctx context.Context, sid string, turn int, log []Entry) (bool, error) {
	raw, err := json.Marshal(nonNilLog(log))
	if err != nil {
		return false, fmt.Errorf("calls: encode conversation log: %w", err)
	}
	const q = `
UPDATE calls
SET conversation_log = $2::jsonb, last_turn = $3
WHERE provider_call_sid = $1 AND last_turn < $3
`
	res, err := r.db.ExecContext(ctx, q, sid, string(raw), turn)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkVoicemail moves an in-progress call to voicemail.
func (r *PostgresRepo) MarkVoicemail(ctx context.Context, sid, recordingURL string) (bool, error) {
	const q = `
UPDATE calls
SET status = 'voicemail', recording_url = NULLIF($2, '')
WHERE provider_call_sid = $1 AND status = 'in_progress'
`
	res, err := r.db.ExecContext(ctx, q, sid, recordingURL)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Finalize records the terminal status and duration exactly once. An
// in-progress call takes status; a call already in voicemail keeps it. ok is
// false when the call was already finalized or is unknown, in which case the
// caller must not repeat any side effects.
func (r *PostgresRepo) Finalize(ctx context.Context, sid string, status Status, durationSeconds int, at time.Time) (Call, bool, error) {
	if !status.Terminal() {
		return Call{}, false, ErrInvalidArgument
	}
	const q = `
UPDATE calls
SET status = CASE WHEN status = 'in_progress' THEN $2 ELSE status END,
    duration_seconds = $3,
    completed_at = $4,
    finalized_at = $4
WHERE provider_call_sid = $1 AND finalized_at IS NULL
RETURNING id, business_id, caller_number, called_number, status,
          COALESCE(recording_url, ''), COALESCE(conversation_log::text, ''), created_at
`
	c := Call{ProviderCallSID: sid, DurationSeconds: durationSeconds}
	var convRaw string
	err := r.db.QueryRowContext(ctx, q, sid, string(status), durationSeconds, at).Scan(
		&c.ID, &c.BusinessID, &c.CallerNumber, &c.CalledNumber, &c.Status,
		&c.RecordingURL, &convRaw, &c.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Call{}, false, nil
	}
	if err != nil {
		return Call{}, false, err
	}
	if c.ConversationLog, err = decodeLog(convRaw); err != nil {
		return Call{}, false, err
	}
	c.CompletedAt = &at
	c.FinalizedAt = &at
	return c, true, nil
}

// SaveAnalysis writes the post-call enrichment and final transcript. It never
// touches status.
func (r *PostgresRepo) SaveAnalysis(ctx context.Context, callID string, a Analysis, log []Entry, recordingURL string) error {
	items, err := json.Marshal(nonNilStrings(a.ActionItems))
	if err != nil {
		return fmt.Errorf("calls: encode action items: %w", err)
	}
	conv, err := json.Marshal(nonNilLog(log))
	if err != nil {
		return fmt.Errorf("calls: encode conversation log: %w", err)
	}
	const q = `
UPDATE calls
SET transcript = $2, summary = $3, category = $4, sentiment = $5, caller_name = NULLIF($6, ''),
    caller_intent = $7, resolution = $8, action_items = $9::jsonb, conversation_log = $10::jsonb,
    recording_url = COALESCE(NULLIF($11, ''), recording_url)
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q,
		callID,
		a.Transcript,
		a.Summary,
		a.Category,
		a.Sentiment,
		a.CallerName,
		a.CallerIntent,
		a.Resolution,
		string(items),
		string(conv),
		recordingURL,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecentCompleted returns the latest completed calls from a caller to a
// business, newest first. Missed and voicemail calls are excluded.
func (r *PostgresRepo) RecentCompleted(ctx context.Context, businessID, callerNumber string, limit int) ([]HistoryItem, error) {
	if limit <= 0 {
		limit = 2
	}
	const q = `
SELECT created_at, COALESCE(summary, ''), COALESCE(category, ''), COALESCE(sentiment, ''),
       COALESCE(caller_name, ''), COALESCE(duration_seconds, 0)
FROM calls
WHERE business_id = $1 AND caller_number = $2 AND status = 'completed'
ORDER BY created_at DESC
LIMIT $3
`
	rows, err := r.db.QueryContext(ctx, q, businessID, callerNumber, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryItem
	for rows.Next() {
		var h HistoryItem
		if err := rows.Scan(&h.Date, &h.Summary, &h.Category, &h.Sentiment, &h.CallerName, &h.DurationSeconds); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ListLive returns in-progress calls of a business, newest first.
func (r *PostgresRepo) ListLive(ctx context.Context, businessID string) ([]Call, error) {
	const q = `
SELECT id, provider_call_sid, business_id, caller_number, called_number, direction, status,
       COALESCE(duration_seconds, 0), created_at
FROM calls
WHERE business_id = $1 AND status = 'in_progress'
ORDER BY created_at DESC
`
	return r.listSummaries(ctx, q, businessID)
}

// ListStale returns calls never finalized and created before cutoff.
func (r *PostgresRepo) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]Call, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT id, provider_call_sid, business_id, caller_number, called_number, direction, status,
       COALESCE(duration_seconds, 0), created_at
FROM calls
WHERE finalized_at IS NULL AND created_at < $1
ORDER BY created_at ASC
LIMIT $2
`
	return r.listSummaries(ctx, q, cutoff, limit)
}

// ListRange returns calls of a business created within [from, to).
func (r *PostgresRepo) ListRange(ctx context.Context, businessID string, from, to time.Time) ([]Call, error) {
	if strings.TrimSpace(businessID) == "" {
		return nil, ErrInvalidArgument
	}
	const q = `
SELECT id, provider_call_sid, business_id, caller_number, called_number, direction, status,
       COALESCE(duration_seconds, 0), COALESCE(recording_url, ''), COALESCE(category, ''),
       COALESCE(sentiment, ''), created_at
FROM calls
WHERE business_id = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, businessID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Call
	for rows.Next() {
		var c Call
		if err := rows.Scan(
			&c.ID, &c.ProviderCallSID, &c.BusinessID, &c.CallerNumber, &c.CalledNumber, &c.Direction, &c.Status,
			&c.DurationSeconds, &c.RecordingURL, &c.Category, &c.Sentiment, &c.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) listSummaries(ctx context.Context, q string, args ...any) ([]Call, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Call
	for rows.Next() {
		var c Call
		if err := rows.Scan(
			&c.ID, &c.ProviderCallSID, &c.BusinessID, &c.CallerNumber, &c.CalledNumber, &c.Direction, &c.Status,
			&c.DurationSeconds, &c.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func decodeLog(raw string) ([]Entry, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var out []Entry
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("calls: decode conversation log: %w", err)
	}
	return out, nil
}

func nonNilLog(in []Entry) []Entry {
	if in == nil {
		return []Entry{}
	}
	return in
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
