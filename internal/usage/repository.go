package usage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

var (
	ErrNotFound        = errors.New("usage: not found")
	ErrInvalidArgument = errors.New("usage: invalid argument")
)

// NOTE: minutes_usage has PRIMARY KEY (business_id, month), minutes_used
// NUMERIC(10,2) and one boolean flag per alert threshold.

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// Accrue adds minutes to the month in one statement and returns the new
// totals. A positive limit refreshes the stored one from the current tier;
// zero leaves it alone.
func (r *PostgresRepo) Accrue(ctx context.Context, businessID, month string, minutes float64, limit int) (Record, error) {
	if strings.TrimSpace(businessID) == "" || month == "" || minutes < 0 || limit < 0 {
		return Record{}, ErrInvalidArgument
	}
	const q = `
INSERT INTO minutes_usage (business_id, month, minutes_used, minutes_limit)
VALUES ($1, $2, $3, $4)
ON CONFLICT (business_id, month) DO UPDATE
SET minutes_used = minutes_usage.minutes_used + EXCLUDED.minutes_used,
    minutes_limit = CASE WHEN EXCLUDED.minutes_limit > 0
                         THEN EXCLUDED.minutes_limit
                         ELSE minutes_usage.minutes_limit END,
    updated_at = now()
RETURNING minutes_used, minutes_limit, alert_80_sent, alert_90_sent, alert_100_sent
`
	rec := Record{BusinessID: businessID, Month: month}
	err := r.db.QueryRowContext(ctx, q, businessID, month, minutes, limit).Scan(
		&rec.MinutesUsed, &rec.MinutesLimit, &rec.Alert80Sent, &rec.Alert90Sent, &rec.Alert100Sent,
	)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Get reads a month; a month without calls is ErrNotFound.
func (r *PostgresRepo) Get(ctx context.Context, businessID, month string) (Record, error) {
	const q = `
SELECT minutes_used, minutes_limit, alert_80_sent, alert_90_sent, alert_100_sent
FROM minutes_usage
WHERE business_id = $1 AND month = $2
`
	rec := Record{BusinessID: businessID, Month: month}
	err := r.db.QueryRowContext(ctx, q, businessID, month).Scan(
		&rec.MinutesUsed, &rec.MinutesLimit, &rec.Alert80Sent, &rec.Alert90Sent, &rec.Alert100Sent,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// ClaimAlert flips one threshold flag. claimed is true for exactly one caller
// per (business, month, threshold).
func (r *PostgresRepo) ClaimAlert(ctx context.Context, businessID, month string, threshold int) (bool, error) {
	col, ok := alertColumn(threshold)
	if !ok {
		return false, ErrInvalidArgument
	}
	q := `UPDATE minutes_usage SET ` + col + ` = TRUE, updated_at = now()
WHERE business_id = $1 AND month = $2 AND NOT ` + col
	res, err := r.db.ExecContext(ctx, q, businessID, month)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
