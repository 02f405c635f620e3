package business

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var (
	ErrNotFound        = errors.New("business: not found")
	ErrInvalidArgument = errors.New("business: invalid argument")
)

// NOTE: This repository assumes the following tables exist:
// - businesses (agent config columns, faq/business_hours/config as JSONB)
// - phone_numbers (number -> business, status 'assigned', optional overrides)
// - knowledge_base (business_id, title, content, active)
// - users (owner phone via businesses.user_id)

// PostgresRepo reads business configuration and writes synthesized agent configs.
type PostgresRepo struct {
	db  *sql.DB
	log *slog.Logger
}

func NewPostgresRepo(db *sql.DB, log *slog.Logger) *PostgresRepo {
	if log == nil {
		log = slog.Default()
	}
	return &PostgresRepo{db: db, log: log}
}

const businessColumns = `
b.id, b.name, COALESCE(b.business_type, ''), COALESCE(b.tier, 'starter'), COALESCE(b.status, ''),
COALESCE(u.phone, ''),
COALESCE(b.greeting, ''), COALESCE(b.agent_personality, ''), COALESCE(b.after_hours_message, ''),
COALESCE(b.transfer_number, ''), COALESCE(b.restricted_info, ''),
COALESCE(b.faq::text, ''), COALESCE(b.business_hours::text, ''), COALESCE(b.config::text, '')`

// ResolveByNumber finds the business owning an assigned phone number, along
// with that number's overrides.
func (r *PostgresRepo) ResolveByNumber(ctx context.Context, number string) (Resolved, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return Resolved{}, ErrInvalidArgument
	}
	q := `
SELECT ` + businessColumns + `,
       p.id, p.number, COALESCE(p.label, ''), COALESCE(p.greeting, ''), COALESCE(p.agent_personality, '')
FROM businesses b
JOIN phone_numbers p ON p.business_id = b.id
LEFT JOIN users u ON u.id = b.user_id
WHERE p.number = $1 AND p.status = 'assigned'
LIMIT 1
`
	var (
		row rawBusiness
		n   NumberOverride
	)
	dest := append(row.dest(), &n.PhoneNumberID, &n.Number, &n.Label, &n.Greeting, &n.Personality)
	if err := r.db.QueryRowContext(ctx, q, number).Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Resolved{}, ErrNotFound
		}
		return Resolved{}, err
	}
	return Resolved{Business: r.decode(row), Number: n}, nil
}

// Get loads a business by id.
func (r *PostgresRepo) Get(ctx context.Context, id string) (Business, error) {
	if strings.TrimSpace(id) == "" {
		return Business{}, ErrInvalidArgument
	}
	q := `
SELECT ` + businessColumns + `
FROM businesses b
LEFT JOIN users u ON u.id = b.user_id
WHERE b.id = $1
`
	var row rawBusiness
	if err := r.db.QueryRowContext(ctx, q, id).Scan(row.dest()...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Business{}, ErrNotFound
		}
		return Business{}, err
	}
	return r.decode(row), nil
}

// NumberOverrideFor returns the overrides of a specific called number. A number
// without overrides yields a zero value, not an error.
func (r *PostgresRepo) NumberOverrideFor(ctx context.Context, number string) (NumberOverride, error) {
	const q = `
SELECT id, number, COALESCE(label, ''), COALESCE(greeting, ''), COALESCE(agent_personality, '')
FROM phone_numbers
WHERE number = $1
LIMIT 1
`
	var n NumberOverride
	err := r.db.QueryRowContext(ctx, q, number).Scan(&n.PhoneNumberID, &n.Number, &n.Label, &n.Greeting, &n.Personality)
	if errors.Is(err, sql.ErrNoRows) {
		return NumberOverride{}, nil
	}
	return n, err
}

// KnowledgeBase returns up to limit active documents, oldest first.
func (r *PostgresRepo) KnowledgeBase(ctx context.Context, businessID string, limit int) ([]KnowledgeDoc, error) {
	if limit <= 0 {
		limit = 5
	}
	const q = `
SELECT title, content
FROM knowledge_base
WHERE business_id = $1 AND active = TRUE
ORDER BY created_at ASC
LIMIT $2
`
	rows, err := r.db.QueryContext(ctx, q, businessID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []KnowledgeDoc
	for rows.Next() {
		var d KnowledgeDoc
		if err := rows.Scan(&d.Title, &d.Content); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ApplyAgentConfig overwrites the agent configuration and moves the business
// to ready_for_review.
func (r *PostgresRepo) ApplyAgentConfig(ctx context.Context, businessID string, cfg AgentConfig) error {
	faq, err := json.Marshal(nonNilFAQ(cfg.FAQ))
	if err != nil {
		return fmt.Errorf("business: encode faq: %w", err)
	}
	extra, err := json.Marshal(configExtras{Services: cfg.Services, SpecialInstructions: cfg.SpecialInstructions})
	if err != nil {
		return fmt.Errorf("business: encode config: %w", err)
	}
	const q = `
UPDATE businesses
SET greeting = $2,
    agent_personality = $3,
    after_hours_message = $4,
    transfer_number = $5,
    restricted_info = $6,
    faq = $7::jsonb,
    config = COALESCE(config, '{}'::jsonb) || $8::jsonb,
    status = $9,
    updated_at = now()
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q,
		businessID,
		cfg.Greeting,
		cfg.Personality,
		cfg.AfterHoursMessage,
		cfg.TransferNumber,
		cfg.RestrictedInfo,
		string(faq),
		string(extra),
		string(StatusReadyForReview),
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatus updates the business lifecycle status.
func (r *PostgresRepo) SetStatus(ctx context.Context, businessID string, status Status) error {
	const q = `UPDATE businesses SET status = $2, updated_at = now() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, businessID, string(status))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type configExtras struct {
	Services            string `json:"services,omitempty"`
	SpecialInstructions string `json:"special_instructions,omitempty"`
}

type rawBusiness struct {
	id, name, typ, tier, status, ownerPhone string
	greeting, personality, afterHours       string
	transfer, restricted                    string
	faq, hours, config                      string
}

func (r *rawBusiness) dest() []any {
	return []any{
		&r.id, &r.name, &r.typ, &r.tier, &r.status, &r.ownerPhone,
		&r.greeting, &r.personality, &r.afterHours,
		&r.transfer, &r.restricted,
		&r.faq, &r.hours, &r.config,
	}
}

// decode validates the loosely typed columns once, here. Malformed JSON is
// logged and treated as absent so a bad settings row never breaks a live call.
func (r *PostgresRepo) decode(row rawBusiness) Business {
	b := Business{
		ID:         row.id,
		Name:       row.name,
		Type:       row.typ,
		Tier:       Tier(row.tier),
		Status:     Status(row.status),
		OwnerPhone: row.ownerPhone,
		Agent: AgentConfig{
			Greeting:          row.greeting,
			Personality:       row.personality,
			AfterHoursMessage: row.afterHours,
			TransferNumber:    strings.TrimSpace(row.transfer),
			RestrictedInfo:    row.restricted,
		},
	}

	faq, err := ParseFAQ([]byte(row.faq))
	if err != nil {
		r.log.Warn("ignoring malformed faq", "business_id", row.id, "err", err)
	}
	b.Agent.FAQ = faq

	hours, err := ParseSchedule([]byte(row.hours))
	if err != nil {
		r.log.Warn("ignoring malformed business hours", "business_id", row.id, "err", err)
		hours = Schedule{}
	}
	b.Agent.Hours = hours

	if s := strings.TrimSpace(row.config); s != "" && s != "null" {
		var extra configExtras
		if err := json.Unmarshal([]byte(s), &extra); err != nil {
			r.log.Warn("ignoring malformed business config", "business_id", row.id, "err", err)
		}
		b.Agent.Services = extra.Services
		b.Agent.SpecialInstructions = extra.SpecialInstructions
	}
	return b
}

// ParseFAQ decodes a stored FAQ list, dropping entries without a question.
func ParseFAQ(raw []byte) ([]FAQ, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return nil, nil
	}
	var items []FAQ
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil, fmt.Errorf("business: invalid faq: %w", err)
	}
	out := items[:0]
	for _, it := range items {
		if strings.TrimSpace(it.Question) == "" {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

func nonNilFAQ(in []FAQ) []FAQ {
	if in == nil {
		return []FAQ{}
	}
	return in
}
