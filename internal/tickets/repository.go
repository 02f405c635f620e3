package tickets

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidArgument = errors.New("tickets: invalid argument")

// NOTE: tickets carries UNIQUE (call_id) so a call yields at most one ticket
// even if finalization were ever replayed.

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// Create inserts the ticket for a call. created is false when the call
// already has one.
func (r *PostgresRepo) Create(ctx context.Context, t Ticket) (Ticket, bool, error) {
	if t.BusinessID == "" || t.CallID == "" {
		return Ticket{}, false, ErrInvalidArgument
	}
	t = t.Normalize()
	const q = `
INSERT INTO tickets (business_id, call_id, type, priority, subject, description, caller_name, caller_number, status)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)
ON CONFLICT (call_id) DO NOTHING
RETURNING id, created_at
`
	err := r.db.QueryRowContext(ctx, q,
		t.BusinessID,
		t.CallID,
		t.Type,
		string(t.Priority),
		t.Subject,
		t.Description,
		t.CallerName,
		t.CallerNumber,
		string(t.Status),
	).Scan(&t.ID, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Ticket{}, false, nil
	}
	if err != nil {
		return Ticket{}, false, err
	}
	return t, true, nil
}

// MemoryRepo is an in-memory ticket store for tests.
type MemoryRepo struct {
	mu      sync.Mutex
	Tickets []Ticket
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (m *MemoryRepo) Create(_ context.Context, t Ticket) (Ticket, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.BusinessID == "" || t.CallID == "" {
		return Ticket{}, false, ErrInvalidArgument
	}
	for _, existing := range m.Tickets {
		if existing.CallID == t.CallID {
			return Ticket{}, false, nil
		}
	}
	t = t.Normalize()
	t.ID = uuid.NewString()
	t.CreatedAt = time.Now().UTC()
	m.Tickets = append(m.Tickets, t)
	return t, true, nil
}

func (m *MemoryRepo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Tickets)
}
