package audit

import (
	"context"
	"sync"
)

// MemoryRepo keeps audit events in arrival order. Err, when set, fails every
// Append so callers can be checked for treating the audit trail as
// best-effort.
type MemoryRepo struct {
	mu     sync.Mutex
	events []Event

	Err error
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of everything appended.
func (r *MemoryRepo) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// ForBusiness returns one tenant's events, oldest first.
func (r *MemoryRepo) ForBusiness(businessID string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.BusinessID == businessID {
			out = append(out, e)
		}
	}
	return out
}
