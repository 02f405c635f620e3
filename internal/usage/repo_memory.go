package usage

import (
	"context"
	"sync"
)

// MemoryRepo mirrors PostgresRepo for tests.
type MemoryRepo struct {
	mu      sync.Mutex
	records map[string]*Record

	Err error
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{records: map[string]*Record{}}
}

func (m *MemoryRepo) Accrue(_ context.Context, businessID, month string, minutes float64, limit int) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return Record{}, m.Err
	}
	if businessID == "" || month == "" || minutes < 0 || limit < 0 {
		return Record{}, ErrInvalidArgument
	}
	rec, ok := m.records[businessID+"|"+month]
	if !ok {
		rec = &Record{BusinessID: businessID, Month: month}
		m.records[businessID+"|"+month] = rec
	}
	rec.MinutesUsed = RoundTotal(rec.MinutesUsed + minutes)
	if limit > 0 {
		rec.MinutesLimit = limit
	}
	return *rec, nil
}

// Seed stores a record as-is.
func (m *MemoryRepo) Seed(rec Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := rec
	m.records[rec.BusinessID+"|"+rec.Month] = &cp
}

func (m *MemoryRepo) Get(_ context.Context, businessID, month string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[businessID+"|"+month]
	if !ok {
		return Record{}, ErrNotFound
	}
	return *rec, nil
}

func (m *MemoryRepo) ClaimAlert(_ context.Context, businessID, month string, threshold int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	rec, ok := m.records[businessID+"|"+month]
	if !ok {
		return false, nil
	}
	switch threshold {
	case 80:
		if rec.Alert80Sent {
			return false, nil
		}
		rec.Alert80Sent = true
	case 90:
		if rec.Alert90Sent {
			return false, nil
		}
		rec.Alert90Sent = true
	case 100:
		if rec.Alert100Sent {
			return false, nil
		}
		rec.Alert100Sent = true
	default:
		return false, ErrInvalidArgument
	}
	return true, nil
}
