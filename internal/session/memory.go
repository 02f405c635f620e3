package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryStore is a single-process KV with expiry, for tests and local runs.
type MemoryStore struct {
	mu     sync.Mutex
	now    func() time.Time
	values map[string]memEntry
	hashes map[string]memHash

	// Err, when set, is returned by every operation (simulates an outage).
	Err error
}

type memEntry struct {
	raw     []byte
	expires time.Time
}

type memHash struct {
	fields  map[string]string
	expires time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now, values: map[string]memEntry{}, hashes: map[string]memHash{}}
}

// SetClock overrides the expiry clock.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryStore) live(e time.Time) bool {
	return e.IsZero() || m.now().Before(e)
}

func (m *MemoryStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

func (m *MemoryStore) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	e, ok := m.values[key]
	if !ok || !m.live(e.expires) {
		delete(m.values, key)
		return false, nil
	}
	return true, json.Unmarshal(e.raw, dst)
}

func (m *MemoryStore) SetJSON(_ context.Context, key string, v any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.values[key] = memEntry{raw: raw, expires: m.expiry(ttl)}
	return nil
}

func (m *MemoryStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	if e, ok := m.values[key]; ok && m.live(e.expires) {
		return false, nil
	}
	m.values[key] = memEntry{raw: []byte("1"), expires: m.expiry(ttl)}
	return true, nil
}

func (m *MemoryStore) HSetNX(_ context.Context, key, field, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	h, ok := m.hashes[key]
	if !ok || !m.live(h.expires) {
		h = memHash{fields: map[string]string{}}
	}
	_, exists := h.fields[field]
	if !exists {
		h.fields[field] = value
	}
	h.expires = m.expiry(ttl)
	m.hashes[key] = h
	return !exists, nil
}

func (m *MemoryStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := map[string]string{}
	h, ok := m.hashes[key]
	if !ok || !m.live(h.expires) {
		return out, nil
	}
	for k, v := range h.fields {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for _, k := range keys {
		delete(m.values, k)
		delete(m.hashes, k)
	}
	return nil
}
