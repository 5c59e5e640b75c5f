package limiter

import (
	"context"
	"sync"
	"time"
)

type record struct {
	count int
	last  time.Time
}

// Memory is an in-process limiter. State is lost on restart.
type Memory struct {
	mu      sync.Mutex
	policy  Policy
	now     func() time.Time
	records map[string]record
}

// NewMemory constructs an in-process limiter. A nil clock means time.Now.
func NewMemory(p Policy, now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{policy: p.normalized(), now: now, records: map[string]record{}}
}

// Allow reports whether id is currently allowed; an elapsed window clears the record.
func (m *Memory) Allow(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return true, nil
	}
	now := m.now()
	if now.Sub(rec.last) >= m.policy.Window {
		delete(m.records, id)
		return true, nil
	}
	return !m.policy.locked(rec.count, rec.last, now), nil
}

// Failure increments the failure count for id.
func (m *Memory) Failure(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	rec := m.records[id]
	if !rec.last.IsZero() && now.Sub(rec.last) >= m.policy.Window {
		rec.count = 0
	}
	rec.count++
	rec.last = now
	m.records[id] = rec
	return nil
}

// Success removes the record for id.
func (m *Memory) Success(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

// Len returns the number of tracked identifiers.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
