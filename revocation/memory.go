package revocation

import (
	"context"
	"sync"
	"time"
)

type ledgerEntry struct {
	revoked    bool
	recordedAt time.Time
}

// Memory is an in-process RevocationGateway. It is only correct for a single
// process.
type Memory struct {
	mu      sync.Mutex
	entries map[string]ledgerEntry
	now     func() time.Time
}

// NewMemory returns an empty Memory gateway.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]ledgerEntry),
		now:     time.Now,
	}
}

func (m *Memory) Refresh(_ context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, ErrEmptyJTI
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, seen := m.entries[jti]; seen {
		return false, nil
	}
	m.entries[jti] = ledgerEntry{recordedAt: m.now()}
	return true, nil
}

func (m *Memory) Logout(_ context.Context, jti string) error {
	if jti == "" {
		return ErrEmptyJTI
	}

	m.mu.Lock()
	m.entries[jti] = ledgerEntry{revoked: true, recordedAt: m.now()}
	m.mu.Unlock()
	return nil
}

// Revoked reports whether jti was recorded by Logout.
func (m *Memory) Revoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[jti].revoked, nil
}

// Purge drops entries recorded before the cutoff.
func (m *Memory) Purge(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for jti, e := range m.entries {
		if e.recordedAt.Before(before) {
			delete(m.entries, jti)
			n++
		}
	}
	return n, nil
}
