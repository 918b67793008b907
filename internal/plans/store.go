package plans

import (
	"context"
	"sync"
	"time"
)

// Store is the keyed TTL storage behind a CachingResolver.
type Store interface {
	Get(ctx context.Context, patientID string) (planID string, ok bool, err error)
	Set(ctx context.Context, patientID, planID string, ttl time.Duration) error
	Delete(ctx context.Context, patientID string) error
	Clear(ctx context.Context) error
}

type memoryEntry struct {
	planID    string
	expiresAt time.Time
}

// MemoryStore is the default in-process store. The clock is injectable
// so tests control expiry.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore builds an empty in-process store. A nil now falls back
// to time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     now,
	}
}

func (s *MemoryStore) Get(_ context.Context, patientID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[patientID]
	if !ok {
		return "", false, nil
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, patientID)
		return "", false, nil
	}
	return e.planID, true, nil
}

func (s *MemoryStore) Set(_ context.Context, patientID, planID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[patientID] = memoryEntry{
		planID:    planID,
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, patientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, patientID)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]memoryEntry)
	return nil
}
