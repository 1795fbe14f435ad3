package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	rec       Record
	expiresAt time.Time
}

// MemoryStore is an in-process [Registry] for single-instance deployments
// and tests. All operations serialize on one mutex.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

var _ Registry = (*MemoryStore)(nil)

// NewMemoryStore returns an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// WithClock replaces the clock used for expiry. It returns s for chaining.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

func (s *MemoryStore) Put(_ context.Context, userID string, rec *Record, ttl time.Duration) error {
	if err := validatePut(userID, rec, ttl); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[userID] = memoryEntry{rec: *rec, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, userID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.liveLocked(userID)
	if !ok {
		return nil, ErrNotFound
	}
	out := entry.rec
	return &out, nil
}

func (s *MemoryStore) CurrentToken(ctx context.Context, userID string) (string, error) {
	rec, err := s.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	return rec.AccessToken, nil
}

func (s *MemoryStore) Invalidate(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, userID)
	return nil
}

func (s *MemoryStore) Rotate(_ context.Context, userID string, expected [32]byte, next *Record, ttl time.Duration) error {
	if err := validatePut(userID, next, ttl); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.liveLocked(userID)
	if !ok {
		return ErrNotFound
	}
	if entry.rec.RefreshHash != expected {
		return ErrRefreshHashMismatch
	}
	s.entries[userID] = memoryEntry{rec: *next, expiresAt: s.now().Add(ttl)}
	return nil
}

// liveLocked returns the unexpired entry for userID, evicting it if stale.
// Caller must hold s.mu.
func (s *MemoryStore) liveLocked(userID string) (memoryEntry, bool) {
	entry, ok := s.entries[userID]
	if !ok {
		return memoryEntry{}, false
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.entries, userID)
		return memoryEntry{}, false
	}
	return entry, true
}
