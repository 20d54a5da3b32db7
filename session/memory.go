package session

import (
	"context"
	"sync"
	"time"

	"github.com/korjavin/commitquizbot/models"
)

type memEntry struct {
	q       models.ContributionQuestion
	expires time.Time
}

// MemoryStore keeps questions in process memory. Expired entries are dropped
// lazily on access.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[int64]memEntry
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, now: time.Now, entries: make(map[int64]memEntry)}
}

func (s *MemoryStore) Put(_ context.Context, userID int64, q models.ContributionQuestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[userID] = memEntry{q: q, expires: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, userID int64) (models.ContributionQuestion, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[userID]
	if !ok {
		return models.ContributionQuestion{}, false, nil
	}
	if !s.now().Before(e.expires) {
		delete(s.entries, userID)
		return models.ContributionQuestion{}, false, nil
	}
	return e.q, true, nil
}

func (s *MemoryStore) Delete(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, userID)
	return nil
}
