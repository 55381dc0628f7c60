package storage

import (
	"context"
	"sync"

	"mercator-hq/agentgov/pkg/audit"
)

// MemoryStore implements audit.Store in memory. It is intended for tests and
// can be told to fail writes to exercise the recorder's retry path.
type MemoryStore struct {
	events map[string]*audit.Event
	order  []string
	mu     sync.RWMutex

	failErr   error
	failCount int // remaining failures; -1 fails until cleared
	saves     int
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events: make(map[string]*audit.Event),
	}
}

// FailWrites makes the next n Save calls fail with err. A negative n fails
// every Save until FailWrites(0, nil) is called.
func (s *MemoryStore) FailWrites(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		err = audit.ErrStoreUnavailable
	}
	s.failErr = err
	s.failCount = n
}

// Saves returns the number of Save calls, failed or not.
func (s *MemoryStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// Save stores a copy of the event.
func (s *MemoryStore) Save(ctx context.Context, event *audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.saves++
	if s.failCount != 0 {
		if s.failCount > 0 {
			s.failCount--
		}
		return audit.NewStorageError("memory", "save", s.failErr)
	}

	if _, exists := s.events[event.EventID]; exists {
		return nil
	}
	s.events[event.EventID] = event.Clone()
	s.order = append(s.order, event.EventID)
	return nil
}

// Query returns events matching the filter.
func (s *MemoryStore) Query(ctx context.Context, filter *audit.Filter) ([]*audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return filter.Apply(s.snapshotLocked()), nil
}

// Count returns the number of matching events.
func (s *MemoryStore) Count(ctx context.Context, filter *audit.Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, id := range s.order {
		if filter.Matches(s.events[id]) {
			n++
		}
	}
	return n, nil
}

// Clear deletes every event.
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = make(map[string]*audit.Event)
	s.order = nil
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) snapshotLocked() []*audit.Event {
	out := make([]*audit.Event, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.events[id])
	}
	return out
}
