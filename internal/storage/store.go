package storage

import (
	"sync"

	"health-telemetry/internal/models"
)

// Store holds the latest accepted entry and a bounded, insertion-ordered
// history. It trusts its caller: entries are appended without re-validation.
type Store struct {
	mu      sync.RWMutex
	history *Ring[models.Entry]
	latest  *models.Entry
	onEvict func()
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithEvictHook registers fn to be called, under the write lock, each time
// an entry is evicted by capacity.
func WithEvictHook(fn func()) StoreOption {
	return func(s *Store) { s.onEvict = fn }
}

// NewStore creates an empty store. A capacity below 1 is treated as 1.
func NewStore(capacity int, opts ...StoreOption) *Store {
	s := &Store{history: NewRing[models.Entry](capacity)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append makes e the latest entry and adds it to history, evicting the
// oldest entry when history is at capacity.
func (s *Store) Append(e models.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.history.Push(e) && s.onEvict != nil {
		s.onEvict()
	}
	latest := e
	s.latest = &latest
}

// Latest returns the most recently appended entry. ok is false until the
// first append.
func (s *Store) Latest() (models.Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.latest == nil {
		return models.Entry{}, false
	}
	return *s.latest, true
}

// Recent returns the newest min(window, Len()) entries in arrival order.
// The slice is a copy and is never nil.
func (s *Store) Recent(window int) []models.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.history.Last(window)
}

// Snapshot reads latest and the recent window under one lock, so the two
// always agree.
func (s *Store) Snapshot(window int) models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := models.Snapshot{Recent: s.history.Last(window)}
	if s.latest != nil {
		latest := *s.latest
		snap.Latest = &latest
	}
	return snap
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Len()
}

func (s *Store) Cap() int {
	return s.history.Cap()
}
