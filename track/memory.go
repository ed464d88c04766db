package track

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/c360/takbridge/errors"
)

// MemoryStore is a mutex-guarded in-memory Store. It is the default backend
// and the one used by tests.
type MemoryStore struct {
	mu     sync.RWMutex
	tracks map[string]Track
	now    func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tracks: make(map[string]Track),
		now:    time.Now,
	}
}

// Upsert inserts or fully replaces the track keyed by its UID.
func (s *MemoryStore) Upsert(_ context.Context, t Track) error {
	if t.UID == "" {
		return errors.WrapInvalid(errors.ErrMissingUID, "MemoryStore", "Upsert", "uid validation")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = s.now().UTC()
	}
	if t.Meta == nil {
		t.Meta = map[string]string{}
	}
	s.tracks[t.UID] = t
	return nil
}

// List returns all tracks ordered by UID for deterministic iteration.
func (s *MemoryStore) List(_ context.Context) ([]Track, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Track, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out, nil
}

// Get returns the track with the given UID.
func (s *MemoryStore) Get(_ context.Context, uid string) (Track, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tracks[uid]
	if !ok {
		return Track{}, errors.ErrTrackNotFound
	}
	return t, nil
}

// Len returns the number of stored tracks.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tracks)
}
