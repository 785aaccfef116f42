package memory

import (
	"context"
	"sync"

	"github.com/PabloGalante/farum-voice/internal/domain"
)

// ProfileStore is a simple in-memory implementation of domain.ProfileStore.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[domain.UserID]*domain.Profile
}

func NewProfileStore() *ProfileStore {
	return &ProfileStore{
		profiles: make(map[domain.UserID]*domain.Profile),
	}
}

func (s *ProfileStore) LoadProfile(_ context.Context, userID domain.UserID) (*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (s *ProfileStore) SaveProfile(_ context.Context, userID domain.UserID, profile *domain.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profiles[userID] = profile.Clone()
	return nil
}

func (s *ProfileStore) DeleteProfile(_ context.Context, userID domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.profiles, userID)
	return nil
}
