package donor

import (
	"context"
	"sync"

	"hemolink/pkg/domain"
	"hemolink/pkg/platform/sentinel"
)

// InMemoryStore keeps donor profiles in a map. Default store for
// development and unit tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	donors map[domain.DonorID]*Profile
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		donors: make(map[domain.DonorID]*Profile),
	}
}

func (s *InMemoryStore) Get(_ context.Context, id domain.DonorID) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.donors[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *InMemoryStore) Save(_ context.Context, p *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	s.donors[p.ID] = &cp
	return nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Profile, 0, len(s.donors))
	for _, p := range s.donors {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}
