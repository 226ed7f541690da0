package request

import (
	"context"
	"sync"
	"time"

	"hemolink/pkg/domain"
	"hemolink/pkg/platform/sentinel"
)

// InMemoryStore keeps requests in a map. Default store for development and
// unit tests.
type InMemoryStore struct {
	mu       sync.RWMutex
	requests map[domain.RequestID]*BloodRequest
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{requests: make(map[domain.RequestID]*BloodRequest)}
}

func (s *InMemoryStore) Get(_ context.Context, id domain.RequestID) (*BloodRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.requests[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *InMemoryStore) Save(_ context.Context, r *BloodRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	s.requests[r.ID] = &cp
	return nil
}

func (s *InMemoryStore) DueForExpiry(_ context.Context, asOf time.Time) ([]*BloodRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*BloodRequest
	for _, r := range s.requests {
		if !r.Status.Terminal() && !r.ExpiresAt.After(asOf) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}
