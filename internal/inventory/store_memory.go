package inventory

import (
	"context"
	"sync"
	"time"

	"hemolink/pkg/domain"
	"hemolink/pkg/platform/sentinel"
)

type invKey struct {
	bank  domain.BloodBankID
	group domain.BloodGroup
}

// lockedRecord pairs a ledger entry with its own mutex so concurrent
// reserves against different (bank, group) keys never contend.
type lockedRecord struct {
	mu  sync.Mutex
	rec InventoryRecord
}

// InMemoryStore implements the ledger over maps with per-key striped
// locking. Default store for development and unit tests; the concurrency
// contract is identical to the postgres and redis stores.
type InMemoryStore struct {
	mu      sync.RWMutex
	banks   map[domain.BloodBankID]*BloodBank
	records map[invKey]*lockedRecord

	resMu        sync.Mutex
	reservations map[domain.ReservationID]*Reservation
}

// DefaultCapacity applies to records created implicitly by Restock when no
// capacity was configured for the key.
const DefaultCapacity = 100

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		banks:        make(map[domain.BloodBankID]*BloodBank),
		records:      make(map[invKey]*lockedRecord),
		reservations: make(map[domain.ReservationID]*Reservation),
	}
}

func (s *InMemoryStore) GetBank(_ context.Context, id domain.BloodBankID) (*BloodBank, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.banks[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *InMemoryStore) SaveBank(_ context.Context, b *BloodBank) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *b
	s.banks[b.ID] = &cp
	return nil
}

func (s *InMemoryStore) ListBanks(_ context.Context) ([]*BloodBank, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*BloodBank, 0, len(s.banks))
	for _, b := range s.banks {
		cp := *b
		out = append(out, &cp)
	}
	return out, nil
}

// record returns the locked record for a key, creating it when create is
// set. Returns nil when the key is absent and create is false.
func (s *InMemoryStore) record(key invKey, create bool) *lockedRecord {
	s.mu.RLock()
	lr := s.records[key]
	s.mu.RUnlock()
	if lr != nil || !create {
		return lr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if lr = s.records[key]; lr == nil {
		lr = &lockedRecord{rec: InventoryRecord{
			BankID:   key.bank,
			Group:    key.group,
			Capacity: DefaultCapacity,
		}}
		s.records[key] = lr
	}
	return lr
}

func (s *InMemoryStore) Availability(_ context.Context, bankID domain.BloodBankID, groups []domain.BloodGroup) (map[domain.BloodGroup]int, error) {
	out := make(map[domain.BloodGroup]int, len(groups))
	for _, g := range groups {
		lr := s.record(invKey{bank: bankID, group: g}, false)
		if lr == nil {
			out[g] = 0
			continue
		}
		lr.mu.Lock()
		out[g] = lr.rec.Available
		lr.mu.Unlock()
	}
	return out, nil
}

func (s *InMemoryStore) Reserve(_ context.Context, res *Reservation) error {
	lr := s.record(invKey{bank: res.BankID, group: res.Group}, false)
	if lr == nil {
		return sentinel.ErrInsufficientStock
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()
	if lr.rec.Available < res.Units {
		return sentinel.ErrInsufficientStock
	}
	lr.rec.Available -= res.Units
	lr.rec.Reserved += res.Units

	cp := *res
	cp.State = StateHeld
	s.resMu.Lock()
	s.reservations[res.ID] = &cp
	s.resMu.Unlock()
	return nil
}

// takeHeld flips a held reservation to the given terminal state. The state
// check and flip happen under resMu so only one of two racing
// commit/release calls can win.
func (s *InMemoryStore) takeHeld(id domain.ReservationID, to ReservationState) (*Reservation, error) {
	s.resMu.Lock()
	defer s.resMu.Unlock()

	res, ok := s.reservations[id]
	if !ok || res.State != StateHeld {
		return nil, sentinel.ErrUnknownReservation
	}
	res.State = to
	cp := *res
	return &cp, nil
}

func (s *InMemoryStore) Commit(_ context.Context, id domain.ReservationID) (*Reservation, error) {
	res, err := s.takeHeld(id, StateCommitted)
	if err != nil {
		return nil, err
	}

	lr := s.record(invKey{bank: res.BankID, group: res.Group}, false)
	lr.mu.Lock()
	lr.rec.Reserved -= res.Units
	lr.mu.Unlock()
	return res, nil
}

func (s *InMemoryStore) Release(_ context.Context, id domain.ReservationID) (*Reservation, error) {
	res, err := s.takeHeld(id, StateReleased)
	if err != nil {
		return nil, err
	}

	lr := s.record(invKey{bank: res.BankID, group: res.Group}, false)
	lr.mu.Lock()
	lr.rec.Reserved -= res.Units
	lr.rec.Available += res.Units
	lr.mu.Unlock()
	return res, nil
}

func (s *InMemoryStore) Restock(_ context.Context, bankID domain.BloodBankID, group domain.BloodGroup, units int) (*InventoryRecord, error) {
	lr := s.record(invKey{bank: bankID, group: group}, true)

	lr.mu.Lock()
	defer lr.mu.Unlock()
	if lr.rec.Available+lr.rec.Reserved+units > lr.rec.Capacity {
		return nil, sentinel.ErrCapacityExceeded
	}
	lr.rec.Available += units
	cp := lr.rec
	return &cp, nil
}

func (s *InMemoryStore) SetCapacity(_ context.Context, bankID domain.BloodBankID, group domain.BloodGroup, capacity int) error {
	lr := s.record(invKey{bank: bankID, group: group}, true)

	lr.mu.Lock()
	defer lr.mu.Unlock()
	if lr.rec.Available+lr.rec.Reserved > capacity {
		return sentinel.ErrCapacityExceeded
	}
	lr.rec.Capacity = capacity
	return nil
}

func (s *InMemoryStore) GetReservation(_ context.Context, id domain.ReservationID) (*Reservation, error) {
	s.resMu.Lock()
	defer s.resMu.Unlock()

	res, ok := s.reservations[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *res
	return &cp, nil
}

func (s *InMemoryStore) ExpiredHeld(_ context.Context, asOf time.Time) ([]*Reservation, error) {
	s.resMu.Lock()
	defer s.resMu.Unlock()

	var out []*Reservation
	for _, res := range s.reservations {
		if res.State == StateHeld && !res.ExpiresAt.After(asOf) {
			cp := *res
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Record returns a copy of the ledger entry for a key; test helper.
func (s *InMemoryStore) Record(bankID domain.BloodBankID, group domain.BloodGroup) (InventoryRecord, bool) {
	lr := s.record(invKey{bank: bankID, group: group}, false)
	if lr == nil {
		return InventoryRecord{}, false
	}
	lr.mu.Lock()
	defer lr.mu.Unlock()
	return lr.rec, true
}
