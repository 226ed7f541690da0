//go:build integration

package inventory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"hemolink/internal/inventory"
	"hemolink/pkg/domain"
	"hemolink/pkg/platform/sentinel"
	"hemolink/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *inventory.PostgresStore
	bank     domain.BloodBankID
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = inventory.NewPostgresStore(s.postgres.DB)

	err := s.postgres.ApplySchema(context.Background(), s.store.Schema())
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	err := s.postgres.TruncateTables(ctx, "reservations", "inventory_records", "blood_banks")
	s.Require().NoError(err)

	s.bank = domain.NewBloodBankID()
	s.Require().NoError(s.store.SaveBank(ctx, &inventory.BloodBank{
		ID:       s.bank,
		Name:     "Central Blood Bank",
		Location: domain.Point{Lat: 23.78, Lng: 90.41},
		Active:   true,
	}))
	_, err = s.store.Restock(ctx, s.bank, domain.GroupONeg, 10)
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) reservation(units int) *inventory.Reservation {
	return &inventory.Reservation{
		ID:        domain.NewReservationID(),
		RequestID: domain.NewRequestID(),
		BankID:    s.bank,
		Group:     domain.GroupONeg,
		Units:     units,
		ExpiresAt: time.Now().Add(15 * time.Minute),
	}
}

func (s *PostgresStoreSuite) available() int {
	avail, err := s.store.Availability(context.Background(), s.bank, []domain.BloodGroup{domain.GroupONeg})
	s.Require().NoError(err)
	return avail[domain.GroupONeg]
}

func (s *PostgresStoreSuite) TestReserveCommitRelease() {
	ctx := context.Background()

	first := s.reservation(4)
	s.Require().NoError(s.store.Reserve(ctx, first))
	s.Equal(6, s.available())

	committed, err := s.store.Commit(ctx, first.ID)
	s.Require().NoError(err)
	s.Equal(inventory.StateCommitted, committed.State)
	s.Equal(6, s.available())

	second := s.reservation(3)
	s.Require().NoError(s.store.Reserve(ctx, second))
	s.Equal(3, s.available())

	released, err := s.store.Release(ctx, second.ID)
	s.Require().NoError(err)
	s.Equal(inventory.StateReleased, released.State)
	s.Equal(6, s.available())
}

func (s *PostgresStoreSuite) TestReserveInsufficientStock() {
	err := s.store.Reserve(context.Background(), s.reservation(11))
	s.Require().ErrorIs(err, sentinel.ErrInsufficientStock)
	s.Equal(10, s.available())
}

func (s *PostgresStoreSuite) TestReleaseAfterCommitFails() {
	ctx := context.Background()
	res := s.reservation(4)
	s.Require().NoError(s.store.Reserve(ctx, res))
	_, err := s.store.Commit(ctx, res.ID)
	s.Require().NoError(err)

	_, err = s.store.Release(ctx, res.ID)
	s.Require().ErrorIs(err, sentinel.ErrUnknownReservation)
	s.Equal(6, s.available())
}

// Row locks must serialize two racing reserves: one wins, one fails, and
// the counters never over-commit.
func (s *PostgresStoreSuite) TestConcurrentReserve() {
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.store.Reserve(ctx, s.reservation(6))
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			s.Require().ErrorIs(err, sentinel.ErrInsufficientStock)
		}
	}
	s.Equal(1, succeeded)
	s.Equal(4, s.available())
}

func (s *PostgresStoreSuite) TestRestockCapacity() {
	ctx := context.Background()
	s.Require().NoError(s.store.SetCapacity(ctx, s.bank, domain.GroupONeg, 12))

	_, err := s.store.Restock(ctx, s.bank, domain.GroupONeg, 5)
	s.Require().ErrorIs(err, sentinel.ErrCapacityExceeded)

	rec, err := s.store.Restock(ctx, s.bank, domain.GroupONeg, 2)
	s.Require().NoError(err)
	s.Equal(12, rec.Available)
}

func (s *PostgresStoreSuite) TestExpiredHeld() {
	ctx := context.Background()
	now := time.Now()

	stale := s.reservation(2)
	stale.ExpiresAt = now.Add(-time.Minute)
	fresh := s.reservation(2)
	fresh.ExpiresAt = now.Add(time.Hour)
	s.Require().NoError(s.store.Reserve(ctx, stale))
	s.Require().NoError(s.store.Reserve(ctx, fresh))

	expired, err := s.store.ExpiredHeld(ctx, now)
	s.Require().NoError(err)
	s.Require().Len(expired, 1)
	s.Equal(stale.ID, expired[0].ID)
}
