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

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *inventory.RedisStore
	bank  domain.BloodBankID
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.store = inventory.NewRedisStore(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.redis.FlushAll(ctx))

	s.bank = domain.NewBloodBankID()
	s.Require().NoError(s.store.SaveBank(ctx, &inventory.BloodBank{
		ID:       s.bank,
		Name:     "Central Blood Bank",
		Location: domain.Point{Lat: 23.78, Lng: 90.41},
		Active:   true,
	}))
	_, err := s.store.Restock(ctx, s.bank, domain.GroupONeg, 10)
	s.Require().NoError(err)
}

func (s *RedisStoreSuite) reservation(units int) *inventory.Reservation {
	return &inventory.Reservation{
		ID:        domain.NewReservationID(),
		RequestID: domain.NewRequestID(),
		BankID:    s.bank,
		Group:     domain.GroupONeg,
		Units:     units,
		ExpiresAt: time.Now().Add(15 * time.Minute),
	}
}

func (s *RedisStoreSuite) available() int {
	avail, err := s.store.Availability(context.Background(), s.bank, []domain.BloodGroup{domain.GroupONeg})
	s.Require().NoError(err)
	return avail[domain.GroupONeg]
}

func (s *RedisStoreSuite) TestBankRoundTrip() {
	ctx := context.Background()

	got, err := s.store.GetBank(ctx, s.bank)
	s.Require().NoError(err)
	s.Equal("Central Blood Bank", got.Name)
	s.True(got.Active)

	banks, err := s.store.ListBanks(ctx)
	s.Require().NoError(err)
	s.Len(banks, 1)

	_, err = s.store.GetBank(ctx, domain.NewBloodBankID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestReserveCommitRelease() {
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
	released, err := s.store.Release(ctx, second.ID)
	s.Require().NoError(err)
	s.Equal(inventory.StateReleased, released.State)
	s.Equal(6, s.available())
}

func (s *RedisStoreSuite) TestReserveInsufficientStock() {
	err := s.store.Reserve(context.Background(), s.reservation(11))
	s.Require().ErrorIs(err, sentinel.ErrInsufficientStock)
	s.Equal(10, s.available())
}

func (s *RedisStoreSuite) TestDoubleFinishFails() {
	ctx := context.Background()
	res := s.reservation(4)
	s.Require().NoError(s.store.Reserve(ctx, res))

	_, err := s.store.Commit(ctx, res.ID)
	s.Require().NoError(err)

	_, err = s.store.Release(ctx, res.ID)
	s.Require().ErrorIs(err, sentinel.ErrUnknownReservation)
	_, err = s.store.Commit(ctx, res.ID)
	s.Require().ErrorIs(err, sentinel.ErrUnknownReservation)
}

// The Lua script makes check-and-decrement a single Redis command, so two
// racing reserves cannot jointly over-commit.
func (s *RedisStoreSuite) TestConcurrentReserve() {
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

func (s *RedisStoreSuite) TestRestockCapacity() {
	ctx := context.Background()
	s.Require().NoError(s.store.SetCapacity(ctx, s.bank, domain.GroupONeg, 12))

	_, err := s.store.Restock(ctx, s.bank, domain.GroupONeg, 5)
	s.Require().ErrorIs(err, sentinel.ErrCapacityExceeded)
}

func (s *RedisStoreSuite) TestExpiredHeld() {
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
