//go:build integration

package request_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"hemolink/internal/request"
	"hemolink/pkg/domain"
	"hemolink/pkg/platform/sentinel"
	"hemolink/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *request.PostgresStore
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
	s.store = request.NewPostgresStore(s.postgres.DB)

	err := s.postgres.ApplySchema(context.Background(), s.store.Schema())
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "blood_requests")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) newRequest(status request.Status, expiresAt time.Time) *request.BloodRequest {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &request.BloodRequest{
		ID:         domain.NewRequestID(),
		Hospital:   "Dhaka Medical",
		BloodGroup: domain.GroupONeg,
		Units:      2,
		Location:   domain.Point{Lat: 23.78, Lng: 90.41},
		Urgency:    request.UrgencyUrgent,
		Status:     status,
		CreatedAt:  now,
		ExpiresAt:  expiresAt,
		UpdatedAt:  now,
	}
}

func (s *PostgresStoreSuite) TestSaveAndGetRoundTrip() {
	ctx := context.Background()
	r := s.newRequest(request.StatusReserved, time.Now().UTC().Add(time.Hour).Truncate(time.Microsecond))
	resID := domain.NewReservationID()
	r.ReservationID = &resID

	s.Require().NoError(s.store.Save(ctx, r))

	got, err := s.store.Get(ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(r.Hospital, got.Hospital)
	s.Equal(r.Status, got.Status)
	s.Equal(r.Urgency, got.Urgency)
	s.Require().NotNil(got.ReservationID)
	s.Equal(resID, *got.ReservationID)

	// Upsert replaces fields in place.
	got.Status = request.StatusFulfilled
	got.ReservationID = nil
	s.Require().NoError(s.store.Save(ctx, got))
	again, err := s.store.Get(ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(request.StatusFulfilled, again.Status)
	s.Nil(again.ReservationID)
}

func (s *PostgresStoreSuite) TestGetUnknown() {
	_, err := s.store.Get(context.Background(), domain.NewRequestID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestDueForExpirySkipsTerminalStates() {
	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
	future := time.Now().UTC().Add(time.Hour).Truncate(time.Microsecond)

	due := s.newRequest(request.StatusReserved, past)
	fresh := s.newRequest(request.StatusMatching, future)
	done := s.newRequest(request.StatusFulfilled, past)
	s.Require().NoError(s.store.Save(ctx, due))
	s.Require().NoError(s.store.Save(ctx, fresh))
	s.Require().NoError(s.store.Save(ctx, done))

	got, err := s.store.DueForExpiry(ctx, time.Now().UTC())
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(due.ID, got[0].ID)
}
