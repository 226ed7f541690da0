package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"hemolink/internal/donor"
	"hemolink/internal/geo"
	"hemolink/internal/inventory"
	inventoryservice "hemolink/internal/inventory/service"
	"hemolink/internal/matching"
	"hemolink/internal/request"
	"hemolink/pkg/domain"
	dErrors "hemolink/pkg/domain-errors"
	"hemolink/pkg/requestcontext"
)

var origin = domain.Point{Lat: 23.7808, Lng: 90.4163}

type ServiceSuite struct {
	suite.Suite
	ctx      context.Context
	now      time.Time
	store    *request.InMemoryStore
	invStore *inventory.InMemoryStore
	ledger   *inventoryservice.Service
	svc      *Service
	bank     domain.BloodBankID
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)

	s.store = request.NewInMemoryStore()
	s.invStore = inventory.NewInMemoryStore()
	donorStore := donor.NewInMemoryStore()
	donorIndex := geo.NewIndex()
	bankIndex := geo.NewIndex()

	var err error
	s.ledger, err = inventoryservice.New(s.invStore, bankIndex,
		inventoryservice.WithHoldTTL(15*time.Minute))
	s.Require().NoError(err)

	engine := matching.NewEngine(matching.DefaultConfig,
		donorIndex, bankIndex, donorStore, s.invStore)

	s.svc, err = New(s.store, s.ledger, engine, WithRequestTTL(24*time.Hour))
	s.Require().NoError(err)

	// One active bank near the requester with O- stock.
	s.bank = domain.NewBloodBankID()
	s.Require().NoError(s.ledger.RegisterBank(s.ctx, &inventory.BloodBank{
		ID:       s.bank,
		Name:     "Central Blood Bank",
		Location: domain.Point{Lat: origin.Lat + 0.05, Lng: origin.Lng},
		Active:   true,
	}))
	_, err = s.ledger.Restock(s.ctx, s.bank, domain.GroupONeg, 10)
	s.Require().NoError(err)
}

func (s *ServiceSuite) newRequest() *request.BloodRequest {
	r := &request.BloodRequest{
		Hospital:   "Dhaka Medical",
		BloodGroup: domain.GroupONeg,
		Units:      2,
		Location:   origin,
	}
	s.Require().NoError(s.svc.Create(s.ctx, r))
	return r
}

func (s *ServiceSuite) available(group domain.BloodGroup) int {
	rec, _ := s.invStore.Record(s.bank, group)
	return rec.Available
}

func (s *ServiceSuite) TestCreateSetsDefaultsAndExpiry() {
	r := s.newRequest()

	s.False(r.ID.IsNil())
	s.Equal(request.StatusCreated, r.Status)
	s.Equal(request.UrgencyNormal, r.Urgency)
	s.Equal(s.now, r.CreatedAt)
	s.Equal(s.now.Add(24*time.Hour), r.ExpiresAt)
}

func (s *ServiceSuite) TestCreateRejectsInvalidInput() {
	err := s.svc.Create(s.ctx, &request.BloodRequest{BloodGroup: domain.GroupONeg, Units: 0})
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

	err = s.svc.Create(s.ctx, &request.BloodRequest{BloodGroup: domain.GroupUnknown, Units: 1})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *ServiceSuite) TestMatchMarksMatching() {
	r := s.newRequest()

	candidates, err := s.svc.Match(s.ctx, r.ID)
	s.Require().NoError(err)
	s.NotEmpty(candidates)

	got, err := s.svc.Get(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(request.StatusMatching, got.Status)
}

func (s *ServiceSuite) TestFullLifecycle() {
	r := s.newRequest()

	_, err := s.svc.Match(s.ctx, r.ID)
	s.Require().NoError(err)

	res, err := s.svc.Reserve(s.ctx, r.ID, s.bank, domain.GroupONeg, 2)
	s.Require().NoError(err)
	s.Equal(8, s.available(domain.GroupONeg))

	got, err := s.svc.Get(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(request.StatusReserved, got.Status)
	s.Require().NotNil(got.ReservationID)
	s.Equal(res.ID, *got.ReservationID)

	record, err := s.svc.Commit(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(r.ID, record.RequestID)
	s.Equal(s.bank, record.BankID)
	s.Equal(domain.GroupONeg, record.BloodGroup)
	s.Equal(2, record.Units)
	s.Equal(s.now, record.FulfilledAt)

	got, err = s.svc.Get(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(request.StatusFulfilled, got.Status)

	// Committed units are consumed, not returned.
	s.Equal(8, s.available(domain.GroupONeg))
}

func (s *ServiceSuite) TestReserveInsufficientStockKeepsMatching() {
	r := s.newRequest()
	_, err := s.svc.Match(s.ctx, r.ID)
	s.Require().NoError(err)

	_, err = s.svc.Reserve(s.ctx, r.ID, s.bank, domain.GroupONeg, 11)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	got, err := s.svc.Get(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(request.StatusMatching, got.Status)
	s.Nil(got.ReservationID)
	s.Equal(10, s.available(domain.GroupONeg))
}

func (s *ServiceSuite) TestReserveRequiresMatchingState() {
	r := s.newRequest()

	_, err := s.svc.Reserve(s.ctx, r.ID, s.bank, domain.GroupONeg, 1)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func (s *ServiceSuite) TestReserveRejectsIncompatibleGroup() {
	r := s.newRequest() // O- recipient
	_, err := s.svc.Match(s.ctx, r.ID)
	s.Require().NoError(err)

	_, err = s.svc.Reserve(s.ctx, r.ID, s.bank, domain.GroupAPos, 1)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *ServiceSuite) TestCommitRequiresReservedState() {
	r := s.newRequest()

	_, err := s.svc.Commit(s.ctx, r.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func (s *ServiceSuite) TestReleaseReturnsToMatchingAndRestoresStock() {
	r := s.newRequest()
	_, err := s.svc.Match(s.ctx, r.ID)
	s.Require().NoError(err)
	_, err = s.svc.Reserve(s.ctx, r.ID, s.bank, domain.GroupONeg, 2)
	s.Require().NoError(err)
	s.Equal(8, s.available(domain.GroupONeg))

	s.Require().NoError(s.svc.Release(s.ctx, r.ID))

	got, err := s.svc.Get(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(request.StatusMatching, got.Status)
	s.Nil(got.ReservationID)
	s.Equal(10, s.available(domain.GroupONeg))
}

func (s *ServiceSuite) TestCancelReleasesHold() {
	r := s.newRequest()
	_, err := s.svc.Match(s.ctx, r.ID)
	s.Require().NoError(err)
	_, err = s.svc.Reserve(s.ctx, r.ID, s.bank, domain.GroupONeg, 3)
	s.Require().NoError(err)

	s.Require().NoError(s.svc.Cancel(s.ctx, r.ID))

	got, err := s.svc.Get(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(request.StatusCancelled, got.Status)
	s.Equal(10, s.available(domain.GroupONeg))
}

func (s *ServiceSuite) TestCancelTerminalFails() {
	r := s.newRequest()
	s.Require().NoError(s.svc.Cancel(s.ctx, r.ID))

	err := s.svc.Cancel(s.ctx, r.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func (s *ServiceSuite) TestExpireDueReleasesReservation() {
	r := s.newRequest()
	_, err := s.svc.Match(s.ctx, r.ID)
	s.Require().NoError(err)
	_, err = s.svc.Reserve(s.ctx, r.ID, s.bank, domain.GroupONeg, 4)
	s.Require().NoError(err)
	s.Equal(6, s.available(domain.GroupONeg))

	// Jump past the request TTL.
	later := requestcontext.WithTime(context.Background(), s.now.Add(25*time.Hour))
	expired, err := s.svc.ExpireDue(later, s.now.Add(25*time.Hour))
	s.Require().NoError(err)
	s.Equal(1, expired)

	got, err := s.svc.Get(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(request.StatusExpired, got.Status)
	s.Equal(10, s.available(domain.GroupONeg))
}

func (s *ServiceSuite) TestExpireDueSkipsFulfilled() {
	r := s.newRequest()
	_, err := s.svc.Match(s.ctx, r.ID)
	s.Require().NoError(err)
	_, err = s.svc.Reserve(s.ctx, r.ID, s.bank, domain.GroupONeg, 2)
	s.Require().NoError(err)
	_, err = s.svc.Commit(s.ctx, r.ID)
	s.Require().NoError(err)

	later := requestcontext.WithTime(context.Background(), s.now.Add(25*time.Hour))
	expired, err := s.svc.ExpireDue(later, s.now.Add(25*time.Hour))
	s.Require().NoError(err)
	s.Zero(expired)
}

func (s *ServiceSuite) TestOnReservationExpiredReturnsToMatching() {
	r := s.newRequest()
	_, err := s.svc.Match(s.ctx, r.ID)
	s.Require().NoError(err)
	res, err := s.svc.Reserve(s.ctx, r.ID, s.bank, domain.GroupONeg, 2)
	s.Require().NoError(err)

	// The sweep released the hold on the ledger side already.
	_, err = s.ledger.Release(s.ctx, res.ID)
	s.Require().NoError(err)

	s.Require().NoError(s.svc.OnReservationExpired(s.ctx, r.ID, res.ID))

	got, err := s.svc.Get(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(request.StatusMatching, got.Status)
	s.Nil(got.ReservationID)
}

func (s *ServiceSuite) TestOnReservationExpiredIgnoresStaleHandle() {
	r := s.newRequest()
	_, err := s.svc.Match(s.ctx, r.ID)
	s.Require().NoError(err)
	_, err = s.svc.Reserve(s.ctx, r.ID, s.bank, domain.GroupONeg, 2)
	s.Require().NoError(err)

	// A handle the request never held changes nothing.
	s.Require().NoError(s.svc.OnReservationExpired(s.ctx, r.ID, domain.NewReservationID()))

	got, err := s.svc.Get(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(request.StatusReserved, got.Status)
}

func (s *ServiceSuite) TestGetUnknownRequest() {
	_, err := s.svc.Get(s.ctx, domain.NewRequestID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
