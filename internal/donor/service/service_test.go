package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"hemolink/internal/donor"
	"hemolink/internal/donor/service"
	"hemolink/internal/geo"
	"hemolink/pkg/domain"
	dErrors "hemolink/pkg/domain-errors"
)

type ServiceSuite struct {
	suite.Suite
	svc   *service.Service
	index *geo.Index
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.index = geo.NewIndex()
	svc, err := service.New(donor.NewInMemoryStore(), s.index)
	s.Require().NoError(err)
	s.svc = svc
}

func (s *ServiceSuite) profile(active bool) *donor.Profile {
	dob := time.Date(1990, 3, 1, 0, 0, 0, 0, time.UTC)
	weight := 70.0
	return &donor.Profile{
		Name:        "Rahim",
		BloodGroup:  domain.GroupOPos,
		DateOfBirth: &dob,
		WeightKg:    &weight,
		Location:    domain.Point{Lat: 23.78, Lng: 90.41},
		Active:      active,
	}
}

func (s *ServiceSuite) TestRegisterAssignsIDAndIndexes() {
	ctx := context.Background()
	p := s.profile(true)

	s.Require().NoError(s.svc.Register(ctx, p))
	s.False(p.ID.IsNil())

	got, err := s.svc.Get(ctx, p.ID)
	s.Require().NoError(err)
	s.Equal("Rahim", got.Name)

	near := s.index.QueryRadius(p.Location, 1000, 10)
	s.Require().Len(near, 1)
	s.Equal(p.ID.String(), near[0].ID)
}

func (s *ServiceSuite) TestRegisterInactiveRemovesFromIndex() {
	ctx := context.Background()
	p := s.profile(true)
	s.Require().NoError(s.svc.Register(ctx, p))

	p.Active = false
	s.Require().NoError(s.svc.Register(ctx, p))

	s.Empty(s.index.QueryRadius(p.Location, 1000, 10))
}

func (s *ServiceSuite) TestGetUnknown() {
	_, err := s.svc.Get(context.Background(), domain.NewDonorID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestEvaluateEligibility() {
	ctx := context.Background()
	p := s.profile(true)
	last := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	p.LastDonation = &last
	s.Require().NoError(s.svc.Register(ctx, p))

	res, err := s.svc.EvaluateEligibility(ctx, p.ID, time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC))
	s.Require().NoError(err)
	s.False(res.Eligible)
	s.Contains(res.Violations, donor.ViolationDonationInterval)

	res, err = s.svc.EvaluateEligibility(ctx, p.ID, time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC))
	s.Require().NoError(err)
	s.True(res.Eligible)
}

func (s *ServiceSuite) TestWarmIndex() {
	ctx := context.Background()
	store := donor.NewInMemoryStore()
	active := s.profile(true)
	active.ID = domain.NewDonorID()
	inactive := s.profile(false)
	inactive.ID = domain.NewDonorID()
	s.Require().NoError(store.Save(ctx, active))
	s.Require().NoError(store.Save(ctx, inactive))

	index := geo.NewIndex()
	svc, err := service.New(store, index)
	s.Require().NoError(err)
	s.Require().NoError(svc.WarmIndex(ctx))

	near := index.QueryRadius(active.Location, 1000, 10)
	s.Require().Len(near, 1)
	s.Equal(active.ID.String(), near[0].ID)
}
