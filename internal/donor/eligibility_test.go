package donor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"hemolink/pkg/domain"
	dErrors "hemolink/pkg/domain-errors"
)

type EligibilitySuite struct {
	suite.Suite
	asOf time.Time
}

func TestEligibilitySuite(t *testing.T) {
	suite.Run(t, new(EligibilitySuite))
}

func (s *EligibilitySuite) SetupTest() {
	s.asOf = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

// healthyDonor is eligible on every axis as of the suite clock.
func (s *EligibilitySuite) healthyDonor() *Profile {
	return &Profile{
		ID:          domain.NewDonorID(),
		Name:        "Test Donor",
		BloodGroup:  domain.GroupOPos,
		DateOfBirth: ptr(time.Date(1990, 3, 1, 0, 0, 0, 0, time.UTC)),
		WeightKg:    ptr(70.0),
		Active:      true,
		Verified:    true,
	}
}

func (s *EligibilitySuite) TestHealthyDonorEligible() {
	result, err := Evaluate(s.healthyDonor(), s.asOf)
	s.Require().NoError(err)
	s.True(result.Eligible)
	s.Empty(result.Violations)
	s.Nil(result.NextEligibleDate)
}

func (s *EligibilitySuite) TestUnderage() {
	p := s.healthyDonor()
	p.DateOfBirth = ptr(s.asOf.AddDate(-18, 0, 1))

	result, err := Evaluate(p, s.asOf)
	s.Require().NoError(err)
	s.False(result.Eligible)
	s.Contains(result.Violations, ViolationUnderage)
}

func (s *EligibilitySuite) TestEighteenthBirthdayIsEligible() {
	p := s.healthyDonor()
	p.DateOfBirth = ptr(s.asOf.AddDate(-18, 0, 0))

	result, err := Evaluate(p, s.asOf)
	s.Require().NoError(err)
	s.True(result.Eligible)
}

func (s *EligibilitySuite) TestOverAge() {
	p := s.healthyDonor()
	p.DateOfBirth = ptr(s.asOf.AddDate(-66, 0, 0))

	result, err := Evaluate(p, s.asOf)
	s.Require().NoError(err)
	s.False(result.Eligible)
	s.Contains(result.Violations, ViolationOverAge)
}

func (s *EligibilitySuite) TestSixtyFiveStillEligible() {
	p := s.healthyDonor()
	p.DateOfBirth = ptr(s.asOf.AddDate(-65, 0, 0))

	result, err := Evaluate(p, s.asOf)
	s.Require().NoError(err)
	s.True(result.Eligible)
}

func (s *EligibilitySuite) TestUnderweight() {
	p := s.healthyDonor()
	p.WeightKg = ptr(44.9)

	result, err := Evaluate(p, s.asOf)
	s.Require().NoError(err)
	s.False(result.Eligible)
	s.Contains(result.Violations, ViolationUnderweight)
}

func (s *EligibilitySuite) TestChronicCondition() {
	p := s.healthyDonor()
	p.ChronicCondition = true

	result, err := Evaluate(p, s.asOf)
	s.Require().NoError(err)
	s.False(result.Eligible)
	s.Contains(result.Violations, ViolationChronicCondition)
}

func (s *EligibilitySuite) TestChronicConditionCleared() {
	p := s.healthyDonor()
	p.ChronicCondition = true
	p.ChronicCleared = true

	result, err := Evaluate(p, s.asOf)
	s.Require().NoError(err)
	s.True(result.Eligible)
}

func (s *EligibilitySuite) TestDonationIntervalAt89Days() {
	p := s.healthyDonor()
	last := s.asOf.AddDate(0, 0, -89)
	p.LastDonation = &last

	result, err := Evaluate(p, s.asOf)
	s.Require().NoError(err)
	s.False(result.Eligible)
	s.Contains(result.Violations, ViolationDonationInterval)
	s.Require().NotNil(result.NextEligibleDate)
	s.Equal(last.AddDate(0, 0, 90), *result.NextEligibleDate)
}

func (s *EligibilitySuite) TestDonationIntervalAtExactly90Days() {
	p := s.healthyDonor()
	last := s.asOf.AddDate(0, 0, -90)
	p.LastDonation = &last

	result, err := Evaluate(p, s.asOf)
	s.Require().NoError(err)
	s.True(result.Eligible)
	s.Nil(result.NextEligibleDate)
}

func (s *EligibilitySuite) TestMultipleViolationsAccumulate() {
	p := s.healthyDonor()
	p.DateOfBirth = ptr(s.asOf.AddDate(-17, 0, 0))
	p.WeightKg = ptr(40.0)
	p.ChronicCondition = true
	last := s.asOf.AddDate(0, 0, -10)
	p.LastDonation = &last

	result, err := Evaluate(p, s.asOf)
	s.Require().NoError(err)
	s.False(result.Eligible)
	s.ElementsMatch(result.Violations, []Violation{
		ViolationUnderage, ViolationUnderweight,
		ViolationChronicCondition, ViolationDonationInterval,
	})
}

func (s *EligibilitySuite) TestMissingDataErrors() {
	p := s.healthyDonor()
	p.DateOfBirth = nil

	_, err := Evaluate(p, s.asOf)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	p = s.healthyDonor()
	p.WeightKg = nil
	_, err = Evaluate(p, s.asOf)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestMatchable(t *testing.T) {
	p := &Profile{BloodGroup: domain.GroupAPos, Active: true, Verified: true}
	assert.True(t, p.Matchable())

	require.False(t, (&Profile{BloodGroup: domain.GroupUnknown, Active: true, Verified: true}).Matchable())
	assert.False(t, (&Profile{BloodGroup: domain.GroupAPos, Active: false, Verified: true}).Matchable())
	assert.False(t, (&Profile{BloodGroup: domain.GroupAPos, Active: true, Verified: false}).Matchable())
}
