package donor

import (
	"time"

	dErrors "hemolink/pkg/domain-errors"
)

// Donation eligibility thresholds. Standard blood-bank rules; the interval
// matches whole-blood donation guidance.
const (
	MinDonorAge       = 18
	MaxDonorAge       = 65
	MinWeightKg       = 45.0
	DonationInterval  = 90 * 24 * time.Hour
	donationIntervalD = 90
)

// Violation names a single failed eligibility rule.
type Violation string

const (
	ViolationUnderage         Violation = "underage"
	ViolationOverAge          Violation = "over_age"
	ViolationUnderweight      Violation = "underweight"
	ViolationChronicCondition Violation = "chronic_condition"
	ViolationDonationInterval Violation = "donation_interval"
)

// EligibilityResult is the verdict of Evaluate as of a given date.
// NextEligibleDate is set only when the donation interval is the binding
// constraint; age or weight failures have no computable next date.
type EligibilityResult struct {
	Eligible         bool
	Violations       []Violation
	NextEligibleDate *time.Time
}

// Evaluate decides donation eligibility as of asOf. Pure and deterministic
// given its inputs.
//
// Missing-but-optional fields never error: absent chronic-condition data
// defaults to "not disqualifying", absent last-donation means a first-time
// donor. Missing date of birth or weight makes the verdict uncomputable and
// returns CodeValidation.
func Evaluate(p *Profile, asOf time.Time) (EligibilityResult, error) {
	if p.DateOfBirth == nil || p.WeightKg == nil {
		return EligibilityResult{}, dErrors.New(dErrors.CodeValidation, "insufficient data: date of birth and weight are required")
	}

	var violations []Violation

	age := yearsBetween(*p.DateOfBirth, asOf)
	if age < MinDonorAge {
		violations = append(violations, ViolationUnderage)
	} else if age > MaxDonorAge {
		violations = append(violations, ViolationOverAge)
	}

	if *p.WeightKg < MinWeightKg {
		violations = append(violations, ViolationUnderweight)
	}

	if p.ChronicCondition && !p.ChronicCleared {
		violations = append(violations, ViolationChronicCondition)
	}

	var nextEligible *time.Time
	if p.LastDonation != nil {
		next := p.LastDonation.AddDate(0, 0, donationIntervalD)
		if asOf.Before(next) {
			violations = append(violations, ViolationDonationInterval)
			nextEligible = &next
		}
	}

	return EligibilityResult{
		Eligible:         len(violations) == 0,
		Violations:       violations,
		NextEligibleDate: nextEligible,
	}, nil
}

// yearsBetween computes whole years from dob to asOf, calendar-adjusted.
func yearsBetween(dob, asOf time.Time) int {
	years := asOf.Year() - dob.Year()
	anniversary := dob.AddDate(years, 0, 0)
	if anniversary.After(asOf) {
		years--
	}
	return years
}
