package donor

import (
	"time"

	"hemolink/pkg/domain"
)

// Profile is a donor's health and donation-history snapshot.
//
// DateOfBirth and WeightKg are pointers because they may be unrecorded;
// eligibility cannot be computed without them. An unknown blood group keeps
// the donor out of matching until lab confirmation.
type Profile struct {
	ID               domain.DonorID
	Name             string
	BloodGroup       domain.BloodGroup
	DateOfBirth      *time.Time
	WeightKg         *float64
	Smoker           bool
	ChronicCondition bool
	// ChronicCleared marks a chronic-condition flag explicitly cleared by
	// medical review. Without it, a chronic condition disqualifies.
	ChronicCleared bool
	LastDonation   *time.Time
	Location       domain.Point
	Active         bool
	Verified       bool
}

// Matchable reports whether the donor can appear in match results at all,
// before eligibility evaluation.
func (p *Profile) Matchable() bool {
	return p.Active && p.Verified && p.BloodGroup.IsValid()
}
