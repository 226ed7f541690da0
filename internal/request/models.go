// Package request holds the blood request lifecycle: the state machine that
// carries a request from creation through matching and reservation to
// fulfillment, cancellation, or expiry.
package request

import (
	"time"

	"hemolink/pkg/domain"
	dErrors "hemolink/pkg/domain-errors"
)

// Status is a request's position in the lifecycle.
type Status string

const (
	StatusCreated   Status = "created"
	StatusMatching  Status = "matching"
	StatusReserved  Status = "reserved"
	StatusFulfilled Status = "fulfilled"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusFulfilled, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// transitions is the full set of legal state changes. Reserved -> Matching
// covers the retry path after a reservation is released; it is only legal
// once the hold is gone.
var transitions = map[Status]map[Status]bool{
	StatusCreated: {
		StatusMatching:  true,
		StatusCancelled: true,
		StatusExpired:   true,
	},
	StatusMatching: {
		StatusReserved:  true,
		StatusCancelled: true,
		StatusExpired:   true,
	},
	StatusReserved: {
		StatusFulfilled: true,
		StatusMatching:  true,
		StatusCancelled: true,
		StatusExpired:   true,
	},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to Status) bool {
	return transitions[from][to]
}

// Urgency orders requests for operator attention. It does not change
// matching semantics.
type Urgency string

const (
	UrgencyNormal   Urgency = "normal"
	UrgencyUrgent   Urgency = "urgent"
	UrgencyCritical Urgency = "critical"
)

func ParseUrgency(raw string) (Urgency, error) {
	switch Urgency(raw) {
	case UrgencyNormal, UrgencyUrgent, UrgencyCritical:
		return Urgency(raw), nil
	case "":
		return UrgencyNormal, nil
	}
	return "", dErrors.Newf(dErrors.CodeInvalidInput, "invalid urgency %q", raw)
}

// BloodRequest is a hospital's demand for units of a blood group at a
// location. ReservationID is set only while Status is reserved.
type BloodRequest struct {
	ID            domain.RequestID      `json:"id"`
	Hospital      string                `json:"hospital"`
	BloodGroup    domain.BloodGroup     `json:"blood_group"`
	Units         int                   `json:"units"`
	Location      domain.Point          `json:"location"`
	Urgency       Urgency               `json:"urgency"`
	Status        Status                `json:"status"`
	ReservationID *domain.ReservationID `json:"reservation_id,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	ExpiresAt     time.Time             `json:"expires_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// FulfillmentRecord is the immutable outcome of a committed reservation.
type FulfillmentRecord struct {
	RequestID   domain.RequestID     `json:"request_id"`
	BankID      domain.BloodBankID   `json:"bank_id"`
	BloodGroup  domain.BloodGroup    `json:"blood_group"`
	Units       int                  `json:"units"`
	FulfilledAt time.Time            `json:"fulfilled_at"`
	Reservation domain.ReservationID `json:"reservation_id"`
}
