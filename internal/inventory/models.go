package inventory

import (
	"time"

	"hemolink/pkg/domain"
)

// BloodBank is a stock-holding facility. Unit counters live in
// InventoryRecord, never here: the ledger exclusively owns them.
type BloodBank struct {
	ID       domain.BloodBankID
	Name     string
	Location domain.Point
	Active   bool
}

// InventoryRecord is the per-(bank, group) unit ledger entry.
// Invariant: Available + Reserved <= Capacity; all three >= 0.
type InventoryRecord struct {
	BankID    domain.BloodBankID
	Group     domain.BloodGroup
	Available int
	Reserved  int
	Capacity  int
}

// ReservationState tracks a hold through its life.
type ReservationState string

const (
	// StateHeld: units moved from available to reserved, awaiting pickup.
	StateHeld ReservationState = "held"
	// StateCommitted: units permanently consumed. Terminal.
	StateCommitted ReservationState = "committed"
	// StateReleased: units returned to available, by cancellation or the
	// expiry sweep. Terminal.
	StateReleased ReservationState = "released"
)

// Reservation links a request to an inventory hold. Owned by the ledger;
// the request references it by ID only.
type Reservation struct {
	ID        domain.ReservationID
	RequestID domain.RequestID
	BankID    domain.BloodBankID
	Group     domain.BloodGroup
	Units     int
	State     ReservationState
	ExpiresAt time.Time
}
