package inventory

import (
	"context"
	"time"

	"hemolink/pkg/domain"
)

// Store is the ledger's backing repository. Every implementation must make
// Reserve, Commit, Release, and Restock atomic per (bank, group) key: the
// check-and-mutate is a single indivisible operation, and a failed call
// leaves all counters untouched. This is the core correctness invariant of
// the whole system.
//
// Error contract (pkg/platform/sentinel):
//   - Reserve returns ErrInsufficientStock when available < units.
//   - Commit/Release return ErrUnknownReservation when the handle was
//     already committed or released; double-action is a no-op error, never
//     a corruption.
//   - Restock returns ErrCapacityExceeded instead of clamping.
type Store interface {
	GetBank(ctx context.Context, id domain.BloodBankID) (*BloodBank, error)
	SaveBank(ctx context.Context, b *BloodBank) error
	// ListBanks bulk-loads all banks, used for spatial index warm-up.
	ListBanks(ctx context.Context) ([]*BloodBank, error)

	// Availability returns available units per group for the given bank,
	// restricted to the groups asked for. Missing records count as zero.
	Availability(ctx context.Context, bankID domain.BloodBankID, groups []domain.BloodGroup) (map[domain.BloodGroup]int, error)

	// Reserve atomically moves res.Units from available to reserved and
	// persists the reservation in StateHeld.
	Reserve(ctx context.Context, res *Reservation) error

	// Commit consumes a held reservation: units leave reserved for good.
	Commit(ctx context.Context, id domain.ReservationID) (*Reservation, error)

	// Release returns a held reservation's units to available.
	Release(ctx context.Context, id domain.ReservationID) (*Reservation, error)

	// Restock adds units to available, bounded by capacity.
	Restock(ctx context.Context, bankID domain.BloodBankID, group domain.BloodGroup, units int) (*InventoryRecord, error)

	// SetCapacity raises or lowers the capacity ceiling for a key. Lowering
	// below available+reserved returns ErrCapacityExceeded.
	SetCapacity(ctx context.Context, bankID domain.BloodBankID, group domain.BloodGroup, capacity int) error

	GetReservation(ctx context.Context, id domain.ReservationID) (*Reservation, error)

	// ExpiredHeld returns reservations still in StateHeld whose expiry has
	// passed as of asOf. The sweep releases them through Release.
	ExpiredHeld(ctx context.Context, asOf time.Time) ([]*Reservation, error)
}
