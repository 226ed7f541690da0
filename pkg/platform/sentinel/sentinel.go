package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and the ledger return
// these (optionally wrapped) so services can translate them into domain
// errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrInsufficientStock: available units below the requested amount
// - ErrCapacityExceeded: restock would overflow the capacity ceiling
// - ErrUnknownReservation: handle already committed, released, or expired
// - ErrInvalidState: entity in wrong lifecycle state for the transition
//
// For validation errors (bad input, missing fields), use pkg/domain-errors
// directly.
var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrCapacityExceeded   = errors.New("capacity exceeded")
	ErrUnknownReservation = errors.New("unknown reservation")
	ErrInvalidState       = errors.New("invalid state")
)
