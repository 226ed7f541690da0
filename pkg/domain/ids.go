// Package domain holds shared value types: typed entity IDs, blood groups,
// and geographic points. Construct values via the Parse* functions at trust
// boundaries; direct casting bypasses validation.
package domain

import (
	"github.com/google/uuid"

	dErrors "hemolink/pkg/domain-errors"
)

// Typed UUIDs prevent cross-entity ID mixups at compile time.
type (
	DonorID       uuid.UUID
	BloodBankID   uuid.UUID
	RequestID     uuid.UUID
	ReservationID uuid.UUID
)

func NewDonorID() DonorID             { return DonorID(uuid.New()) }
func NewBloodBankID() BloodBankID     { return BloodBankID(uuid.New()) }
func NewRequestID() RequestID         { return RequestID(uuid.New()) }
func NewReservationID() ReservationID { return ReservationID(uuid.New()) }

func (id DonorID) String() string       { return uuid.UUID(id).String() }
func (id BloodBankID) String() string   { return uuid.UUID(id).String() }
func (id RequestID) String() string     { return uuid.UUID(id).String() }
func (id ReservationID) String() string { return uuid.UUID(id).String() }

func (id DonorID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id BloodBankID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id RequestID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id ReservationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// TextMarshaler round-trips so IDs serialize as UUID strings in JSON.

func (id DonorID) MarshalText() ([]byte, error)       { return []byte(id.String()), nil }
func (id BloodBankID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }
func (id RequestID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id ReservationID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *DonorID) UnmarshalText(b []byte) error {
	parsed, err := ParseDonorID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *BloodBankID) UnmarshalText(b []byte) error {
	parsed, err := ParseBloodBankID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *RequestID) UnmarshalText(b []byte) error {
	parsed, err := ParseRequestID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *ReservationID) UnmarshalText(b []byte) error {
	parsed, err := ParseReservationID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// parseUUID enforces the shared invariant: IDs must be valid, non-empty,
// non-nil UUIDs.
func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s cannot be empty", kind)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "invalid %s", kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s cannot be nil", kind)
	}
	return u, nil
}

func ParseDonorID(s string) (DonorID, error) {
	u, err := parseUUID(s, "donor_id")
	return DonorID(u), err
}

func ParseBloodBankID(s string) (BloodBankID, error) {
	u, err := parseUUID(s, "blood_bank_id")
	return BloodBankID(u), err
}

func ParseRequestID(s string) (RequestID, error) {
	u, err := parseUUID(s, "request_id")
	return RequestID(u), err
}

func ParseReservationID(s string) (ReservationID, error) {
	u, err := parseUUID(s, "reservation_id")
	return ReservationID(u), err
}
