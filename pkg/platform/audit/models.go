package audit

import "time"

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance:
	// units physically handed over, requests fulfilled. These require
	// tamper-proof storage and long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers events useful for debugging and operational
	// visibility: holds placed and released, sweeps, restocks. These can be
	// sampled or aggregated with shorter retention.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	// Actor is the acting principal (hospital staff, admin, or "sweeper").
	Actor string
	// Subject is the entity acted upon (request ID, bank ID, donor ID).
	Subject   string
	Action    string
	Reason    string
	RequestID string
}

type AuditEvent string

const (
	// Request lifecycle events
	EventRequestCreated   AuditEvent = "request_created"
	EventRequestCancelled AuditEvent = "request_cancelled"
	EventRequestFulfilled AuditEvent = "request_fulfilled"
	EventRequestExpired   AuditEvent = "request_expired"

	// Inventory events
	EventReservationHeld      AuditEvent = "reservation_held"
	EventReservationCommitted AuditEvent = "reservation_committed"
	EventReservationReleased  AuditEvent = "reservation_released"
	EventReservationExpired   AuditEvent = "reservation_expired"
	EventBankRestocked        AuditEvent = "bank_restocked"

	// Donor events
	EventDonorRegistered AuditEvent = "donor_registered"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	// Compliance events - the permanent record of who received which units
	EventRequestFulfilled:     CategoryCompliance,
	EventReservationCommitted: CategoryCompliance,

	// Operations events - routine activity, can be sampled
	EventRequestCreated:      CategoryOperations,
	EventRequestCancelled:    CategoryOperations,
	EventRequestExpired:      CategoryOperations,
	EventReservationHeld:     CategoryOperations,
	EventReservationReleased: CategoryOperations,
	EventReservationExpired:  CategoryOperations,
	EventBankRestocked:       CategoryOperations,
	EventDonorRegistered:     CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
