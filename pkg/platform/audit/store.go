package audit

import "context"

// Store persists audit events. Implementations must be safe for concurrent
// use; Append must not drop compliance-category events silently.
type Store interface {
	Append(ctx context.Context, event Event) error
	// List returns events for a subject in append order.
	List(ctx context.Context, subject string) ([]Event, error)
}
