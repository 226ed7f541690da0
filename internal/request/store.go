package request

import (
	"context"
	"time"

	"hemolink/pkg/domain"
)

// Store persists blood requests. Implementations return
// sentinel.ErrNotFound for unknown IDs.
type Store interface {
	Get(ctx context.Context, id domain.RequestID) (*BloodRequest, error)
	Save(ctx context.Context, r *BloodRequest) error

	// DueForExpiry returns non-terminal requests whose expiry has passed as
	// of asOf. The sweep moves them to expired.
	DueForExpiry(ctx context.Context, asOf time.Time) ([]*BloodRequest, error)
}
