package donor

import (
	"context"

	"hemolink/pkg/domain"
)

// Store is the repository abstraction for donor profiles. The core never
// cares which engine backs it.
type Store interface {
	// Get returns sentinel.ErrNotFound when the donor does not exist.
	Get(ctx context.Context, id domain.DonorID) (*Profile, error)

	// Save inserts or replaces a profile.
	Save(ctx context.Context, p *Profile) error

	// List bulk-loads all profiles, used for spatial index warm-up.
	List(ctx context.Context) ([]*Profile, error)
}
