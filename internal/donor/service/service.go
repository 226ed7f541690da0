package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hemolink/internal/donor"
	"hemolink/internal/ports"
	"hemolink/pkg/domain"
	dErrors "hemolink/pkg/domain-errors"
	"hemolink/pkg/platform/audit"
	"hemolink/pkg/platform/sentinel"
	"hemolink/pkg/requestcontext"
)

// GeoIndex is the slice of the spatial index the donor service mutates.
// Only location coordinates flow through it, never full profiles.
type GeoIndex interface {
	Upsert(entityID string, p domain.Point)
	Remove(entityID string)
}

type Service struct {
	store          donor.Store
	index          GeoIndex
	logger         *slog.Logger
	auditPublisher ports.AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func New(store donor.Store, index GeoIndex, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("donor store is required")
	}
	if index == nil {
		return nil, fmt.Errorf("geo index is required")
	}

	svc := &Service{store: store, index: index}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Register saves a donor profile and keeps the spatial index in step with
// the donor's location and active flag. Assigns an ID when absent.
func (s *Service) Register(ctx context.Context, p *donor.Profile) error {
	if p == nil {
		return dErrors.New(dErrors.CodeBadRequest, "donor profile is required")
	}
	if p.ID.IsNil() {
		p.ID = domain.NewDonorID()
	}

	if err := s.store.Save(ctx, p); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save donor")
	}

	// Inactive donors never appear in proximity search.
	if p.Active {
		s.index.Upsert(p.ID.String(), p.Location)
	} else {
		s.index.Remove(p.ID.String())
	}

	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventDonorRegistered,
		"subject", p.ID.String(),
	)
	return nil
}

func (s *Service) Get(ctx context.Context, id domain.DonorID) (*donor.Profile, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "donor not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load donor")
	}
	return p, nil
}

// EvaluateEligibility computes the donation eligibility verdict for a donor
// as of the given time. A zero asOf uses the request-scoped clock.
func (s *Service) EvaluateEligibility(ctx context.Context, id domain.DonorID, asOf time.Time) (donor.EligibilityResult, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return donor.EligibilityResult{}, err
	}
	if asOf.IsZero() {
		asOf = requestcontext.Now(ctx)
	}
	return donor.Evaluate(p, asOf)
}

// WarmIndex bulk-loads every active donor into the spatial index. Called
// once at startup before the server accepts traffic.
func (s *Service) WarmIndex(ctx context.Context) error {
	profiles, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("warm donor index: %w", err)
	}
	for _, p := range profiles {
		if p.Active {
			s.index.Upsert(p.ID.String(), p.Location)
		}
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "donor index warmed", "donors", len(profiles))
	}
	return nil
}
