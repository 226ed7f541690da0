// Package service is the Inventory Ledger: the single serialization point
// for unit counters. All mutation funnels through reserve/commit/release/
// restock; no other component touches the counters.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hemolink/internal/inventory"
	"hemolink/internal/platform/metrics"
	"hemolink/internal/ports"
	"hemolink/pkg/domain"
	dErrors "hemolink/pkg/domain-errors"
	"hemolink/pkg/platform/audit"
	"hemolink/pkg/platform/sentinel"
	"hemolink/pkg/requestcontext"
)

// GeoIndex is the slice of the spatial index the ledger mutates for bank
// locations.
type GeoIndex interface {
	Upsert(entityID string, p domain.Point)
	Remove(entityID string)
}

// DefaultHoldTTL bounds how long a hold survives without commit before the
// sweep releases it.
const DefaultHoldTTL = 15 * time.Minute

type Service struct {
	store          inventory.Store
	index          GeoIndex
	holdTTL        time.Duration
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher ports.AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithHoldTTL(d time.Duration) Option {
	return func(s *Service) {
		s.holdTTL = d
	}
}

func New(store inventory.Store, index GeoIndex, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("inventory store is required")
	}
	if index == nil {
		return nil, fmt.Errorf("geo index is required")
	}

	svc := &Service{
		store:   store,
		index:   index,
		holdTTL: DefaultHoldTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// RegisterBank saves a bank profile and keeps the spatial index in step.
func (s *Service) RegisterBank(ctx context.Context, b *inventory.BloodBank) error {
	if b == nil {
		return dErrors.New(dErrors.CodeBadRequest, "blood bank is required")
	}
	if b.ID.IsNil() {
		b.ID = domain.NewBloodBankID()
	}

	if err := s.store.SaveBank(ctx, b); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save blood bank")
	}

	if b.Active {
		s.index.Upsert(b.ID.String(), b.Location)
	} else {
		s.index.Remove(b.ID.String())
	}
	return nil
}

func (s *Service) GetBank(ctx context.Context, id domain.BloodBankID) (*inventory.BloodBank, error) {
	b, err := s.store.GetBank(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "blood bank not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load blood bank")
	}
	return b, nil
}

// Availability reports available units per compatible group for a bank.
// Read-only; used by the matching engine to exclude empty banks.
func (s *Service) Availability(ctx context.Context, bankID domain.BloodBankID, groups []domain.BloodGroup) (map[domain.BloodGroup]int, error) {
	avail, err := s.store.Availability(ctx, bankID, groups)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read availability")
	}
	return avail, nil
}

// Reserve places a hold of units against a (bank, group) key. Atomic:
// either the full quantity is held or nothing changes and the caller gets
// CodeConflict wrapping ErrInsufficientStock.
func (s *Service) Reserve(ctx context.Context, requestID domain.RequestID, bankID domain.BloodBankID, group domain.BloodGroup, units int) (*inventory.Reservation, error) {
	if units <= 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "units must be positive")
	}
	if !group.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid blood group")
	}

	res := &inventory.Reservation{
		ID:        domain.NewReservationID(),
		RequestID: requestID,
		BankID:    bankID,
		Group:     group,
		Units:     units,
		ExpiresAt: requestcontext.Now(ctx).Add(s.holdTTL),
	}

	if err := s.store.Reserve(ctx, res); err != nil {
		if errors.Is(err, sentinel.ErrInsufficientStock) {
			if s.metrics != nil {
				s.metrics.InsufficientStock.Inc()
			}
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "insufficient stock")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reserve units")
	}

	if s.metrics != nil {
		s.metrics.ReservationsHeld.Inc()
	}
	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventReservationHeld,
		"subject", requestID.String(),
		"reservation_id", res.ID.String(),
		"bank_id", bankID.String(),
		"blood_group", group.String(),
		"units", units,
	)
	return res, nil
}

// Commit permanently consumes a held reservation's units.
func (s *Service) Commit(ctx context.Context, id domain.ReservationID) (*inventory.Reservation, error) {
	res, err := s.store.Commit(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrUnknownReservation) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "unknown reservation")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to commit reservation")
	}

	if s.metrics != nil {
		s.metrics.ReservationsCommitted.Inc()
	}
	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventReservationCommitted,
		"subject", res.RequestID.String(),
		"reservation_id", res.ID.String(),
		"bank_id", res.BankID.String(),
		"blood_group", res.Group.String(),
		"units", res.Units,
	)
	return res, nil
}

// Release returns a held reservation's units to available stock.
func (s *Service) Release(ctx context.Context, id domain.ReservationID) (*inventory.Reservation, error) {
	res, err := s.store.Release(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrUnknownReservation) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "unknown reservation")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to release reservation")
	}

	if s.metrics != nil {
		s.metrics.ReservationsReleased.Inc()
	}
	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventReservationReleased,
		"subject", res.RequestID.String(),
		"reservation_id", res.ID.String(),
	)
	return res, nil
}

// Restock adds units to available stock, bounded by the capacity ceiling.
// The ledger never clamps: the caller may raise capacity and retry.
func (s *Service) Restock(ctx context.Context, bankID domain.BloodBankID, group domain.BloodGroup, units int) (*inventory.InventoryRecord, error) {
	if units <= 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "units must be positive")
	}
	if !group.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid blood group")
	}

	rec, err := s.store.Restock(ctx, bankID, group, units)
	if err != nil {
		if errors.Is(err, sentinel.ErrCapacityExceeded) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "capacity exceeded")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to restock")
	}

	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventBankRestocked,
		"subject", bankID.String(),
		"blood_group", group.String(),
		"units", units,
	)
	return rec, nil
}

// SetCapacity adjusts the capacity ceiling for a (bank, group) key.
func (s *Service) SetCapacity(ctx context.Context, bankID domain.BloodBankID, group domain.BloodGroup, capacity int) error {
	if capacity < 0 {
		return dErrors.New(dErrors.CodeBadRequest, "capacity cannot be negative")
	}
	if err := s.store.SetCapacity(ctx, bankID, group, capacity); err != nil {
		if errors.Is(err, sentinel.ErrCapacityExceeded) {
			return dErrors.Wrap(err, dErrors.CodeConflict, "held units exceed new capacity")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to set capacity")
	}
	return nil
}

// ReleaseExpired releases every held reservation whose expiry has passed.
// Called by the background sweep; errors on individual handles are logged
// and skipped since a concurrent commit may have consumed them already.
func (s *Service) ReleaseExpired(ctx context.Context, asOf time.Time) ([]*inventory.Reservation, error) {
	expired, err := s.store.ExpiredHeld(ctx, asOf)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list expired reservations")
	}

	var released []*inventory.Reservation
	for _, res := range expired {
		if _, err := s.store.Release(ctx, res.ID); err != nil {
			// Lost the race against a commit or explicit release. No-op.
			if errors.Is(err, sentinel.ErrUnknownReservation) {
				continue
			}
			if s.logger != nil {
				s.logger.WarnContext(ctx, "failed to release expired reservation",
					"reservation_id", res.ID.String(),
					"error", err.Error(),
				)
			}
			continue
		}
		res.State = inventory.StateReleased
		released = append(released, res)

		if s.metrics != nil {
			s.metrics.ReservationsExpired.Inc()
		}
		ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventReservationExpired,
			"subject", res.RequestID.String(),
			"reservation_id", res.ID.String(),
		)
	}
	return released, nil
}

// WarmIndex bulk-loads every active bank into the spatial index.
func (s *Service) WarmIndex(ctx context.Context) error {
	banks, err := s.store.ListBanks(ctx)
	if err != nil {
		return fmt.Errorf("warm bank index: %w", err)
	}
	for _, b := range banks {
		if b.Active {
			s.index.Upsert(b.ID.String(), b.Location)
		}
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "bank index warmed", "banks", len(banks))
	}
	return nil
}
