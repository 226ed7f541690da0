// Package service drives the request lifecycle state machine. Every
// transition for a single request is serialized through a per-request
// mutex and validated against the transition table before any mutation.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"hemolink/internal/inventory"
	"hemolink/internal/matching"
	"hemolink/internal/platform/metrics"
	"hemolink/internal/ports"
	"hemolink/internal/request"
	"hemolink/pkg/domain"
	dErrors "hemolink/pkg/domain-errors"
	"hemolink/pkg/platform/audit"
	"hemolink/pkg/platform/sentinel"
	"hemolink/pkg/requestcontext"
)

// DefaultRequestTTL bounds how long an unfulfilled request stays open
// before the sweep expires it.
const DefaultRequestTTL = 24 * time.Hour

// Ledger is the slice of the inventory ledger the lifecycle drives.
type Ledger interface {
	Reserve(ctx context.Context, requestID domain.RequestID, bankID domain.BloodBankID, group domain.BloodGroup, units int) (*inventory.Reservation, error)
	Commit(ctx context.Context, id domain.ReservationID) (*inventory.Reservation, error)
	Release(ctx context.Context, id domain.ReservationID) (*inventory.Reservation, error)
}

// Matcher produces ranked candidates for a request.
type Matcher interface {
	Match(ctx context.Context, req *request.BloodRequest) ([]matching.Candidate, error)
}

type Service struct {
	store          request.Store
	ledger         Ledger
	matcher        Matcher
	requestTTL     time.Duration
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher ports.AuditPublisher

	// locks serializes transitions per request. Entries are never removed;
	// the map is bounded by the number of requests seen by this process.
	locksMu sync.Mutex
	locks   map[domain.RequestID]*sync.Mutex
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

func WithRequestTTL(d time.Duration) Option {
	return func(s *Service) {
		s.requestTTL = d
	}
}

func New(store request.Store, ledger Ledger, matcher Matcher, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("request store is required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("inventory ledger is required")
	}
	if matcher == nil {
		return nil, fmt.Errorf("matching engine is required")
	}

	svc := &Service{
		store:      store,
		ledger:     ledger,
		matcher:    matcher,
		requestTTL: DefaultRequestTTL,
		locks:      make(map[domain.RequestID]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

func (s *Service) lock(id domain.RequestID) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	mu, ok := s.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[id] = mu
	}
	return mu
}

// Create registers a new blood request in StatusCreated with an expiry of
// now plus the request TTL.
func (s *Service) Create(ctx context.Context, r *request.BloodRequest) error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.Units <= 0 {
		return dErrors.New(dErrors.CodeBadRequest, "units must be positive")
	}
	if !r.BloodGroup.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid blood group")
	}
	if r.Urgency == "" {
		r.Urgency = request.UrgencyNormal
	}

	now := requestcontext.Now(ctx)
	r.ID = domain.NewRequestID()
	r.Status = request.StatusCreated
	r.CreatedAt = now
	r.UpdatedAt = now
	r.ExpiresAt = now.Add(s.requestTTL)

	if err := s.store.Save(ctx, r); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save request")
	}

	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventRequestCreated,
		"subject", r.ID.String(),
		"blood_group", r.BloodGroup.String(),
		"units", r.Units,
		"urgency", string(r.Urgency),
	)
	return nil
}

func (s *Service) Get(ctx context.Context, id domain.RequestID) (*request.BloodRequest, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "request not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load request")
	}
	return r, nil
}

// transition validates and applies a state change. Caller holds the
// per-request lock.
func (s *Service) transition(ctx context.Context, r *request.BloodRequest, to request.Status) error {
	if !request.CanTransition(r.Status, to) {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"invalid state transition %s -> %s", r.Status, to)
	}
	r.Status = to
	r.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.Save(ctx, r); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save request")
	}
	return nil
}

// Match marks the request as matching and returns the engine's ranked
// candidates. Re-matching while already in StatusMatching is allowed; the
// engine is read-only so repeated calls are harmless.
func (s *Service) Match(ctx context.Context, id domain.RequestID) ([]matching.Candidate, error) {
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if r.Status != request.StatusMatching {
		if err := s.transition(ctx, r, request.StatusMatching); err != nil {
			return nil, err
		}
	}
	return s.matcher.Match(ctx, r)
}

// Reserve places a hold against the chosen bank and attaches the handle,
// moving the request to StatusReserved. The requested group must be
// compatible with the request's group.
func (s *Service) Reserve(ctx context.Context, id domain.RequestID, bankID domain.BloodBankID, group domain.BloodGroup, units int) (*inventory.Reservation, error) {
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != request.StatusMatching {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation,
			"invalid state transition %s -> %s", r.Status, request.StatusReserved)
	}
	if !domain.CanDonate(group, r.BloodGroup) {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput,
			"group %s is not compatible with request group %s", group, r.BloodGroup)
	}

	res, err := s.ledger.Reserve(ctx, r.ID, bankID, group, units)
	if err != nil {
		return nil, err
	}

	r.ReservationID = &res.ID
	if err := s.transition(ctx, r, request.StatusReserved); err != nil {
		// Roll the hold back so no reservation is left dangling.
		if _, relErr := s.ledger.Release(ctx, res.ID); relErr != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "failed to roll back reservation",
				"reservation_id", res.ID.String(),
				"error", relErr.Error(),
			)
		}
		return nil, err
	}
	return res, nil
}

// Commit consumes the held reservation and moves the request to its
// terminal StatusFulfilled, returning the immutable fulfillment record.
func (s *Service) Commit(ctx context.Context, id domain.RequestID) (*request.FulfillmentRecord, error) {
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != request.StatusReserved || r.ReservationID == nil {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation,
			"invalid state transition %s -> %s", r.Status, request.StatusFulfilled)
	}

	res, err := s.ledger.Commit(ctx, *r.ReservationID)
	if err != nil {
		return nil, err
	}

	if err := s.transition(ctx, r, request.StatusFulfilled); err != nil {
		return nil, err
	}

	record := &request.FulfillmentRecord{
		RequestID:   r.ID,
		BankID:      res.BankID,
		BloodGroup:  res.Group,
		Units:       res.Units,
		FulfilledAt: requestcontext.Now(ctx),
		Reservation: res.ID,
	}

	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventRequestFulfilled,
		"subject", r.ID.String(),
		"bank_id", res.BankID.String(),
		"blood_group", res.Group.String(),
		"units", res.Units,
	)
	return record, nil
}

// Release drops the held reservation and returns the request to
// StatusMatching. This is the retry path when a source backs out.
func (s *Service) Release(ctx context.Context, id domain.RequestID) error {
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	r, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if r.Status != request.StatusReserved || r.ReservationID == nil {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"invalid state transition %s -> %s", r.Status, request.StatusMatching)
	}

	if err := s.releaseHold(ctx, r); err != nil {
		return err
	}
	return s.transition(ctx, r, request.StatusMatching)
}

// Cancel terminates a non-terminal request, releasing any held
// reservation first.
func (s *Service) Cancel(ctx context.Context, id domain.RequestID) error {
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	r, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if r.Status.Terminal() {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"invalid state transition %s -> %s", r.Status, request.StatusCancelled)
	}

	if err := s.releaseHold(ctx, r); err != nil {
		return err
	}
	if err := s.transition(ctx, r, request.StatusCancelled); err != nil {
		return err
	}

	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventRequestCancelled,
		"subject", r.ID.String(),
	)
	return nil
}

// releaseHold returns any held reservation to stock and detaches the
// handle. Losing the race against a commit or sweep is a no-op.
func (s *Service) releaseHold(ctx context.Context, r *request.BloodRequest) error {
	if r.ReservationID == nil {
		return nil
	}
	if _, err := s.ledger.Release(ctx, *r.ReservationID); err != nil {
		if !dErrors.HasCode(err, dErrors.CodeNotFound) {
			return err
		}
	}
	r.ReservationID = nil
	return nil
}

// ExpireDue moves every request past its expiry to StatusExpired,
// releasing held reservations. Called by the background sweep; individual
// failures are logged and skipped, never propagated.
func (s *Service) ExpireDue(ctx context.Context, asOf time.Time) (int, error) {
	due, err := s.store.DueForExpiry(ctx, asOf)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list due requests")
	}

	expired := 0
	for _, stale := range due {
		if err := s.expireOne(ctx, stale.ID); err != nil {
			if s.logger != nil {
				s.logger.WarnContext(ctx, "failed to expire request",
					"request_id", stale.ID.String(),
					"error", err.Error(),
				)
			}
			continue
		}
		expired++
	}
	return expired, nil
}

func (s *Service) expireOne(ctx context.Context, id domain.RequestID) error {
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	// Re-read under the lock; a concurrent commit or cancel may have won.
	r, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if r.Status.Terminal() {
		return nil
	}

	if err := s.releaseHold(ctx, r); err != nil {
		return err
	}
	if err := s.transition(ctx, r, request.StatusExpired); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.RequestsExpired.Inc()
	}
	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventRequestExpired,
		"subject", r.ID.String(),
	)
	return nil
}

// OnReservationExpired is the sweep's callback after the ledger released
// an expired hold. The owning request, if still Reserved on that handle,
// detaches it and returns to StatusMatching.
func (s *Service) OnReservationExpired(ctx context.Context, requestID domain.RequestID, reservationID domain.ReservationID) error {
	mu := s.lock(requestID)
	mu.Lock()
	defer mu.Unlock()

	r, err := s.Get(ctx, requestID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil
		}
		return err
	}
	if r.Status != request.StatusReserved || r.ReservationID == nil || *r.ReservationID != reservationID {
		return nil
	}

	r.ReservationID = nil
	return s.transition(ctx, r, request.StatusMatching)
}
