// Package sweep runs the periodic expiry pass: held reservations past
// their TTL are released back to stock, and requests past their expiry are
// moved to their terminal expired state. The sweep talks to the ledger and
// lifecycle through the same contracts synchronous callers use, so expiry
// and explicit cancellation are indistinguishable to the ledger.
package sweep

import (
	"context"
	"log/slog"
	"time"

	"hemolink/internal/inventory"
	"hemolink/pkg/domain"
	"hemolink/pkg/requestcontext"
)

// DefaultInterval is the sweep cadence when none is configured.
const DefaultInterval = 30 * time.Second

// Ledger releases expired holds.
type Ledger interface {
	ReleaseExpired(ctx context.Context, asOf time.Time) ([]*inventory.Reservation, error)
}

// Requests expires overdue requests and reacts to released holds.
type Requests interface {
	ExpireDue(ctx context.Context, asOf time.Time) (int, error)
	OnReservationExpired(ctx context.Context, requestID domain.RequestID, reservationID domain.ReservationID) error
}

type Sweeper struct {
	ledger   Ledger
	requests Requests
	interval time.Duration
	logger   *slog.Logger
}

func New(ledger Ledger, requests Requests, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{
		ledger:   ledger,
		requests: requests,
		interval: interval,
		logger:   logger,
	}
}

// Run sweeps on a ticker until the context is cancelled. Errors are logged
// and never propagated; no caller waits synchronously on expiry.
func (s *Sweeper) Run(ctx context.Context) {
	ctx = requestcontext.WithPrincipal(ctx, requestcontext.ActingPrincipal{
		Subject: "sweeper",
		Role:    "system",
	})

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs one expiry pass as of the context clock.
func (s *Sweeper) Sweep(ctx context.Context) {
	asOf := requestcontext.Now(ctx)

	released, err := s.ledger.ReleaseExpired(ctx, asOf)
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "reservation sweep failed", "error", err.Error())
		}
	}
	for _, res := range released {
		if err := s.requests.OnReservationExpired(ctx, res.RequestID, res.ID); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "failed to detach expired reservation",
				"request_id", res.RequestID.String(),
				"reservation_id", res.ID.String(),
				"error", err.Error(),
			)
		}
	}

	expired, err := s.requests.ExpireDue(ctx, asOf)
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "request sweep failed", "error", err.Error())
		}
		return
	}

	if s.logger != nil && (len(released) > 0 || expired > 0) {
		s.logger.InfoContext(ctx, "sweep completed",
			"reservations_released", len(released),
			"requests_expired", expired,
		)
	}
}
