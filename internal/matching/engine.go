// Package matching ranks donors and blood banks as candidate sources for a
// blood request. The engine is read-only and stateless across calls: it
// mutates nothing, so any number of matches may run concurrently.
package matching

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"hemolink/internal/donor"
	"hemolink/internal/geo"
	"hemolink/internal/platform/metrics"
	"hemolink/internal/request"
	"hemolink/pkg/domain"
	dErrors "hemolink/pkg/domain-errors"
	"hemolink/pkg/platform/sentinel"
	"hemolink/pkg/requestcontext"
)

// Kind tags a candidate's source entity.
type Kind string

const (
	KindDonor     Kind = "donor"
	KindBloodBank Kind = "bloodbank"
)

func ParseKind(raw string) (Kind, error) {
	switch Kind(raw) {
	case KindDonor, KindBloodBank:
		return Kind(raw), nil
	}
	return "", dErrors.Newf(dErrors.CodeInvalidInput, "invalid candidate kind %q", raw)
}

// Candidate is one ranked source for a request. Derived, never persisted:
// produced fresh per match so it cannot go stale against the ledger.
type Candidate struct {
	Kind           Kind              `json:"kind"`
	ID             string            `json:"id"`
	BloodGroup     domain.BloodGroup `json:"blood_group"`
	DistanceM      float64           `json:"distance_m"`
	UnitsAvailable int               `json:"units_available"`
	Eligible       bool              `json:"eligible"`
}

// Location is a raw spatial lookup result.
type Location struct {
	Kind      Kind    `json:"kind"`
	ID        string  `json:"id"`
	DistanceM float64 `json:"distance_m"`
}

// SpatialIndex is the read side of a geo index.
type SpatialIndex interface {
	QueryRadius(center domain.Point, radiusM float64, limit int) []geo.Neighbor
}

// DonorSource loads donor profiles for eligibility screening.
type DonorSource interface {
	Get(ctx context.Context, id domain.DonorID) (*donor.Profile, error)
}

// BankSource reads ledger availability for bank screening.
type BankSource interface {
	Availability(ctx context.Context, bankID domain.BloodBankID, groups []domain.BloodGroup) (map[domain.BloodGroup]int, error)
}

// Config bounds the radius expansion.
type Config struct {
	// RadiusStepsKm is the widening search schedule. Expansion stops at the
	// first step yielding at least MinCandidates, or at the last step.
	RadiusStepsKm []float64
	MinCandidates int
	MaxCandidates int
}

var DefaultConfig = Config{
	RadiusStepsKm: []float64{25, 50, 100},
	MinCandidates: 3,
	MaxCandidates: 50,
}

type Engine struct {
	cfg        Config
	donorIndex SpatialIndex
	bankIndex  SpatialIndex
	donors     DonorSource
	banks      BankSource
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func NewEngine(cfg Config, donorIndex, bankIndex SpatialIndex, donors DonorSource, banks BankSource, opts ...Option) *Engine {
	if len(cfg.RadiusStepsKm) == 0 {
		cfg.RadiusStepsKm = DefaultConfig.RadiusStepsKm
	}
	if cfg.MinCandidates <= 0 {
		cfg.MinCandidates = DefaultConfig.MinCandidates
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = DefaultConfig.MaxCandidates
	}

	e := &Engine{
		cfg:        cfg,
		donorIndex: donorIndex,
		bankIndex:  bankIndex,
		donors:     donors,
		banks:      banks,
		tracer:     otel.Tracer("hemolink/matching"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Match produces the ranked candidate list for a request. An empty list is
// a valid answer, not an error: "no compatible source nearby" is something
// the caller reports, not something the engine fails on.
func (e *Engine) Match(ctx context.Context, req *request.BloodRequest) ([]Candidate, error) {
	ctx, span := e.tracer.Start(ctx, "matching.Match",
		trace.WithAttributes(
			attribute.String("request_id", req.ID.String()),
			attribute.String("blood_group", req.BloodGroup.String()),
			attribute.Int("units", req.Units),
		))
	defer span.End()

	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.MatchesPerformed.Inc()
			e.metrics.MatchDuration.Observe(time.Since(start).Seconds())
		}
	}()

	groups := domain.CompatibleDonors(req.BloodGroup)
	if len(groups) == 0 {
		span.SetAttributes(attribute.Int("candidates", 0))
		return nil, nil
	}

	compatible := make(map[domain.BloodGroup]bool, len(groups))
	for _, g := range groups {
		compatible[g] = true
	}

	asOf := requestcontext.Now(ctx)

	var candidates []Candidate
	for _, stepKm := range e.cfg.RadiusStepsKm {
		radiusM := stepKm * 1000

		var donorCands, bankCands []Candidate
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			donorCands, err = e.collectDonors(gctx, req.Location, radiusM, compatible, asOf)
			return err
		})
		g.Go(func() error {
			var err error
			bankCands, err = e.collectBanks(gctx, req.Location, radiusM, groups)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to collect candidates")
		}

		candidates = append(donorCands, bankCands...)
		if len(candidates) >= e.cfg.MinCandidates {
			break
		}
	}

	rank(candidates)
	if len(candidates) > e.cfg.MaxCandidates {
		candidates = candidates[:e.cfg.MaxCandidates]
	}

	span.SetAttributes(attribute.Int("candidates", len(candidates)))
	if e.logger != nil {
		e.logger.InfoContext(ctx, "match completed",
			"request_id", req.ID.String(),
			"blood_group", req.BloodGroup.String(),
			"candidates", len(candidates),
		)
	}
	return candidates, nil
}

// collectDonors screens donors within radius: matchable profile, compatible
// group, and eligible as of now. Ineligible donors are excluded outright.
func (e *Engine) collectDonors(ctx context.Context, center domain.Point, radiusM float64, compatible map[domain.BloodGroup]bool, asOf time.Time) ([]Candidate, error) {
	neighbors := e.donorIndex.QueryRadius(center, radiusM, 0)

	var out []Candidate
	for _, n := range neighbors {
		id, err := domain.ParseDonorID(n.ID)
		if err != nil {
			continue
		}
		p, err := e.donors.Get(ctx, id)
		if err != nil {
			// Index entries can outlive the profile briefly. Skip.
			if dErrors.HasCode(err, dErrors.CodeNotFound) || errors.Is(err, sentinel.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if !p.Matchable() || !compatible[p.BloodGroup] {
			continue
		}
		// An uncomputable verdict (missing date of birth or weight) keeps
		// the donor out of results, same as an ineligible one.
		result, err := donor.Evaluate(p, asOf)
		if err != nil || !result.Eligible {
			continue
		}
		out = append(out, Candidate{
			Kind:       KindDonor,
			ID:         n.ID,
			BloodGroup: p.BloodGroup,
			DistanceM:  n.DistanceM,
			Eligible:   true,
		})
	}
	return out, nil
}

// collectBanks screens banks within radius: at least one available unit in
// a compatible group. The group offered is the compatible group with the
// deepest stock.
func (e *Engine) collectBanks(ctx context.Context, center domain.Point, radiusM float64, groups []domain.BloodGroup) ([]Candidate, error) {
	neighbors := e.bankIndex.QueryRadius(center, radiusM, 0)

	var out []Candidate
	for _, n := range neighbors {
		id, err := domain.ParseBloodBankID(n.ID)
		if err != nil {
			continue
		}
		avail, err := e.banks.Availability(ctx, id, groups)
		if err != nil {
			return nil, err
		}

		best, bestUnits := domain.GroupUnknown, 0
		for _, g := range groups {
			if avail[g] > bestUnits {
				best, bestUnits = g, avail[g]
			}
		}
		if bestUnits == 0 {
			continue
		}
		out = append(out, Candidate{
			Kind:           KindBloodBank,
			ID:             n.ID,
			BloodGroup:     best,
			DistanceM:      n.DistanceM,
			UnitsAvailable: bestUnits,
			Eligible:       true,
		})
	}
	return out, nil
}

// rank orders candidates by distance ascending, then available units
// descending when both are banks, then ID ascending.
func rank(candidates []Candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.DistanceM != b.DistanceM {
			return a.DistanceM < b.DistanceM
		}
		if a.Kind == KindBloodBank && b.Kind == KindBloodBank && a.UnitsAvailable != b.UnitsAvailable {
			return a.UnitsAvailable > b.UnitsAvailable
		}
		return a.ID < b.ID
	})
}

// Nearby exposes raw spatial lookups without the compatibility or
// eligibility screens.
func (e *Engine) Nearby(ctx context.Context, center domain.Point, radiusM float64, kind Kind, limit int) ([]Location, error) {
	if radiusM <= 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "radius must be positive")
	}

	var index SpatialIndex
	switch kind {
	case KindDonor:
		index = e.donorIndex
	case KindBloodBank:
		index = e.bankIndex
	default:
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "invalid candidate kind %q", kind)
	}

	neighbors := index.QueryRadius(center, radiusM, limit)
	out := make([]Location, 0, len(neighbors))
	for _, n := range neighbors {
		out = append(out, Location{Kind: kind, ID: n.ID, DistanceM: n.DistanceM})
	}
	return out, nil
}
