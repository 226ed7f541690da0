package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"hemolink/internal/matching"
	"hemolink/internal/transport/http/shared"
	"hemolink/pkg/domain"
	dErrors "hemolink/pkg/domain-errors"
)

// defaultNearbyLimit caps unbounded /nearby queries.
const defaultNearbyLimit = 50

// defaultNearbyRadiusM applies when the caller omits radius_m.
const defaultNearbyRadiusM = 10_000.0

// Matcher runs a match through the request lifecycle so the status marker
// is kept in step.
type Matcher interface {
	Match(ctx context.Context, id domain.RequestID) ([]matching.Candidate, error)
}

// Locator exposes raw spatial lookups straight off the engine.
type Locator interface {
	Nearby(ctx context.Context, center domain.Point, radiusM float64, kind matching.Kind, limit int) ([]matching.Location, error)
}

// Handler handles matching and spatial lookup endpoints.
type Handler struct {
	logger  *slog.Logger
	matcher Matcher
	locator Locator
}

func New(matcher Matcher, locator Locator, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, matcher: matcher, locator: locator}
}

// Register registers the matching routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/requests/{requestID}/match", h.handleMatch)
	r.Get("/nearby", h.handleNearby)
}

func (h *Handler) handleMatch(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	candidates, err := h.matcher.Match(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	// Empty is a valid answer; serialize as [] rather than null.
	if candidates == nil {
		candidates = []matching.Candidate{}
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"candidates": candidates})
}

func (h *Handler) handleNearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "lat must be a number"))
		return
	}
	lng, err := strconv.ParseFloat(q.Get("lng"), 64)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "lng must be a number"))
		return
	}
	center, err := domain.ParsePoint(lat, lng)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	radiusM := defaultNearbyRadiusM
	if raw := q.Get("radius_m"); raw != "" {
		radiusM, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "radius_m must be a number"))
			return
		}
	}

	kind, err := matching.ParseKind(q.Get("kind"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	limit := defaultNearbyLimit
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
	}

	locations, err := h.locator.Nearby(r.Context(), center, radiusM, kind, limit)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if locations == nil {
		locations = []matching.Location{}
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"results": locations})
}
