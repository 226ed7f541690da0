package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"hemolink/internal/donor"
	"hemolink/internal/transport/http/shared"
	"hemolink/pkg/domain"
	dErrors "hemolink/pkg/domain-errors"
	"hemolink/pkg/requestcontext"
)

// Service defines the donor operations the transport layer needs.
type Service interface {
	Register(ctx context.Context, p *donor.Profile) error
	Get(ctx context.Context, id domain.DonorID) (*donor.Profile, error)
	EvaluateEligibility(ctx context.Context, id domain.DonorID, asOf time.Time) (donor.EligibilityResult, error)
}

// Handler handles donor endpoints.
type Handler struct {
	logger *slog.Logger
	donors Service
}

func New(donors Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, donors: donors}
}

// Register registers the donor routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/donors", h.handleRegister)
	r.Get("/donors/{donorID}", h.handleGet)
	r.Put("/donors/{donorID}", h.handleUpdate)
	r.Get("/donors/{donorID}/eligibility", h.handleEligibility)
}

type registerRequest struct {
	Name             string     `json:"name"`
	BloodGroup       string     `json:"blood_group"`
	DateOfBirth      *time.Time `json:"date_of_birth"`
	WeightKg         *float64   `json:"weight_kg"`
	Smoker           bool       `json:"smoker"`
	ChronicCondition bool       `json:"chronic_condition"`
	ChronicCleared   bool       `json:"chronic_cleared"`
	LastDonation     *time.Time `json:"last_donation"`
	Lat              float64    `json:"lat"`
	Lng              float64    `json:"lng"`
	Active           *bool      `json:"active"`
	Verified         bool       `json:"verified"`
}

func (req registerRequest) toProfile() (*donor.Profile, error) {
	location, err := domain.ParsePoint(req.Lat, req.Lng)
	if err != nil {
		return nil, err
	}

	// Blood group may be omitted for unconfirmed donors; such donors stay
	// unmatched until the group is confirmed.
	group := domain.GroupUnknown
	if req.BloodGroup != "" {
		group, err = domain.ParseBloodGroup(req.BloodGroup)
		if err != nil {
			return nil, err
		}
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	return &donor.Profile{
		Name:             req.Name,
		BloodGroup:       group,
		DateOfBirth:      req.DateOfBirth,
		WeightKg:         req.WeightKg,
		Smoker:           req.Smoker,
		ChronicCondition: req.ChronicCondition,
		ChronicCleared:   req.ChronicCleared,
		LastDonation:     req.LastDonation,
		Location:         location,
		Active:           active,
		Verified:         req.Verified,
	}, nil
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	p, err := req.toProfile()
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	if err := h.donors.Register(ctx, p); err != nil {
		h.logger.ErrorContext(ctx, "failed to register donor",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, map[string]string{"donor_id": p.ID.String()})
}

// handleUpdate replaces an existing profile. The service re-syncs the geo
// index, so a moved or deactivated donor drops out of proximity search.
func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := domain.ParseDonorID(chi.URLParam(r, "donorID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if _, err := h.donors.Get(ctx, id); err != nil {
		shared.WriteError(w, err)
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	p, err := req.toProfile()
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	p.ID = id

	if err := h.donors.Register(ctx, p); err != nil {
		h.logger.ErrorContext(ctx, "failed to update donor",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseDonorID(chi.URLParam(r, "donorID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	p, err := h.donors.Get(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) handleEligibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := domain.ParseDonorID(chi.URLParam(r, "donorID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var asOf time.Time
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		asOf, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "as_of must be RFC3339"))
			return
		}
	}

	result, err := h.donors.EvaluateEligibility(ctx, id, asOf)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, result)
}
