package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"hemolink/internal/inventory"
	"hemolink/internal/transport/http/shared"
	"hemolink/pkg/domain"
	dErrors "hemolink/pkg/domain-errors"
	pstrings "hemolink/pkg/platform/strings"
	"hemolink/pkg/requestcontext"
)

// Service defines the ledger operations the transport layer needs.
type Service interface {
	RegisterBank(ctx context.Context, b *inventory.BloodBank) error
	GetBank(ctx context.Context, id domain.BloodBankID) (*inventory.BloodBank, error)
	Availability(ctx context.Context, bankID domain.BloodBankID, groups []domain.BloodGroup) (map[domain.BloodGroup]int, error)
	Restock(ctx context.Context, bankID domain.BloodBankID, group domain.BloodGroup, units int) (*inventory.InventoryRecord, error)
	SetCapacity(ctx context.Context, bankID domain.BloodBankID, group domain.BloodGroup, capacity int) error
}

// Handler handles blood bank and inventory endpoints.
type Handler struct {
	logger *slog.Logger
	ledger Service
}

func New(ledger Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, ledger: ledger}
}

// Register registers the inventory routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/banks", h.handleRegisterBank)
	r.Get("/banks/{bankID}", h.handleGetBank)
	r.Get("/banks/{bankID}/availability", h.handleAvailability)
	r.Post("/banks/{bankID}/restock", h.handleRestock)
	r.Put("/banks/{bankID}/capacity", h.handleSetCapacity)
}

type registerBankRequest struct {
	Name   string  `json:"name"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Active *bool   `json:"active"`
}

func (h *Handler) handleRegisterBank(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerBankRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	location, err := domain.ParsePoint(req.Lat, req.Lng)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	b := &inventory.BloodBank{
		Name:     req.Name,
		Location: location,
		Active:   active,
	}

	if err := h.ledger.RegisterBank(ctx, b); err != nil {
		h.logger.ErrorContext(ctx, "failed to register blood bank",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, map[string]string{"bank_id": b.ID.String()})
}

func (h *Handler) handleGetBank(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseBloodBankID(chi.URLParam(r, "bankID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	b, err := h.ledger.GetBank(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, b)
}

// handleAvailability reports available units per group. With no ?groups=
// filter, all eight groups are reported.
func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseBloodBankID(chi.URLParam(r, "bankID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	groups := domain.Groups
	if raw := r.URL.Query().Get("groups"); raw != "" {
		groups = groups[:0:0]
		for _, part := range pstrings.DedupeAndTrim(strings.Split(raw, ",")) {
			g, err := domain.ParseBloodGroup(part)
			if err != nil {
				shared.WriteError(w, err)
				return
			}
			groups = append(groups, g)
		}
	}

	avail, err := h.ledger.Availability(r.Context(), id, groups)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"bank_id": id.String(), "available": avail})
}

type stockRequest struct {
	BloodGroup string `json:"blood_group"`
	Units      int    `json:"units"`
}

func (h *Handler) handleRestock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := domain.ParseBloodBankID(chi.URLParam(r, "bankID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req stockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	group, err := domain.ParseBloodGroup(req.BloodGroup)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	rec, err := h.ledger.Restock(ctx, id, group, req.Units)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, rec)
}

type capacityRequest struct {
	BloodGroup string `json:"blood_group"`
	Capacity   int    `json:"capacity"`
}

func (h *Handler) handleSetCapacity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := domain.ParseBloodBankID(chi.URLParam(r, "bankID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req capacityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	group, err := domain.ParseBloodGroup(req.BloodGroup)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	if err := h.ledger.SetCapacity(ctx, id, group, req.Capacity); err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"bank_id":     id.String(),
		"blood_group": group.String(),
		"capacity":    req.Capacity,
	})
}
