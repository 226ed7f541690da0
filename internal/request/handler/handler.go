package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"hemolink/internal/inventory"
	"hemolink/internal/request"
	"hemolink/internal/transport/http/shared"
	"hemolink/pkg/domain"
	dErrors "hemolink/pkg/domain-errors"
	"hemolink/pkg/requestcontext"
)

// Service defines the lifecycle operations the transport layer needs.
type Service interface {
	Create(ctx context.Context, r *request.BloodRequest) error
	Get(ctx context.Context, id domain.RequestID) (*request.BloodRequest, error)
	Reserve(ctx context.Context, id domain.RequestID, bankID domain.BloodBankID, group domain.BloodGroup, units int) (*inventory.Reservation, error)
	Commit(ctx context.Context, id domain.RequestID) (*request.FulfillmentRecord, error)
	Release(ctx context.Context, id domain.RequestID) error
	Cancel(ctx context.Context, id domain.RequestID) error
}

// Handler handles blood request endpoints.
type Handler struct {
	logger   *slog.Logger
	requests Service
}

func New(requests Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, requests: requests}
}

// Register registers the request routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/requests", h.handleCreate)
	r.Get("/requests/{requestID}", h.handleGet)
	r.Post("/requests/{requestID}/reserve", h.handleReserve)
	r.Post("/requests/{requestID}/commit", h.handleCommit)
	r.Post("/requests/{requestID}/release", h.handleRelease)
	r.Post("/requests/{requestID}/cancel", h.handleCancel)
}

type createRequest struct {
	Hospital   string  `json:"hospital"`
	BloodGroup string  `json:"blood_group"`
	Units      int     `json:"units"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	Urgency    string  `json:"urgency"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	group, err := domain.ParseBloodGroup(req.BloodGroup)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	location, err := domain.ParsePoint(req.Lat, req.Lng)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	urgency, err := request.ParseUrgency(req.Urgency)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	br := &request.BloodRequest{
		Hospital:   req.Hospital,
		BloodGroup: group,
		Units:      req.Units,
		Location:   location,
		Urgency:    urgency,
	}

	if err := h.requests.Create(ctx, br); err != nil {
		h.logger.ErrorContext(ctx, "failed to create request",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, br)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	br, err := h.requests.Get(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, br)
}

type reserveRequest struct {
	BankID     string `json:"bank_id"`
	BloodGroup string `json:"blood_group"`
	Units      int    `json:"units"`
}

func (h *Handler) handleReserve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := domain.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	bankID, err := domain.ParseBloodBankID(req.BankID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	group, err := domain.ParseBloodGroup(req.BloodGroup)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	res, err := h.requests.Reserve(ctx, id, bankID, group, req.Units)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleCommit(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	record, err := h.requests.Commit(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	if err := h.requests.Release(r.Context(), id); err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]string{"status": string(request.StatusMatching)})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	if err := h.requests.Cancel(r.Context(), id); err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]string{"status": string(request.StatusCancelled)})
}
