package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keygate/keygate/internal/gate"
	"github.com/keygate/keygate/internal/middleware"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/repository"
	"github.com/keygate/keygate/internal/service"
)

// TenantHandler handles the administrative tenant endpoints.
type TenantHandler struct {
	logger  *slog.Logger
	service *service.TenantService
}

// NewTenantHandler creates a new TenantHandler.
func NewTenantHandler(logger *slog.Logger, svc *service.TenantService) *TenantHandler {
	return &TenantHandler{logger: logger, service: svc}
}

// Create handles POST /v1/admin/tenants.
func (h *TenantHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.TenantCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "validation_error", "Invalid request body.", nil)
		return
	}

	resp, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to create tenant")
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// List handles GET /v1/admin/tenants. Hidden individual tenants never
// appear here.
func (h *TenantHandler) List(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.service.List(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "failed to list tenants")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"tenants": tenants})
}

// Get handles GET /v1/admin/tenants/{slug}.
func (h *TenantHandler) Get(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if slug == "" {
		middleware.WriteError(w, http.StatusBadRequest, "validation_error", "Tenant slug is required.", nil)
		return
	}

	tenant, err := h.service.Get(r.Context(), slug)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to get tenant")
		return
	}

	writeJSON(w, http.StatusOK, tenant)
}

// tierChangeRequest is the body for tier changes.
type tierChangeRequest struct {
	Tier string `json:"tier"`
}

// ChangeTier handles PUT /v1/admin/tenants/{slug}/tier.
func (h *TenantHandler) ChangeTier(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if slug == "" {
		middleware.WriteError(w, http.StatusBadRequest, "validation_error", "Tenant slug is required.", nil)
		return
	}

	var req tierChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "validation_error", "Invalid request body.", nil)
		return
	}

	tenant, err := h.service.ChangeTier(r.Context(), slug, req.Tier)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to change tenant tier")
		return
	}

	writeJSON(w, http.StatusOK, tenant)
}

// writeServiceError maps service and store errors onto the wire envelope.
func (h *TenantHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, logMsg string) {
	switch {
	case errors.Is(err, service.ErrInvalidSlug),
		errors.Is(err, service.ErrInvalidTier),
		errors.Is(err, service.ErrNameMissing):
		middleware.WriteError(w, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, repository.ErrSlugTaken):
		middleware.WriteError(w, http.StatusConflict, "conflict", "Tenant slug is already taken.", nil)
	case errors.Is(err, repository.ErrTenantNotFound):
		middleware.WriteError(w, http.StatusNotFound, "not_found", "Tenant not found.", nil)
	default:
		h.logger.Error(logMsg,
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.GetRequestID(r.Context())),
		)
		middleware.WriteError(w, http.StatusInternalServerError, gate.ErrorTypeStore,
			"The credential store could not complete the request.", nil)
	}
}
