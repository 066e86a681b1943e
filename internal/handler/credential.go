package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"strconv"

	"github.com/keygate/keygate/internal/gate"
	"github.com/keygate/keygate/internal/middleware"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/repository"
	"github.com/keygate/keygate/internal/service"
)

// CredentialHandler handles the administrative credential endpoints.
type CredentialHandler struct {
	logger  *slog.Logger
	service *service.CredentialService
}

// NewCredentialHandler creates a new CredentialHandler.
func NewCredentialHandler(logger *slog.Logger, svc *service.CredentialService) *CredentialHandler {
	return &CredentialHandler{logger: logger, service: svc}
}

// Create handles POST /v1/admin/credentials.
// The response carries the plaintext key exactly once.
func (h *CredentialHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CredentialCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "validation_error", "Invalid request body.", nil)
		return
	}

	resp, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to create credential")
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// List handles GET /v1/admin/credentials?tenant=<slug>.
func (h *CredentialHandler) List(w http.ResponseWriter, r *http.Request) {
	slug := r.URL.Query().Get("tenant")
	if slug == "" {
		middleware.WriteError(w, http.StatusBadRequest, "validation_error", "Query parameter 'tenant' is required.", nil)
		return
	}

	creds, err := h.service.List(r.Context(), slug)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to list credentials")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"credentials": creds})
}

// Revoke handles DELETE /v1/admin/credentials/{credential_id}.
// Revoking twice returns 204 both times.
func (h *CredentialHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "credential_id")
	if id == "" {
		middleware.WriteError(w, http.StatusBadRequest, "validation_error", "Credential ID is required.", nil)
		return
	}

	if err := h.service.Revoke(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err, "failed to revoke credential")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Rotate handles POST /v1/admin/credentials/{credential_id}/rotate.
func (h *CredentialHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "credential_id")
	if id == "" {
		middleware.WriteError(w, http.StatusBadRequest, "validation_error", "Credential ID is required.", nil)
		return
	}

	resp, err := h.service.Rotate(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to rotate credential")
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// Usage handles GET /v1/admin/credentials/{credential_id}/usage?days=N.
func (h *CredentialHandler) Usage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "credential_id")
	if id == "" {
		middleware.WriteError(w, http.StatusBadRequest, "validation_error", "Credential ID is required.", nil)
		return
	}

	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "validation_error", "Query parameter 'days' must be an integer.", nil)
			return
		}
		days = parsed
	}

	stats, err := h.service.UsageStats(r.Context(), id, days)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to load usage stats")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"credential_id": id,
		"daily":         stats,
	})
}

// Cleanup handles POST /v1/admin/credentials/cleanup?older_than_days=N.
func (h *CredentialHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	days := 0
	if raw := r.URL.Query().Get("older_than_days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			middleware.WriteError(w, http.StatusBadRequest, "validation_error", "Query parameter 'older_than_days' must be a non-negative integer.", nil)
			return
		}
		days = parsed
	}

	deleted, err := h.service.Cleanup(r.Context(), days)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to clean up credentials")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

// writeServiceError maps service and store errors onto the wire envelope.
func (h *CredentialHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, logMsg string) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrInvalidScope),
		errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrInvalidExpiry),
		errors.Is(err, service.ErrInvalidStatsDays):
		middleware.WriteError(w, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, service.ErrTenantInactive):
		middleware.WriteError(w, http.StatusConflict, "conflict", "Tenant is deactivated.", nil)
	case errors.Is(err, repository.ErrTenantLimitExceeded):
		middleware.WriteError(w, http.StatusForbidden, "tenant_limit_exceeded",
			"Tenant is at its tier's active credential limit.", nil)
	case errors.Is(err, repository.ErrTenantNotFound):
		middleware.WriteError(w, http.StatusNotFound, "not_found", "Tenant not found.", nil)
	case errors.Is(err, repository.ErrCredentialNotFound):
		middleware.WriteError(w, http.StatusNotFound, "not_found", "Credential not found.", nil)
	default:
		h.logger.Error(logMsg,
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.GetRequestID(r.Context())),
		)
		middleware.WriteError(w, http.StatusInternalServerError, gate.ErrorTypeStore,
			"The credential store could not complete the request.", nil)
	}
}
