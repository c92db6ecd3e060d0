package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"bazaar/api/internal/core/domain"
	"bazaar/api/internal/core/services"
)

type InstallationsHandler struct {
	installations *services.InstallationsService
}

func NewInstallationsHandler(installations *services.InstallationsService) *InstallationsHandler {
	return &InstallationsHandler{installations: installations}
}

type installRequest struct {
	AppID   string `json:"app_id" validate:"required,min=3,max=64"`
	Version string `json:"version" validate:"omitempty,max=32"`
}

// Install starts an installation for the caller. Version is optional;
// when absent the latest completed version is installed.
func (h *InstallationsHandler) Install(w http.ResponseWriter, r *http.Request) {
	caller, ok := domain.CallerFrom(r.Context())
	if !ok {
		HandleError(w, r, domain.Forbidden("missing caller identity"))
		return
	}

	var req installRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		HandleError(w, r, domain.BadRequest("invalid request body"))
		return
	}
	if err := validate.Struct(req); err != nil {
		HandleError(w, r, err)
		return
	}

	result, err := h.installations.Install(r.Context(), caller.Subject, req.AppID, req.Version)
	if err != nil {
		HandleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, result)
}

type updateRequest struct {
	AppID string `json:"app_id" validate:"required,min=3,max=64"`
}

// Update moves an installed app to its latest completed version.
func (h *InstallationsHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller, ok := domain.CallerFrom(r.Context())
	if !ok {
		HandleError(w, r, domain.Forbidden("missing caller identity"))
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		HandleError(w, r, domain.BadRequest("invalid request body"))
		return
	}
	if err := validate.Struct(req); err != nil {
		HandleError(w, r, err)
		return
	}

	result, err := h.installations.Update(r.Context(), caller.Subject, req.AppID)
	if err != nil {
		HandleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// MarkComplete settles an in-flight install or update into installed.
func (h *InstallationsHandler) MarkComplete(w http.ResponseWriter, r *http.Request) {
	caller, ok := domain.CallerFrom(r.Context())
	if !ok {
		HandleError(w, r, domain.Forbidden("missing caller identity"))
		return
	}

	installationID, err := installationIDParam(r)
	if err != nil {
		HandleError(w, r, err)
		return
	}

	row, err := h.installations.MarkComplete(r.Context(), caller.Subject, installationID)
	if err != nil {
		HandleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, row)
}

type uninstallRequest struct {
	AppID string `json:"app_id" validate:"required,min=3,max=64"`
}

// Uninstall soft-deletes the caller's installation of the given app.
func (h *InstallationsHandler) Uninstall(w http.ResponseWriter, r *http.Request) {
	caller, ok := domain.CallerFrom(r.Context())
	if !ok {
		HandleError(w, r, domain.Forbidden("missing caller identity"))
		return
	}

	var req uninstallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		HandleError(w, r, domain.BadRequest("invalid request body"))
		return
	}
	if err := validate.Struct(req); err != nil {
		HandleError(w, r, err)
		return
	}

	result, err := h.installations.Uninstall(r.Context(), caller.Subject, req.AppID)
	if err != nil {
		HandleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// ListInstalled returns the caller's currently installed apps with update
// annotations.
func (h *InstallationsHandler) ListInstalled(w http.ResponseWriter, r *http.Request) {
	caller, ok := domain.CallerFrom(r.Context())
	if !ok {
		HandleError(w, r, domain.Forbidden("missing caller identity"))
		return
	}

	rows, err := h.installations.ListInstalled(r.Context(), caller.Subject)
	if err != nil {
		HandleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"installations": rows, "count": len(rows)})
}

// ListAll returns every ledger row of the caller, history included.
func (h *InstallationsHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	caller, ok := domain.CallerFrom(r.Context())
	if !ok {
		HandleError(w, r, domain.Forbidden("missing caller identity"))
		return
	}

	rows, err := h.installations.ListAll(r.Context(), caller.Subject)
	if err != nil {
		HandleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"installations": rows, "count": len(rows)})
}

// Details returns one installation with a freshly issued download URL.
func (h *InstallationsHandler) Details(w http.ResponseWriter, r *http.Request) {
	caller, ok := domain.CallerFrom(r.Context())
	if !ok {
		HandleError(w, r, domain.Forbidden("missing caller identity"))
		return
	}

	installationID, err := installationIDParam(r)
	if err != nil {
		HandleError(w, r, err)
		return
	}

	details, err := h.installations.Details(r.Context(), caller.Subject, installationID)
	if err != nil {
		HandleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, details)
}

// UpdateAvailable reports whether a newer version exists for one of the
// caller's apps.
func (h *InstallationsHandler) UpdateAvailable(w http.ResponseWriter, r *http.Request) {
	caller, ok := domain.CallerFrom(r.Context())
	if !ok {
		HandleError(w, r, domain.Forbidden("missing caller identity"))
		return
	}

	appID := chi.URLParam(r, "appID")
	available, err := h.installations.UpdateAvailable(r.Context(), caller.Subject, appID)
	if err != nil {
		HandleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"app_id": appID, "update_available": available})
}

func installationIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "installationID"), 10, 64)
	if err != nil {
		return 0, domain.BadRequest("invalid installation id")
	}
	return id, nil
}
