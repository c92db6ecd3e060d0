package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"bazaar/api/internal/core/domain"
	"bazaar/api/internal/core/services"
)

// maxArtifactBytes caps a single build upload at 500 MiB. The router
// enforces the same limit on the raw body so the handler never buffers
// more than this.
const maxArtifactBytes = 500 << 20

type AppsHandler struct {
	apps *services.AppsService
}

func NewAppsHandler(apps *services.AppsService) *AppsHandler {
	return &AppsHandler{apps: apps}
}

type submitVersionForm struct {
	AppID              string `validate:"required,min=3,max=64"`
	Version            string `validate:"required,max=32"`
	Name               string `validate:"required,max=128"`
	Description        string `validate:"max=2048"`
	Category           string `validate:"max=64"`
	Changelog          string `validate:"max=4096"`
	MinPlatformVersion string `validate:"max=32"`
}

// SubmitVersion accepts a multipart build submission. Metadata travels as
// form fields next to the artifact under the "build_file" part.
func (h *AppsHandler) SubmitVersion(w http.ResponseWriter, r *http.Request) {
	caller, ok := domain.CallerFrom(r.Context())
	if !ok {
		HandleError(w, r, domain.Forbidden("missing caller identity"))
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		HandleError(w, r, domain.BadRequest("invalid multipart form"))
		return
	}

	form := submitVersionForm{
		AppID:              r.FormValue("app_id"),
		Version:            r.FormValue("version"),
		Name:               r.FormValue("name"),
		Description:        r.FormValue("description"),
		Category:           r.FormValue("category"),
		Changelog:          r.FormValue("changelog"),
		MinPlatformVersion: r.FormValue("min_platform_version"),
	}
	if err := validate.Struct(form); err != nil {
		HandleError(w, r, err)
		return
	}

	file, header, err := r.FormFile("build_file")
	if err != nil {
		HandleError(w, r, domain.BadRequest("build_file is required"))
		return
	}
	defer file.Close()

	if header.Size > maxArtifactBytes {
		HandleError(w, r, domain.BadRequest("build file exceeds the 500 MiB limit"))
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxArtifactBytes+1))
	if err != nil {
		HandleError(w, r, domain.BadRequest("failed to read build file"))
		return
	}
	if len(data) > maxArtifactBytes {
		HandleError(w, r, domain.BadRequest("build file exceeds the 500 MiB limit"))
		return
	}

	result, err := h.apps.SubmitVersion(r.Context(), caller.Subject, services.SubmitVersionInput{
		AppID:   form.AppID,
		Version: form.Version,
		Metadata: domain.AppMetadata{
			Name:         form.Name,
			Description:  form.Description,
			Category:     form.Category,
			Tags:         splitList(r.FormValue("tags")),
			IconURL:      r.FormValue("icon_url"),
			WebsiteURL:   r.FormValue("website_url"),
			SupportEmail: r.FormValue("support_email"),
		},
		Changelog:          form.Changelog,
		MinPlatformVersion: form.MinPlatformVersion,
		SupportedPlatforms: splitList(r.FormValue("supported_platforms")),
		Artifact: domain.Artifact{
			FileName:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		},
	})
	if err != nil {
		HandleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, result)
}

type setPublishedRequest struct {
	IsPublished *bool `json:"is_published" validate:"required"`
}

// SetPublished flips the publish flag for one of the caller's apps.
func (h *AppsHandler) SetPublished(w http.ResponseWriter, r *http.Request) {
	caller, ok := domain.CallerFrom(r.Context())
	if !ok {
		HandleError(w, r, domain.Forbidden("missing caller identity"))
		return
	}

	var req setPublishedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		HandleError(w, r, domain.BadRequest("invalid request body"))
		return
	}
	if err := validate.Struct(req); err != nil {
		HandleError(w, r, err)
		return
	}

	app, err := h.apps.SetPublished(r.Context(), caller.Subject, chi.URLParam(r, "appID"), *req.IsPublished)
	if err != nil {
		HandleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, app)
}

// Status reports publish state and version summary for one of the
// caller's apps.
func (h *AppsHandler) Status(w http.ResponseWriter, r *http.Request) {
	caller, ok := domain.CallerFrom(r.Context())
	if !ok {
		HandleError(w, r, domain.Forbidden("missing caller identity"))
		return
	}

	status, err := h.apps.Status(r.Context(), caller.Subject, chi.URLParam(r, "appID"))
	if err != nil {
		HandleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, status)
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
