package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"bazaar/api/internal/core/domain"
)

type CatalogHandler struct {
	catalog domain.CatalogRepository
}

func NewCatalogHandler(catalog domain.CatalogRepository) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// ListApps serves the public store listing with paging, category and
// search filters.
func (h *CatalogHandler) ListApps(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.CatalogFilter{
		Category: q.Get("category"),
		Search:   q.Get("search"),
	}
	if page, err := strconv.Atoi(q.Get("page")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = limit
	}

	apps, total, err := h.catalog.ListPublished(r.Context(), filter)
	if err != nil {
		HandleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"apps":  apps,
		"total": total,
	})
}

// AppDetails serves one published app with its version history.
func (h *CatalogHandler) AppDetails(w http.ResponseWriter, r *http.Request) {
	details, err := h.catalog.AppDetails(r.Context(), chi.URLParam(r, "appID"))
	if err != nil {
		HandleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, details)
}

// Categories lists the distinct categories of published apps.
func (h *CatalogHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.Categories(r.Context())
	if err != nil {
		HandleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"categories": categories})
}
