package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"bazaar/api/internal/core/domain"
)

// Use a single instance of Validate, it caches struct info.
var validate = validator.New()

type errorResponse struct {
	Message string `json:"message"`
}

// HandleError maps core failures onto HTTP statuses in one place so the
// handlers never hand-pick status codes for domain errors.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		respondJSON(w, http.StatusBadRequest, errorResponse{Message: "validation failed: " + ve.Error()})
		return
	}

	var de *domain.Error
	if !errors.As(err, &de) {
		respondJSON(w, http.StatusInternalServerError, errorResponse{Message: "internal server error"})
		return
	}

	status := http.StatusInternalServerError
	switch de.Kind {
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindConflict:
		status = http.StatusConflict
	case domain.KindBadRequest:
		status = http.StatusBadRequest
	case domain.KindForbidden:
		status = http.StatusForbidden
	case domain.KindUpstream:
		status = http.StatusBadGateway
	}
	respondJSON(w, status, errorResponse{Message: de.Message})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
