package handlers

import (
	"encoding/json"
	"net/http"

	"bazaar/api/internal/core/domain"
	"bazaar/api/internal/core/services"
)

type AuthHandler struct {
	auth *services.AuthService
}

func NewAuthHandler(auth *services.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginResponse struct {
	Token string `json:"token"`
	Actor string `json:"actor"`
}

// Login returns a handler bound to one actor type so the publisher and
// merchant routes stay separate surfaces.
func (h *AuthHandler) Login(actor domain.ActorType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			HandleError(w, r, domain.BadRequest("invalid request body"))
			return
		}
		if err := validate.Struct(req); err != nil {
			HandleError(w, r, err)
			return
		}

		token, err := h.auth.Login(r.Context(), actor, req.Email, req.Password)
		if err != nil {
			HandleError(w, r, err)
			return
		}

		respondJSON(w, http.StatusOK, loginResponse{Token: token, Actor: string(actor)})
	}
}
