package handler

import (
	"net/http"

	"go-realestate/internal/middleware"
	"go-realestate/internal/model"
	"go-realestate/internal/service"
	"go-realestate/pkg/apierror"
)

type AuthHandler struct {
	service *service.AuthService
}

func NewAuthHandler(service *service.AuthService) *AuthHandler {
	return &AuthHandler{service: service}
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var payload model.SignupRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.service.Signup(r.Context(), payload)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusCreated, result)
}

func (h *AuthHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var payload model.SigninRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.service.Signin(r.Context(), payload)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, result)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var payload model.RefreshRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.service.Refresh(r.Context(), payload.RefreshToken)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeSuccess(w, http.StatusOK, result)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, apierror.Unauthorized(model.ErrUnauthorized))
		return
	}

	w.Header().Set("Cache-Control", "private, max-age=300")
	w.Header().Set("Vary", "Authorization")
	writeSuccess(w, http.StatusOK, user)
}

// Logout clears the caller's session. The bearer identity wins when present;
// otherwise a refresh token in the body is honoured. Either way the response
// is success.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if user, ok := middleware.UserFromContext(r.Context()); ok {
		if err := h.service.Logout(r.Context(), user.ID); err != nil {
			writeError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusOK, model.LogoutResult{Success: true})
		return
	}

	var payload model.RefreshRequest
	_ = decodeJSON(w, r, &payload)

	if payload.RefreshToken != "" {
		if err := h.service.LogoutWithRefreshToken(r.Context(), payload.RefreshToken); err != nil {
			writeError(w, r, err)
			return
		}
	}

	writeSuccess(w, http.StatusOK, model.LogoutResult{Success: true})
}
