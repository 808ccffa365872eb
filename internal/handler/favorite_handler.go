package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"go-realestate/internal/middleware"
	"go-realestate/internal/model"
	"go-realestate/internal/service"
	"go-realestate/pkg/apierror"
)

type FavoriteHandler struct {
	service *service.FavoriteService
}

func NewFavoriteHandler(service *service.FavoriteService) *FavoriteHandler {
	return &FavoriteHandler{service: service}
}

func (h *FavoriteHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, apierror.Unauthorized(model.ErrUnauthorized))
		return
	}

	ids, err := h.service.List(r.Context(), actor, chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.FavoriteList{PropertyIDs: ids})
}

func (h *FavoriteHandler) Add(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, apierror.Unauthorized(model.ErrUnauthorized))
		return
	}

	var payload model.FavoriteRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	propertyID := strings.TrimSpace(payload.PropertyID)
	if err := h.service.Add(r.Context(), actor, chi.URLParam(r, "userID"), propertyID); err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusCreated, model.Favorite{PropertyID: propertyID})
}

func (h *FavoriteHandler) Remove(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, apierror.Unauthorized(model.ErrUnauthorized))
		return
	}

	if err := h.service.Remove(r.Context(), actor, chi.URLParam(r, "userID"), chi.URLParam(r, "propertyID")); err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]bool{"removed": true})
}
