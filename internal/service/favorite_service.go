package service

import (
	"context"
	"net/http"
	"strings"

	"go-realestate/internal/model"
	"go-realestate/pkg/apierror"
)

type FavoriteService struct {
	favorites FavoriteStore
	users     UserStore
}

func NewFavoriteService(favorites FavoriteStore, users UserStore) *FavoriteService {
	return &FavoriteService{favorites: favorites, users: users}
}

func (s *FavoriteService) List(ctx context.Context, actor model.PublicUser, ownerID string) ([]string, error) {
	if err := s.authorize(ctx, actor, ownerID); err != nil {
		return nil, err
	}
	return s.favorites.List(ctx, ownerID)
}

func (s *FavoriteService) Add(ctx context.Context, actor model.PublicUser, ownerID string, propertyID string) error {
	propertyID = strings.TrimSpace(propertyID)
	if propertyID == "" {
		return apierror.Validation(model.ErrValidation, map[string]string{"propertyId": "propertyId is required"})
	}
	if err := s.authorize(ctx, actor, ownerID); err != nil {
		return err
	}
	return s.favorites.Add(ctx, ownerID, propertyID)
}

func (s *FavoriteService) Remove(ctx context.Context, actor model.PublicUser, ownerID string, propertyID string) error {
	if err := s.authorize(ctx, actor, ownerID); err != nil {
		return err
	}
	return s.favorites.Remove(ctx, ownerID, strings.TrimSpace(propertyID))
}

// authorize lets users manage their own list and admins manage anyone's.
func (s *FavoriteService) authorize(ctx context.Context, actor model.PublicUser, ownerID string) error {
	if actor.ID == "" {
		return apierror.Unauthorized(model.ErrUnauthorized)
	}
	if actor.ID == ownerID {
		return nil
	}
	if actor.Role != model.RoleAdmin {
		return apierror.Wrap(model.ErrForbidden, apierror.CodeForbidden, "access denied", http.StatusForbidden)
	}

	if _, err := s.users.FindByID(ctx, ownerID, false); err != nil {
		if isNotFound(err) {
			return apierror.Wrap(err, apierror.CodeNotFound, "user not found", http.StatusNotFound)
		}
		return err
	}
	return nil
}
