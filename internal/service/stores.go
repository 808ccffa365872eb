package service

import (
	"context"

	"go-realestate/internal/model"
)

// UserStore is implemented by repository.UserRepository (Postgres) and
// repository.MemoryUserRepository.
type UserStore interface {
	Create(ctx context.Context, u model.User) error
	FindByEmail(ctx context.Context, email string, includeSecrets bool) (model.User, error)
	FindByID(ctx context.Context, id string, includeSecrets bool) (model.User, error)
	SetRefreshToken(ctx context.Context, userID string, token string) error
	SwapRefreshToken(ctx context.Context, userID string, current string, next string) (bool, error)
}

type FavoriteStore interface {
	List(ctx context.Context, userID string) ([]string, error)
	Add(ctx context.Context, userID string, propertyID string) error
	Remove(ctx context.Context, userID string, propertyID string) error
}
