package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"go-realestate/internal/model"
)

// PasswordCost is the bcrypt work factor for every stored password.
const PasswordCost = 10

// CredentialStore owns password hashing on top of a UserStore. Plaintext
// passwords never reach the store.
type CredentialStore struct {
	users UserStore
	now   func() time.Time
}

func NewCredentialStore(users UserStore) *CredentialStore {
	return &CredentialStore{users: users, now: time.Now}
}

func (c *CredentialStore) Create(ctx context.Context, name string, email string, password string) (model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := c.now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         model.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := c.users.Create(ctx, user); err != nil {
		return model.User{}, err
	}

	user.PasswordHash = ""
	return user, nil
}

// FindByEmail returns ErrUserNotFound when no account matches. Hash and
// refresh token are populated only when includeSecrets is set.
func (c *CredentialStore) FindByEmail(ctx context.Context, email string, includeSecrets bool) (model.User, error) {
	return c.users.FindByEmail(ctx, email, includeSecrets)
}

func (c *CredentialStore) FindByID(ctx context.Context, id string, includeSecrets bool) (model.User, error) {
	return c.users.FindByID(ctx, id, includeSecrets)
}

// VerifyPassword compares against a user loaded with secrets. bcrypt's
// comparison runs in constant time with respect to the hash contents.
func (c *CredentialStore) VerifyPassword(user model.User, password string) bool {
	if user.PasswordHash == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password))
	return err == nil
}

// SetRefreshToken persists token as the user's only active refresh token.
// An empty token clears the session.
func (c *CredentialStore) SetRefreshToken(ctx context.Context, userID string, token string) error {
	return c.users.SetRefreshToken(ctx, userID, token)
}

func (c *CredentialStore) RotateRefreshToken(ctx context.Context, userID string, current string, next string) error {
	swapped, err := c.users.SwapRefreshToken(ctx, userID, current, next)
	if err != nil {
		return err
	}
	if !swapped {
		return fmt.Errorf("%w: refresh token already rotated", model.ErrInvalidToken)
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, model.ErrUserNotFound)
}
