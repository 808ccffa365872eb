package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go-realestate/internal/model"
)

// MemoryUserRepository keeps users in process. It backs STORE_DRIVER=memory
// and the service tests, and mirrors the Postgres schema rules: secrets are
// only returned when explicitly requested, roles are checked, and deleting a
// user drops the favorites of a linked favorites repository.
type MemoryUserRepository struct {
	mu        sync.RWMutex
	byID      map[string]model.User
	byEmail   map[string]string
	favorites *MemoryFavoriteRepository
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:    map[string]model.User{},
		byEmail: map[string]string{},
	}
}

// CascadeTo links the favorites repository whose rows belong to these users.
func (r *MemoryUserRepository) CascadeTo(favorites *MemoryFavoriteRepository) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.favorites = favorites
}

func (r *MemoryUserRepository) Create(_ context.Context, u model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[u.Email]; exists {
		return model.ErrDuplicateEmail
	}
	if !u.Role.Valid() {
		return fmt.Errorf("create user: invalid role %q", u.Role)
	}

	r.byID[u.ID] = u
	r.byEmail[u.Email] = u.ID
	return nil
}

func (r *MemoryUserRepository) FindByEmail(_ context.Context, email string, includeSecrets bool) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.byEmail[strings.TrimSpace(email)]
	if !exists {
		return model.User{}, model.ErrUserNotFound
	}
	return project(r.byID[id], includeSecrets), nil
}

func (r *MemoryUserRepository) FindByID(_ context.Context, id string, includeSecrets bool) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, exists := r.byID[id]
	if !exists {
		return model.User{}, model.ErrUserNotFound
	}
	return project(u, includeSecrets), nil
}

func (r *MemoryUserRepository) SetRefreshToken(_ context.Context, userID string, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, exists := r.byID[userID]
	if !exists {
		return nil
	}
	u.RefreshToken = token
	u.UpdatedAt = time.Now().UTC()
	r.byID[userID] = u
	return nil
}

func (r *MemoryUserRepository) SwapRefreshToken(_ context.Context, userID string, current string, next string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, exists := r.byID[userID]
	if !exists || current == "" || u.RefreshToken != current {
		return false, nil
	}
	u.RefreshToken = next
	u.UpdatedAt = time.Now().UTC()
	r.byID[userID] = u
	return true, nil
}

// Delete removes a user together with their favorites. Used by tests that
// need a token whose subject is gone.
func (r *MemoryUserRepository) Delete(_ context.Context, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, exists := r.byID[id]
	if !exists {
		return
	}
	delete(r.byEmail, u.Email)
	delete(r.byID, id)
	if r.favorites != nil {
		r.favorites.deleteUser(id)
	}
}

func project(u model.User, includeSecrets bool) model.User {
	if !includeSecrets {
		u.PasswordHash = ""
		u.RefreshToken = ""
	}
	return u
}

type MemoryFavoriteRepository struct {
	mu     sync.RWMutex
	byUser map[string][]string
}

func NewMemoryFavoriteRepository() *MemoryFavoriteRepository {
	return &MemoryFavoriteRepository{byUser: map[string][]string{}}
}

func (r *MemoryFavoriteRepository) List(_ context.Context, userID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.byUser[userID]))
	copy(out, r.byUser[userID])
	return out, nil
}

func (r *MemoryFavoriteRepository) Add(_ context.Context, userID string, propertyID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.byUser[userID] {
		if id == propertyID {
			return nil
		}
	}
	r.byUser[userID] = append(r.byUser[userID], propertyID)
	return nil
}

func (r *MemoryFavoriteRepository) Remove(_ context.Context, userID string, propertyID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := r.byUser[userID]
	for i, id := range ids {
		if id == propertyID {
			r.byUser[userID] = append(ids[:i:i], ids[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *MemoryFavoriteRepository) deleteUser(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.byUser, userID)
}
