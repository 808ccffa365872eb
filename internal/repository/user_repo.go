package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-realestate/internal/model"
)

const uniqueViolation = "23505"

const (
	publicUserColumns = `id, name, email, role, created_at, updated_at`
	secretUserColumns = `id, name, email, role, created_at, updated_at, password_hash, COALESCE(refresh_token, '')`
)

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Create(ctx context.Context, u model.User) error {
	if !u.Role.Valid() {
		return fmt.Errorf("create user: invalid role %q", u.Role)
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, name, email, password_hash, role, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.CreatedAt, u.UpdatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return model.ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string, includeSecrets bool) (model.User, error) {
	return r.findOne(ctx, "email = $1", strings.TrimSpace(email), includeSecrets)
}

func (r *UserRepository) FindByID(ctx context.Context, id string, includeSecrets bool) (model.User, error) {
	return r.findOne(ctx, "id = $1", id, includeSecrets)
}

// SetRefreshToken overwrites the single active refresh token. An empty token
// clears it.
func (r *UserRepository) SetRefreshToken(ctx context.Context, userID string, token string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET refresh_token = NULLIF($2, ''), updated_at = $3 WHERE id = $1`,
		userID, token, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set refresh token: %w", err)
	}
	return nil
}

// SwapRefreshToken replaces current with next only if current is still the
// stored value. It reports whether the swap happened.
func (r *UserRepository) SwapRefreshToken(ctx context.Context, userID string, current string, next string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET refresh_token = $3, updated_at = $4
		 WHERE id = $1 AND refresh_token = $2`,
		userID, current, next, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("swap refresh token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *UserRepository) findOne(ctx context.Context, where string, arg string, includeSecrets bool) (model.User, error) {
	columns := publicUserColumns
	if includeSecrets {
		columns = secretUserColumns
	}

	var u model.User
	dest := []any{&u.ID, &u.Name, &u.Email, &u.Role, &u.CreatedAt, &u.UpdatedAt}
	if includeSecrets {
		dest = append(dest, &u.PasswordHash, &u.RefreshToken)
	}

	err := r.pool.QueryRow(ctx, `SELECT `+columns+` FROM users WHERE `+where, arg).Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}
