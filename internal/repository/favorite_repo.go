package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type FavoriteRepository struct {
	pool *pgxpool.Pool
}

func NewFavoriteRepository(pool *pgxpool.Pool) *FavoriteRepository {
	return &FavoriteRepository{pool: pool}
}

func (r *FavoriteRepository) List(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT property_id FROM user_favorites WHERE user_id = $1 ORDER BY created_at, property_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan favorite: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *FavoriteRepository) Add(ctx context.Context, userID string, propertyID string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_favorites (user_id, property_id, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, property_id) DO NOTHING`,
		userID, propertyID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("add favorite: %w", err)
	}
	return nil
}

func (r *FavoriteRepository) Remove(ctx context.Context, userID string, propertyID string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM user_favorites WHERE user_id = $1 AND property_id = $2`, userID, propertyID)
	if err != nil {
		return fmt.Errorf("remove favorite: %w", err)
	}
	return nil
}
