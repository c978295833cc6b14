package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/opportunity-scanner/internal/models"
)

// NicheRepository handles niche persistence
type NicheRepository struct {
	db *PostgresDB
}

// NewNicheRepository creates a new niche repository
func NewNicheRepository(db *PostgresDB) *NicheRepository {
	return &NicheRepository{db: db}
}

// Create creates a new niche
func (r *NicheRepository) Create(ctx context.Context, niche *models.Niche) error {
	if niche.ID == "" {
		niche.ID = uuid.New().String()
	}

	now := time.Now()
	niche.CreatedAt = now
	niche.UpdatedAt = now

	query := `
		INSERT INTO niches (id, user_id, name, keywords, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		niche.ID,
		niche.UserID,
		niche.Name,
		niche.Keywords,
		niche.IsActive,
		niche.CreatedAt,
		niche.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create niche: %w", err)
	}

	return nil
}

// GetByID retrieves a niche owned by the given user
func (r *NicheRepository) GetByID(ctx context.Context, userID, id string) (*models.Niche, error) {
	query := `
		SELECT id, user_id, name, keywords, is_active, created_at, updated_at
		FROM niches
		WHERE id = $1 AND user_id = $2
	`

	var niche models.Niche
	err := r.db.Pool().QueryRow(ctx, query, id, userID).Scan(
		&niche.ID,
		&niche.UserID,
		&niche.Name,
		&niche.Keywords,
		&niche.IsActive,
		&niche.CreatedAt,
		&niche.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("niche %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get niche: %w", err)
	}

	return &niche, nil
}

// ListByUser retrieves a user's niches, optionally only active ones
func (r *NicheRepository) ListByUser(ctx context.Context, userID string, activeOnly bool) ([]*models.Niche, error) {
	query := `
		SELECT id, user_id, name, keywords, is_active, created_at, updated_at
		FROM niches
		WHERE user_id = $1
	`
	if activeOnly {
		query += ` AND is_active = true`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list niches: %w", err)
	}
	defer rows.Close()

	var niches []*models.Niche
	for rows.Next() {
		var niche models.Niche
		err := rows.Scan(
			&niche.ID,
			&niche.UserID,
			&niche.Name,
			&niche.Keywords,
			&niche.IsActive,
			&niche.CreatedAt,
			&niche.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan niche: %w", err)
		}
		niches = append(niches, &niche)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating niches: %w", err)
	}

	return niches, nil
}

// Update updates a niche's name, keywords and active flag
func (r *NicheRepository) Update(ctx context.Context, niche *models.Niche) error {
	niche.UpdatedAt = time.Now()

	query := `
		UPDATE niches
		SET name = $3, keywords = $4, is_active = $5, updated_at = $6
		WHERE id = $1 AND user_id = $2
	`

	result, err := r.db.Pool().Exec(ctx, query,
		niche.ID,
		niche.UserID,
		niche.Name,
		niche.Keywords,
		niche.IsActive,
		niche.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update niche: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("niche %s: %w", niche.ID, ErrNotFound)
	}

	return nil
}

// Delete deletes a niche owned by the given user
func (r *NicheRepository) Delete(ctx context.Context, userID, id string) error {
	query := `DELETE FROM niches WHERE id = $1 AND user_id = $2`

	result, err := r.db.Pool().Exec(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete niche: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("niche %s: %w", id, ErrNotFound)
	}

	return nil
}

// CountByUser returns the number of niches a user has
func (r *NicheRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM niches WHERE user_id = $1`

	err := r.db.Pool().QueryRow(ctx, query, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count niches: %w", err)
	}

	return count, nil
}
