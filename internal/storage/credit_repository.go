package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/opportunity-scanner/internal/models"
	"github.com/opportunity-scanner/internal/types"
)

// CreditRepository handles credit ledger persistence. All mutations of an
// existing record go through a row-locked transaction owned by the caller.
type CreditRepository struct {
	db *PostgresDB
}

// NewCreditRepository creates a new credit repository
func NewCreditRepository(db *PostgresDB) *CreditRepository {
	return &CreditRepository{db: db}
}

// BeginTx starts a new transaction
func (r *CreditRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.db.Pool().Begin(ctx)
}

// EnsureRecord inserts a fresh credit record unless one already exists.
// Concurrent callers race safely: exactly one insert wins, the rest no-op.
func (r *CreditRepository) EnsureRecord(ctx context.Context, userID string, tier types.UserTier, dailyCredits int) error {
	now := time.Now()
	query := `
		INSERT INTO user_credits (user_id, tier, current_credits, daily_credits, daily_credits_used, last_refill, created_at, updated_at)
		VALUES ($1, $2, $3, $3, 0, $4, $4, $4)
		ON CONFLICT (user_id) DO NOTHING
	`

	_, err := r.db.Pool().Exec(ctx, query, userID, tier, dailyCredits, now)
	if err != nil {
		return fmt.Errorf("failed to ensure credit record: %w", err)
	}

	return nil
}

// Get retrieves the credit record for a user
func (r *CreditRepository) Get(ctx context.Context, userID string) (*models.CreditRecord, error) {
	return r.get(ctx, r.db.Pool(), userID, "")
}

// GetForUpdate retrieves the credit record inside tx with a row lock held
// until the transaction ends.
func (r *CreditRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, userID string) (*models.CreditRecord, error) {
	return r.get(ctx, tx, userID, " FOR UPDATE")
}

type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *CreditRepository) get(ctx context.Context, q pgxQuerier, userID, suffix string) (*models.CreditRecord, error) {
	query := `
		SELECT user_id, tier, current_credits, daily_credits, daily_credits_used, last_refill, created_at, updated_at
		FROM user_credits
		WHERE user_id = $1` + suffix

	var rec models.CreditRecord
	err := q.QueryRow(ctx, query, userID).Scan(
		&rec.UserID,
		&rec.Tier,
		&rec.CurrentCredits,
		&rec.DailyCredits,
		&rec.DailyCreditsUsed,
		&rec.LastRefill,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("credit record %s: %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get credit record: %w", err)
	}

	return &rec, nil
}

// UpdateTx writes the mutable ledger fields inside tx
func (r *CreditRepository) UpdateTx(ctx context.Context, tx pgx.Tx, rec *models.CreditRecord) error {
	rec.UpdatedAt = time.Now()

	query := `
		UPDATE user_credits
		SET tier = $2, current_credits = $3, daily_credits = $4, daily_credits_used = $5, last_refill = $6, updated_at = $7
		WHERE user_id = $1
	`

	result, err := tx.Exec(ctx, query,
		rec.UserID,
		rec.Tier,
		rec.CurrentCredits,
		rec.DailyCredits,
		rec.DailyCreditsUsed,
		rec.LastRefill,
		rec.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update credit record: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("credit record %s: %w", rec.UserID, ErrNotFound)
	}

	return nil
}
