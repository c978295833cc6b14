package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/opportunity-scanner/internal/config"
	apperrors "github.com/opportunity-scanner/internal/errors"
	"github.com/opportunity-scanner/internal/logging"
	"github.com/opportunity-scanner/internal/models"
	"github.com/opportunity-scanner/internal/storage"
	"github.com/opportunity-scanner/internal/types"
)

// CreditStore is the persistence surface the ledger needs
type CreditStore interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
	EnsureRecord(ctx context.Context, userID string, tier types.UserTier, dailyCredits int) error
	Get(ctx context.Context, userID string) (*models.CreditRecord, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, userID string) (*models.CreditRecord, error)
	UpdateTx(ctx context.Context, tx pgx.Tx, rec *models.CreditRecord) error
}

// BalanceCache caches refill-checked balance projections
type BalanceCache interface {
	GenerateBalanceKey(userID string) string
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
	InvalidateBalance(ctx context.Context, userID string) error
}

// Ledger owns all credit accounting. Every read and write path goes through
// the same refill procedure, and reservations hold a row lock for the whole
// check-and-deduct step.
type Ledger struct {
	store  CreditStore
	cache  BalanceCache
	tiers  config.TierTable
	logger *logging.Logger
	now    func() time.Time
}

// NewLedger creates a new credit ledger. cache may be nil.
func NewLedger(store CreditStore, cache BalanceCache, tiers config.TierTable, logger *logging.Logger) *Ledger {
	return &Ledger{
		store:  store,
		cache:  cache,
		tiers:  tiers,
		logger: logger.WithField("component", "credit_ledger"),
		now:    time.Now,
	}
}

// GetOrInit returns the user's credit record, creating it on first touch.
// Concurrent first touches are safe: the insert is ON CONFLICT DO NOTHING and
// everyone re-reads the winning row.
func (l *Ledger) GetOrInit(ctx context.Context, userID string, tier types.UserTier) (*models.CreditRecord, error) {
	rec, err := l.store.Get(ctx, userID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	daily := l.tiers.Limits(tier).DailyCredits
	if err := l.store.EnsureRecord(ctx, userID, tier, daily); err != nil {
		return nil, err
	}

	l.logger.WithFields(map[string]interface{}{
		"user_id": userID,
		"tier":    tier,
		"credits": daily,
	}).Info("Initialized credit record")

	return l.store.Get(ctx, userID)
}

// Reserve atomically charges amount credits, refilling first when due.
// On insufficient balance nothing is mutated and an INSUFFICIENT_CREDITS
// error carrying needed/available/refill_in_hours is returned.
// Returns the remaining credits after the deduction.
func (l *Ledger) Reserve(ctx context.Context, userID string, tier types.UserTier, amount int) (int, error) {
	if amount <= 0 {
		return 0, apperrors.NewInvalidParameterError("amount", "must be positive")
	}

	tx, err := l.store.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin reservation: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // nolint:errcheck // no-op after commit
	}()

	rec, err := l.store.GetForUpdate(ctx, tx, userID)
	if err != nil {
		return 0, err
	}

	now := l.now()
	refilled := applyRefill(rec, tier, l.tiers.Limits(tier).DailyCredits, now)

	if rec.CurrentCredits < amount {
		// The refill, if one happened, is deliberately discarded with the
		// rollback: the next call re-derives it from last_refill.
		return 0, apperrors.NewInsufficientCreditsError(amount, rec.CurrentCredits, HoursUntilRefill(rec, now))
	}

	rec.CurrentCredits -= amount
	rec.DailyCreditsUsed += amount

	if err := l.store.UpdateTx(ctx, tx, rec); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit reservation: %w", err)
	}

	l.invalidateBalance(ctx, userID)

	l.logger.WithFields(map[string]interface{}{
		"user_id":   userID,
		"amount":    amount,
		"remaining": rec.CurrentCredits,
		"refilled":  refilled,
	}).Info("Reserved credits")

	return rec.CurrentCredits, nil
}

// Balance returns the refill-checked balance projection, persisting the
// refill when one is due so reads and reservations always agree.
func (l *Ledger) Balance(ctx context.Context, userID string, tier types.UserTier) (*models.CreditBalance, error) {
	if l.cache != nil {
		var cached models.CreditBalance
		key := l.cache.GenerateBalanceKey(userID)
		if hit, err := l.cache.Get(ctx, key, &cached); err == nil && hit {
			// A cached projection may straddle a refill boundary; recompute
			// from the database once the refill is due.
			if l.now().Before(cached.NextRefill) {
				cached.HoursUntilRefill = NextRefillHours(cached.NextRefill, l.now())
				return &cached, nil
			}
		}
	}

	tx, err := l.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin balance read: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // nolint:errcheck // no-op after commit
	}()

	rec, err := l.store.GetForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	now := l.now()
	if applyRefill(rec, tier, l.tiers.Limits(tier).DailyCredits, now) {
		if err := l.store.UpdateTx(ctx, tx, rec); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit balance read: %w", err)
	}

	balance := &models.CreditBalance{
		UserID:           rec.UserID,
		Tier:             rec.Tier,
		CurrentCredits:   rec.CurrentCredits,
		DailyCredits:     rec.DailyCredits,
		DailyCreditsUsed: rec.DailyCreditsUsed,
		LastRefill:       rec.LastRefill,
		NextRefill:       NextRefill(rec),
		HoursUntilRefill: HoursUntilRefill(rec, now),
	}

	if l.cache != nil {
		key := l.cache.GenerateBalanceKey(userID)
		if err := l.cache.Set(ctx, key, balance); err != nil {
			l.logger.WithError(err).Warn("Failed to cache credit balance")
		}
	}

	return balance, nil
}

// NextRefillHours returns the hours between now and the given refill time,
// clamped at zero.
func NextRefillHours(nextRefill, now time.Time) float64 {
	remaining := nextRefill.Sub(now).Hours()
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (l *Ledger) invalidateBalance(ctx context.Context, userID string) {
	if l.cache == nil {
		return
	}
	if err := l.cache.InvalidateBalance(ctx, userID); err != nil {
		l.logger.WithError(err).Warn("Failed to invalidate balance cache")
	}
}
