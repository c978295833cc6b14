// Package credits implements the per-user credit ledger: lazy initialization,
// rolling 24h refills and atomic reservations.
package credits

import (
	"time"

	"github.com/opportunity-scanner/internal/models"
	"github.com/opportunity-scanner/internal/types"
)

// RefillPeriod is the rolling window between credit refills. Refill eligibility
// is measured in elapsed time since last_refill, never in calendar days.
const RefillPeriod = 24 * time.Hour

// applyRefill checks whether a refill is due and applies it in place.
// The tier is re-read at refill time, so a tier change takes effect on the
// next refill. Returns true when the record was mutated.
//
// Post-condition on refill: CurrentCredits + DailyCreditsUsed == DailyCredits.
func applyRefill(rec *models.CreditRecord, tier types.UserTier, dailyCredits int, now time.Time) bool {
	if now.Sub(rec.LastRefill) < RefillPeriod {
		return false
	}

	rec.Tier = tier
	rec.DailyCredits = dailyCredits
	rec.CurrentCredits = dailyCredits
	rec.DailyCreditsUsed = 0
	rec.LastRefill = now
	return true
}

// NextRefill returns when the next refill becomes due
func NextRefill(rec *models.CreditRecord) time.Time {
	return rec.LastRefill.Add(RefillPeriod)
}

// HoursUntilRefill returns the hours remaining until the next refill,
// clamped at zero once a refill is already due.
func HoursUntilRefill(rec *models.CreditRecord, now time.Time) float64 {
	remaining := NextRefill(rec).Sub(now).Hours()
	if remaining < 0 {
		return 0
	}
	return remaining
}
