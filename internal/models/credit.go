package models

import (
	"time"

	"github.com/opportunity-scanner/internal/types"
)

// CreditRecord represents the per-user credit ledger row.
// Invariant: CurrentCredits + DailyCreditsUsed == DailyCredits after every
// refill or deduction.
type CreditRecord struct {
	UserID           string         `json:"userId" db:"user_id"`
	Tier             types.UserTier `json:"tier" db:"tier"`
	CurrentCredits   int            `json:"currentCredits" db:"current_credits"`
	DailyCredits     int            `json:"dailyCredits" db:"daily_credits"`
	DailyCreditsUsed int            `json:"dailyCreditsUsed" db:"daily_credits_used"`
	LastRefill       time.Time      `json:"lastRefill" db:"last_refill"`
	CreatedAt        time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time      `json:"updatedAt" db:"updated_at"`
}

// CreditBalance represents the refill-checked balance projection returned to callers
type CreditBalance struct {
	UserID           string         `json:"userId"`
	Tier             types.UserTier `json:"tier"`
	CurrentCredits   int            `json:"currentCredits"`
	DailyCredits     int            `json:"dailyCredits"`
	DailyCreditsUsed int            `json:"dailyCreditsUsed"`
	LastRefill       time.Time      `json:"lastRefill"`
	NextRefill       time.Time      `json:"nextRefill"`
	HoursUntilRefill float64        `json:"hoursUntilRefill"`
}
