// Package types provides common type definitions for the opportunity scanner system.
package types

import "time"

// UserTier represents the subscription tier level
type UserTier string

const (
	// TierFree represents the free subscription tier with limited features
	TierFree UserTier = "free"
	// TierPro represents the pro subscription tier with expanded platform access
	TierPro UserTier = "pro"
	// TierPremium represents the premium subscription tier with full platform access
	TierPremium UserTier = "premium"
)

// Platform represents supported external scan sources
type Platform string

const (
	// PlatformTwitter represents Twitter/X keyword search
	PlatformTwitter Platform = "twitter"
	// PlatformReddit represents Reddit subreddit search
	PlatformReddit Platform = "reddit"
	// PlatformTelegram represents public Telegram channel scraping
	PlatformTelegram Platform = "telegram"
	// PlatformWeb3Career represents the web3.career job board
	PlatformWeb3Career Platform = "web3career"
	// PlatformPumpFun represents new token listings on pump.fun
	PlatformPumpFun Platform = "pumpfun"
	// PlatformDexScreener represents trending pairs on DexScreener
	PlatformDexScreener Platform = "dexscreener"
	// PlatformCoinMarketCap represents new CoinMarketCap listings
	PlatformCoinMarketCap Platform = "coinmarketcap"
	// PlatformCoinGecko represents new CoinGecko listings
	PlatformCoinGecko Platform = "coingecko"
)

// ScanStatus represents the lifecycle state of a scan
type ScanStatus string

const (
	// ScanStatusPending represents a scan accepted but not yet picked up by a worker
	ScanStatusPending ScanStatus = "pending"
	// ScanStatusRunning represents a scan currently executing
	ScanStatusRunning ScanStatus = "running"
	// ScanStatusCompleted represents a successfully finished scan
	ScanStatusCompleted ScanStatus = "completed"
	// ScanStatusFailed represents a scan that terminated with an error
	ScanStatusFailed ScanStatus = "failed"
)

// IsTerminal reports whether the status is a terminal state.
func (s ScanStatus) IsTerminal() bool {
	return s == ScanStatusCompleted || s == ScanStatusFailed
}

// Urgency represents how time-sensitive an opportunity appears to be
type Urgency string

const (
	// UrgencyLow represents no urgency signals in the posting
	UrgencyLow Urgency = "low"
	// UrgencyMedium represents soft urgency signals (e.g. "soon", "this week")
	UrgencyMedium Urgency = "medium"
	// UrgencyHigh represents strong urgency signals (e.g. "asap", "urgent")
	UrgencyHigh Urgency = "high"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// Contact represents the ways a candidate posting can be reached
type Contact struct {
	Telegram *string `json:"telegram,omitempty"` // Telegram handle (e.g. "@hiring")
	Twitter  *string `json:"twitter,omitempty"`  // Twitter/X handle
	Email    *string `json:"email,omitempty"`
	Website  *string `json:"website,omitempty"`
}

// Analysis represents analyzer-derived signals attached to a candidate
type Analysis struct {
	Confidence int      `json:"confidence"`      // 0-100 likelihood of a real, relevant opportunity
	Tags       []string `json:"tags,omitempty"`  // Role categories (e.g. "community_manager", "developer")
	Urgency    Urgency  `json:"urgency"`         // Time sensitivity of the posting
	Notes      *string  `json:"notes,omitempty"` // Free-form analyzer remarks (scam signals, salary hints)
}

// RawCandidate represents a candidate opportunity in common format across all platforms
type RawCandidate struct {
	ID          string    `json:"id"`       // Platform-scoped stable identifier
	Platform    Platform  `json:"platform"` // Source platform the candidate came from
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	Contact     Contact   `json:"contact"`
	PostedAt    time.Time `json:"postedAt"`           // When the source published it
	Analysis    *Analysis `json:"analysis,omitempty"` // Nil when the analyzer was skipped or failed
}

// DispatchResult represents the aggregate outcome of fanning a scan out to platforms
type DispatchResult struct {
	Candidates      []*RawCandidate  `json:"candidates"`
	PlatformsOK     []Platform       `json:"platformsOk"`
	PlatformsFailed []Platform       `json:"platformsFailed"`
	PerPlatform     []PlatformReport `json:"perPlatform"`
}

// PlatformReport represents per-platform dispatch accounting for one scan
type PlatformReport struct {
	Platform   Platform      `json:"platform"`
	Candidates int           `json:"candidates"`
	Duration   time.Duration `json:"duration"`
	Err        error         `json:"-"`
}
