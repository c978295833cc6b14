package models

import (
	"time"

	"github.com/opportunity-scanner/internal/types"
)

// Scan represents a single scan request and its progress.
// Status moves pending -> running -> completed or failed; terminal states
// are never modified again.
type Scan struct {
	ScanID             string           `json:"scanId" db:"scan_id"`
	UserID             string           `json:"userId" db:"user_id"`
	Status             types.ScanStatus `json:"status" db:"status"`
	Niches             []string         `json:"niches" db:"niches"`
	PlatformsRequested []types.Platform `json:"platformsRequested" db:"platforms_requested"`
	PlatformsScanned   []types.Platform `json:"platformsScanned" db:"platforms_scanned"`
	FailedPlatforms    []types.Platform `json:"failedPlatforms" db:"failed_platforms"`
	OpportunitiesFound int              `json:"opportunitiesFound" db:"opportunities_found"`
	CreditsUsed        int              `json:"creditsUsed" db:"credits_used"`
	Error              *string          `json:"error,omitempty" db:"error"`
	RunningSince       *time.Time       `json:"runningSince,omitempty" db:"running_since"`
	StartedAt          time.Time        `json:"startedAt" db:"started_at"`
	CompletedAt        *time.Time       `json:"completedAt,omitempty" db:"completed_at"`
}
