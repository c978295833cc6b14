package models

import (
	"time"

	"github.com/opportunity-scanner/internal/types"
)

// Opportunity represents a stored opportunity owned by a user.
// Uniqueness is on (UserID, OpportunityID); once written the record is never
// overwritten by later scans.
type Opportunity struct {
	UserID        string         `json:"userId" db:"user_id"`
	OpportunityID string         `json:"opportunityId" db:"opportunity_id"`
	ScanID        string         `json:"scanId" db:"scan_id"`
	Platform      types.Platform `json:"platform" db:"platform"`
	Title         string         `json:"title" db:"title"`
	Description   string         `json:"description" db:"description"`
	URL           string         `json:"url" db:"url"`
	Telegram      *string        `json:"telegram,omitempty" db:"telegram"`
	Twitter       *string        `json:"twitter,omitempty" db:"twitter"`
	Email         *string        `json:"email,omitempty" db:"email"`
	Website       *string        `json:"website,omitempty" db:"website"`
	PostedAt      *time.Time     `json:"postedAt,omitempty" db:"posted_at"`
	FoundAt       time.Time      `json:"foundAt" db:"found_at"`
	Confidence    *int           `json:"confidence,omitempty" db:"confidence"`
	Tags          []string       `json:"tags,omitempty" db:"tags"`
	Urgency       *types.Urgency `json:"urgency,omitempty" db:"urgency"`
	AnalysisNotes *string        `json:"analysisNotes,omitempty" db:"analysis_notes"`
	IsSaved       bool           `json:"isSaved" db:"is_saved"`
	IsApplied     bool           `json:"isApplied" db:"is_applied"`
	SavedAt       *time.Time     `json:"savedAt,omitempty" db:"saved_at"`
	AppliedAt     *time.Time     `json:"appliedAt,omitempty" db:"applied_at"`
}

// OpportunityFilter represents list filtering and pagination options
type OpportunityFilter struct {
	Platform  *types.Platform
	SavedOnly bool
	Page      int
	Limit     int
}

// OpportunityPage represents one page of a user's opportunities
type OpportunityPage struct {
	Opportunities []*Opportunity `json:"opportunities"`
	Total         int            `json:"total"`
	Page          int            `json:"page"`
	Limit         int            `json:"limit"`
}
