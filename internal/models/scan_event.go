package models

import (
	"time"

	"github.com/opportunity-scanner/internal/types"
)

// ScanEvent represents one per-platform dispatch outcome, appended to
// ClickHouse for analytics. Rows are write-once.
type ScanEvent struct {
	EventTime       time.Time      `json:"eventTime"`
	UserID          string         `json:"userId"`
	ScanID          string         `json:"scanId"`
	Platform        types.Platform `json:"platform"`
	CandidatesFound int            `json:"candidatesFound"`
	Stored          int            `json:"stored"`
	DurationMs      int64          `json:"durationMs"`
	Failed          bool           `json:"failed"`
}

// AnalyticsSummary represents aggregate scan activity over a trailing window
type AnalyticsSummary struct {
	Days          int                `json:"days"`
	TotalScans    int                `json:"totalScans"`
	TotalFound    int                `json:"totalFound"`
	TotalStored   int                `json:"totalStored"`
	AvgConfidence float64            `json:"avgConfidence"`
	ByPlatform    []PlatformActivity `json:"byPlatform"`
}

// PlatformActivity represents per-platform aggregates within a summary window
type PlatformActivity struct {
	Platform    types.Platform `json:"platform"`
	Scans       int            `json:"scans"`
	Found       int            `json:"found"`
	Stored      int            `json:"stored"`
	Failures    int            `json:"failures"`
	AvgDuration float64        `json:"avgDurationMs"`
}
