package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/opportunity-scanner/internal/models"
	"github.com/opportunity-scanner/internal/types"
)

// ScanEventRepository handles scan event storage in ClickHouse. Events are
// append-only; analytics queries aggregate over them.
type ScanEventRepository struct {
	db *ClickHouseDB
}

// NewScanEventRepository creates a new scan event repository
func NewScanEventRepository(db *ClickHouseDB) *ScanEventRepository {
	return &ScanEventRepository{db: db}
}

// InsertEvents inserts one batch of scan events
func (r *ScanEventRepository) InsertEvents(ctx context.Context, events []models.ScanEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := r.db.conn.PrepareBatch(ctx, `
		INSERT INTO scan_events (
			event_time, user_id, scan_id, platform,
			candidates_found, stored, duration_ms, failed
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, e := range events {
		failed := uint8(0)
		if e.Failed {
			failed = 1
		}

		err := batch.Append(
			e.EventTime,
			e.UserID,
			e.ScanID,
			string(e.Platform),
			int32(e.CandidatesFound),
			int32(e.Stored),
			e.DurationMs,
			failed,
		)
		if err != nil {
			return fmt.Errorf("failed to append event: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	return nil
}

// Summary aggregates a user's scan activity over the trailing window
func (r *ScanEventRepository) Summary(ctx context.Context, userID string, days int) (*models.AnalyticsSummary, error) {
	since := time.Now().AddDate(0, 0, -days)

	summary := &models.AnalyticsSummary{Days: days}

	query := `
		SELECT
			uniqExact(scan_id),
			sum(candidates_found),
			sum(stored)
		FROM scan_events
		WHERE user_id = ? AND event_time >= ?
	`

	var totalScans, totalFound, totalStored uint64
	if err := r.db.conn.QueryRow(ctx, query, userID, since).Scan(&totalScans, &totalFound, &totalStored); err != nil {
		return nil, fmt.Errorf("failed to query summary totals: %w", err)
	}
	summary.TotalScans = int(totalScans)
	summary.TotalFound = int(totalFound)
	summary.TotalStored = int(totalStored)

	platformQuery := `
		SELECT
			platform,
			uniqExact(scan_id),
			sum(candidates_found),
			sum(stored),
			countIf(failed = 1),
			avg(duration_ms)
		FROM scan_events
		WHERE user_id = ? AND event_time >= ?
		GROUP BY platform
		ORDER BY platform
	`

	rows, err := r.db.conn.Query(ctx, platformQuery, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query platform summary: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			platform             string
			scans, found, stored uint64
			failures             uint64
			avgDuration          float64
		)
		if err := rows.Scan(&platform, &scans, &found, &stored, &failures, &avgDuration); err != nil {
			return nil, fmt.Errorf("failed to scan platform summary: %w", err)
		}
		summary.ByPlatform = append(summary.ByPlatform, models.PlatformActivity{
			Platform:    types.Platform(platform),
			Scans:       int(scans),
			Found:       int(found),
			Stored:      int(stored),
			Failures:    int(failures),
			AvgDuration: avgDuration,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating platform summary: %w", err)
	}

	return summary, nil
}
