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

// ScanRepository handles scan record persistence. Status transitions are
// guarded in SQL so a terminal row can never be moved again.
type ScanRepository struct {
	db *PostgresDB
}

// NewScanRepository creates a new scan repository
func NewScanRepository(db *PostgresDB) *ScanRepository {
	return &ScanRepository{db: db}
}

const scanColumns = `scan_id, user_id, status, niches, platforms_requested, platforms_scanned, failed_platforms, opportunities_found, credits_used, error, running_since, started_at, completed_at`

// Create inserts a new scan in pending state
func (r *ScanRepository) Create(ctx context.Context, scan *models.Scan) error {
	if scan.StartedAt.IsZero() {
		scan.StartedAt = time.Now()
	}
	scan.Status = types.ScanStatusPending

	query := `
		INSERT INTO scans (` + scanColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		scan.ScanID,
		scan.UserID,
		scan.Status,
		scan.Niches,
		platformStrings(scan.PlatformsRequested),
		platformStrings(scan.PlatformsScanned),
		platformStrings(scan.FailedPlatforms),
		scan.OpportunitiesFound,
		scan.CreditsUsed,
		scan.Error,
		scan.RunningSince,
		scan.StartedAt,
		scan.CompletedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create scan: %w", err)
	}

	return nil
}

// GetByID retrieves a scan owned by the given user
func (r *ScanRepository) GetByID(ctx context.Context, userID, scanID string) (*models.Scan, error) {
	query := `
		SELECT ` + scanColumns + `
		FROM scans
		WHERE scan_id = $1 AND user_id = $2
	`

	scan, err := scanRow(r.db.Pool().QueryRow(ctx, query, scanID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("scan %s: %w", scanID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get scan: %w", err)
	}

	return scan, nil
}

// ListByUser retrieves a user's scans, newest first
func (r *ScanRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.Scan, error) {
	query := `
		SELECT ` + scanColumns + `
		FROM scans
		WHERE user_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool().Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	defer rows.Close()

	var scans []*models.Scan
	for rows.Next() {
		scan, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		scans = append(scans, scan)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scans: %w", err)
	}

	return scans, nil
}

// MarkRunning transitions a pending scan to running and stamps
// running_since, the clock the orphan sweep measures against. A scan that
// queued behind a full pool gets its full running budget from pickup.
func (r *ScanRepository) MarkRunning(ctx context.Context, scanID string) error {
	query := `
		UPDATE scans
		SET status = $2, running_since = now()
		WHERE scan_id = $1 AND status = $3
	`

	result, err := r.db.Pool().Exec(ctx, query, scanID, types.ScanStatusRunning, types.ScanStatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark scan running: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("scan %s not in pending state: %w", scanID, ErrNotFound)
	}

	return nil
}

// Complete transitions a running scan to completed with its final counts
func (r *ScanRepository) Complete(ctx context.Context, scan *models.Scan) error {
	now := time.Now()
	query := `
		UPDATE scans
		SET status = $2, platforms_scanned = $3, failed_platforms = $4, opportunities_found = $5, completed_at = $6
		WHERE scan_id = $1 AND status = $7
	`

	result, err := r.db.Pool().Exec(ctx, query,
		scan.ScanID,
		types.ScanStatusCompleted,
		platformStrings(scan.PlatformsScanned),
		platformStrings(scan.FailedPlatforms),
		scan.OpportunitiesFound,
		now,
		types.ScanStatusRunning,
	)

	if err != nil {
		return fmt.Errorf("failed to complete scan: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("scan %s not in running state: %w", scan.ScanID, ErrNotFound)
	}

	scan.Status = types.ScanStatusCompleted
	scan.CompletedAt = &now
	return nil
}

// Fail transitions a non-terminal scan to failed with a reason
func (r *ScanRepository) Fail(ctx context.Context, scanID, reason string) error {
	now := time.Now()
	query := `
		UPDATE scans
		SET status = $2, error = $3, completed_at = $4
		WHERE scan_id = $1 AND status IN ($5, $6)
	`

	result, err := r.db.Pool().Exec(ctx, query,
		scanID,
		types.ScanStatusFailed,
		reason,
		now,
		types.ScanStatusPending,
		types.ScanStatusRunning,
	)

	if err != nil {
		return fmt.Errorf("failed to fail scan: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("scan %s is already terminal: %w", scanID, ErrNotFound)
	}

	return nil
}

// FlagOrphans fails non-terminal scans stuck past the deadline and returns
// how many were flagged. Running scans are measured from running_since (a
// crash between pickup and terminal transition orphans them); pending scans
// are measured from started_at (a worker that never picked them up, e.g. a
// process killed with a queued pool).
func (r *ScanRepository) FlagOrphans(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	query := `
		UPDATE scans
		SET status = $1, error = 'orphaned', completed_at = $2
		WHERE (status = $3 AND COALESCE(running_since, started_at) < $4)
		   OR (status = $5 AND started_at < $4)
	`

	result, err := r.db.Pool().Exec(ctx, query,
		types.ScanStatusFailed,
		time.Now(),
		types.ScanStatusRunning,
		cutoff,
		types.ScanStatusPending,
	)

	if err != nil {
		return 0, fmt.Errorf("failed to flag orphaned scans: %w", err)
	}

	return int(result.RowsAffected()), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(row rowScanner) (*models.Scan, error) {
	var scan models.Scan
	var requested, scanned, failed []string

	err := row.Scan(
		&scan.ScanID,
		&scan.UserID,
		&scan.Status,
		&scan.Niches,
		&requested,
		&scanned,
		&failed,
		&scan.OpportunitiesFound,
		&scan.CreditsUsed,
		&scan.Error,
		&scan.RunningSince,
		&scan.StartedAt,
		&scan.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	scan.PlatformsRequested = toPlatforms(requested)
	scan.PlatformsScanned = toPlatforms(scanned)
	scan.FailedPlatforms = toPlatforms(failed)
	return &scan, nil
}

func platformStrings(platforms []types.Platform) []string {
	out := make([]string, len(platforms))
	for i, p := range platforms {
		out[i] = string(p)
	}
	return out
}

func toPlatforms(values []string) []types.Platform {
	if len(values) == 0 {
		return nil
	}
	out := make([]types.Platform, len(values))
	for i, v := range values {
		out[i] = types.Platform(v)
	}
	return out
}
