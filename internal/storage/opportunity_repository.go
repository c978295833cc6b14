package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/opportunity-scanner/internal/models"
)

// OpportunityRepository handles opportunity persistence. Rows are keyed on
// (user_id, opportunity_id) and are insert-once: a conflicting insert is a
// silent no-op so re-persisting the same candidates is idempotent.
type OpportunityRepository struct {
	db *PostgresDB
}

// NewOpportunityRepository creates a new opportunity repository
func NewOpportunityRepository(db *PostgresDB) *OpportunityRepository {
	return &OpportunityRepository{db: db}
}

const opportunityColumns = `user_id, opportunity_id, scan_id, platform, title, description, url, telegram, twitter, email, website, posted_at, found_at, confidence, tags, urgency, analysis_notes, is_saved, is_applied, saved_at, applied_at`

// InsertIfAbsent inserts an opportunity unless the user already has one with
// the same opportunity_id. Returns true when a row was actually written.
func (r *OpportunityRepository) InsertIfAbsent(ctx context.Context, opp *models.Opportunity) (bool, error) {
	if opp.FoundAt.IsZero() {
		opp.FoundAt = time.Now()
	}

	query := `
		INSERT INTO opportunities (` + opportunityColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (user_id, opportunity_id) DO NOTHING
	`

	result, err := r.db.Pool().Exec(ctx, query,
		opp.UserID,
		opp.OpportunityID,
		opp.ScanID,
		opp.Platform,
		opp.Title,
		opp.Description,
		opp.URL,
		opp.Telegram,
		opp.Twitter,
		opp.Email,
		opp.Website,
		opp.PostedAt,
		opp.FoundAt,
		opp.Confidence,
		opp.Tags,
		opp.Urgency,
		opp.AnalysisNotes,
		opp.IsSaved,
		opp.IsApplied,
		opp.SavedAt,
		opp.AppliedAt,
	)

	if err != nil {
		return false, fmt.Errorf("failed to insert opportunity: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// GetByID retrieves an opportunity owned by the given user
func (r *OpportunityRepository) GetByID(ctx context.Context, userID, opportunityID string) (*models.Opportunity, error) {
	query := `
		SELECT ` + opportunityColumns + `
		FROM opportunities
		WHERE user_id = $1 AND opportunity_id = $2
	`

	opp, err := scanOpportunity(r.db.Pool().QueryRow(ctx, query, userID, opportunityID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("opportunity %s: %w", opportunityID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get opportunity: %w", err)
	}

	return opp, nil
}

// List retrieves one page of a user's opportunities, newest first
func (r *OpportunityRepository) List(ctx context.Context, userID string, filter models.OpportunityFilter) (*models.OpportunityPage, error) {
	where := `WHERE user_id = $1`
	args := []any{userID}

	if filter.Platform != nil {
		args = append(args, *filter.Platform)
		where += fmt.Sprintf(` AND platform = $%d`, len(args))
	}
	if filter.SavedOnly {
		where += ` AND is_saved = true`
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM opportunities ` + where
	if err := r.db.Pool().QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count opportunities: %w", err)
	}

	offset := (filter.Page - 1) * filter.Limit
	args = append(args, filter.Limit, offset)
	query := fmt.Sprintf(`
		SELECT `+opportunityColumns+`
		FROM opportunities
		%s
		ORDER BY found_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list opportunities: %w", err)
	}
	defer rows.Close()

	opportunities := make([]*models.Opportunity, 0, filter.Limit)
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan opportunity: %w", err)
		}
		opportunities = append(opportunities, opp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating opportunities: %w", err)
	}

	return &models.OpportunityPage{
		Opportunities: opportunities,
		Total:         total,
		Page:          filter.Page,
		Limit:         filter.Limit,
	}, nil
}

// SetSaved sets or clears the saved flag on a user's opportunity
func (r *OpportunityRepository) SetSaved(ctx context.Context, userID, opportunityID string, saved bool) error {
	var savedAt *time.Time
	if saved {
		now := time.Now()
		savedAt = &now
	}

	query := `
		UPDATE opportunities
		SET is_saved = $3, saved_at = $4
		WHERE user_id = $1 AND opportunity_id = $2
	`

	result, err := r.db.Pool().Exec(ctx, query, userID, opportunityID, saved, savedAt)
	if err != nil {
		return fmt.Errorf("failed to set saved flag: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("opportunity %s: %w", opportunityID, ErrNotFound)
	}

	return nil
}

// MarkApplied marks a user's opportunity as applied. Already-applied rows
// keep their original applied_at.
func (r *OpportunityRepository) MarkApplied(ctx context.Context, userID, opportunityID string) error {
	query := `
		UPDATE opportunities
		SET is_applied = true, applied_at = COALESCE(applied_at, $3)
		WHERE user_id = $1 AND opportunity_id = $2
	`

	result, err := r.db.Pool().Exec(ctx, query, userID, opportunityID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark applied: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("opportunity %s: %w", opportunityID, ErrNotFound)
	}

	return nil
}

// CountByScan returns how many opportunities a scan stored
func (r *OpportunityRepository) CountByScan(ctx context.Context, userID, scanID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM opportunities WHERE user_id = $1 AND scan_id = $2`

	err := r.db.Pool().QueryRow(ctx, query, userID, scanID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count scan opportunities: %w", err)
	}

	return count, nil
}

// Stats returns per-platform counts plus saved/applied totals for a user
func (r *OpportunityRepository) Stats(ctx context.Context, userID string) (map[string]int, error) {
	stats := make(map[string]int)

	query := `
		SELECT platform, COUNT(*)
		FROM opportunities
		WHERE user_id = $1
		GROUP BY platform
	`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get opportunity stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var platform string
		var count int
		if err := rows.Scan(&platform, &count); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}
		stats[platform] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stats: %w", err)
	}

	var saved, applied int
	flagQuery := `
		SELECT COUNT(*) FILTER (WHERE is_saved), COUNT(*) FILTER (WHERE is_applied)
		FROM opportunities
		WHERE user_id = $1
	`
	if err := r.db.Pool().QueryRow(ctx, flagQuery, userID).Scan(&saved, &applied); err != nil {
		return nil, fmt.Errorf("failed to get flag stats: %w", err)
	}
	stats["saved"] = saved
	stats["applied"] = applied

	return stats, nil
}

func scanOpportunity(row rowScanner) (*models.Opportunity, error) {
	var opp models.Opportunity
	err := row.Scan(
		&opp.UserID,
		&opp.OpportunityID,
		&opp.ScanID,
		&opp.Platform,
		&opp.Title,
		&opp.Description,
		&opp.URL,
		&opp.Telegram,
		&opp.Twitter,
		&opp.Email,
		&opp.Website,
		&opp.PostedAt,
		&opp.FoundAt,
		&opp.Confidence,
		&opp.Tags,
		&opp.Urgency,
		&opp.AnalysisNotes,
		&opp.IsSaved,
		&opp.IsApplied,
		&opp.SavedAt,
		&opp.AppliedAt,
	)
	if err != nil {
		return nil, err
	}
	return &opp, nil
}
