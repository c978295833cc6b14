package service

import (
	"context"
	"fmt"
	"time"

	"github.com/opportunity-scanner/internal/logging"
	"github.com/opportunity-scanner/internal/models"
	"github.com/opportunity-scanner/internal/types"
)

// OpportunityStore is the slice of the opportunity repository the service needs
type OpportunityStore interface {
	InsertIfAbsent(ctx context.Context, opp *models.Opportunity) (bool, error)
	GetByID(ctx context.Context, userID, opportunityID string) (*models.Opportunity, error)
	List(ctx context.Context, userID string, filter models.OpportunityFilter) (*models.OpportunityPage, error)
	SetSaved(ctx context.Context, userID, opportunityID string, saved bool) error
	MarkApplied(ctx context.Context, userID, opportunityID string) error
}

// PageCache caches opportunity list pages
type PageCache interface {
	GenerateOpportunityPageKey(userID string, platform *types.Platform, savedOnly bool, page, limit int) string
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
	InvalidateUserOpportunities(ctx context.Context, userID string) error
}

// OpportunityService persists scan candidates and serves the stored
// opportunities back to users.
type OpportunityService struct {
	oppRepo OpportunityStore
	cache   PageCache
	logger  *logging.Logger
}

func NewOpportunityService(
	oppRepo OpportunityStore,
	cache PageCache,
	logger *logging.Logger,
) *OpportunityService {
	return &OpportunityService{
		oppRepo: oppRepo,
		cache:   cache,
		logger:  logger,
	}
}

// PersistResult reports what one Persist call wrote
type PersistResult struct {
	Stored     int
	ByPlatform map[types.Platform]int
}

// Persist stores candidates for a user up to tierLimit new rows.
//
// Candidates are walked in dispatch order. Batch-internal duplicates and
// rows the user already owns are skipped without consuming the limit, so a
// re-run of the same scan stores nothing new.
func (s *OpportunityService) Persist(
	ctx context.Context,
	userID, scanID string,
	candidates []*types.RawCandidate,
	tierLimit int,
) (*PersistResult, error) {
	result := &PersistResult{ByPlatform: make(map[types.Platform]int)}
	if tierLimit <= 0 {
		return result, nil
	}

	now := time.Now().UTC()
	seen := make(map[string]struct{}, len(candidates))

	for _, c := range candidates {
		if result.Stored >= tierLimit {
			break
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}

		opp := candidateToOpportunity(userID, scanID, c, now)

		inserted, err := s.oppRepo.InsertIfAbsent(ctx, opp)
		if err != nil {
			return result, fmt.Errorf("failed to persist opportunity %s: %w", c.ID, err)
		}
		if inserted {
			result.Stored++
			result.ByPlatform[c.Platform]++
		}
	}

	if result.Stored > 0 && s.cache != nil {
		if err := s.cache.InvalidateUserOpportunities(ctx, userID); err != nil {
			s.logger.WithField("user_id", userID).WithError(err).Warn("Failed to invalidate opportunity cache")
		}
	}

	return result, nil
}

// List returns one page of the user's opportunities, newest first.
// Pages are served cache-aside; any cache failure falls through to Postgres.
func (s *OpportunityService) List(ctx context.Context, userID string, filter models.OpportunityFilter) (*models.OpportunityPage, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}

	var cacheKey string
	if s.cache != nil {
		cacheKey = s.cache.GenerateOpportunityPageKey(userID, filter.Platform, filter.SavedOnly, filter.Page, filter.Limit)
		var cached models.OpportunityPage
		if found, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && found {
			return &cached, nil
		}
	}

	page, err := s.oppRepo.List(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list opportunities: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, page); err != nil {
			s.logger.WithField("user_id", userID).WithError(err).Debug("Failed to cache opportunity page")
		}
	}

	return page, nil
}

// SetSaved toggles the saved flag on an opportunity the user owns
func (s *OpportunityService) SetSaved(ctx context.Context, userID, opportunityID string, saved bool) error {
	if err := s.oppRepo.SetSaved(ctx, userID, opportunityID, saved); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

// MarkApplied marks an opportunity as applied. Applying is one-way: the
// first applied_at timestamp is kept on repeat calls.
func (s *OpportunityService) MarkApplied(ctx context.Context, userID, opportunityID string) error {
	if err := s.oppRepo.MarkApplied(ctx, userID, opportunityID); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

// Get returns a single opportunity owned by the user
func (s *OpportunityService) Get(ctx context.Context, userID, opportunityID string) (*models.Opportunity, error) {
	return s.oppRepo.GetByID(ctx, userID, opportunityID)
}

func (s *OpportunityService) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateUserOpportunities(ctx, userID); err != nil {
		s.logger.WithField("user_id", userID).WithError(err).Warn("Failed to invalidate opportunity cache")
	}
}

func candidateToOpportunity(userID, scanID string, c *types.RawCandidate, foundAt time.Time) *models.Opportunity {
	opp := &models.Opportunity{
		UserID:        userID,
		OpportunityID: c.ID,
		ScanID:        scanID,
		Platform:      c.Platform,
		Title:         c.Title,
		Description:   c.Description,
		URL:           c.URL,
		Telegram:      c.Contact.Telegram,
		Twitter:       c.Contact.Twitter,
		Email:         c.Contact.Email,
		Website:       c.Contact.Website,
		FoundAt:       foundAt,
	}

	if !c.PostedAt.IsZero() {
		postedAt := c.PostedAt
		opp.PostedAt = &postedAt
	}

	if c.Analysis != nil {
		confidence := c.Analysis.Confidence
		urgency := c.Analysis.Urgency
		opp.Confidence = &confidence
		opp.Tags = c.Analysis.Tags
		opp.Urgency = &urgency
		opp.AnalysisNotes = c.Analysis.Notes
	}

	return opp
}
