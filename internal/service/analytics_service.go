package service

import (
	"context"
	"fmt"

	"github.com/opportunity-scanner/internal/logging"
	"github.com/opportunity-scanner/internal/models"
)

// EventStore reads and writes scan events
type EventStore interface {
	InsertEvents(ctx context.Context, events []models.ScanEvent) error
	Summary(ctx context.Context, userID string, days int) (*models.AnalyticsSummary, error)
}

// SummaryCache caches analytics summaries
type SummaryCache interface {
	GenerateAnalyticsKey(userID string, days int) string
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
}

// AnalyticsService serves scan activity summaries out of ClickHouse.
type AnalyticsService struct {
	eventRepo EventStore
	cache     SummaryCache
	logger    *logging.Logger
}

func NewAnalyticsService(
	eventRepo EventStore,
	cache SummaryCache,
	logger *logging.Logger,
) *AnalyticsService {
	return &AnalyticsService{
		eventRepo: eventRepo,
		cache:     cache,
		logger:    logger,
	}
}

const (
	defaultSummaryDays = 7
	maxSummaryDays     = 90
)

// Summary returns per-user scan totals and a per-platform breakdown over the
// trailing window. Served cache-aside; summaries tolerate slight staleness.
func (s *AnalyticsService) Summary(ctx context.Context, userID string, days int) (*models.AnalyticsSummary, error) {
	if days <= 0 {
		days = defaultSummaryDays
	}
	if days > maxSummaryDays {
		days = maxSummaryDays
	}

	var cacheKey string
	if s.cache != nil {
		cacheKey = s.cache.GenerateAnalyticsKey(userID, days)
		var cached models.AnalyticsSummary
		if found, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && found {
			return &cached, nil
		}
	}

	summary, err := s.eventRepo.Summary(ctx, userID, days)
	if err != nil {
		return nil, fmt.Errorf("failed to build analytics summary: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, summary); err != nil {
			s.logger.WithField("user_id", userID).WithError(err).Debug("Failed to cache analytics summary")
		}
	}

	return summary, nil
}

// RecordEvents writes scan events. Failures are logged, never surfaced:
// analytics must not fail a scan.
func (s *AnalyticsService) RecordEvents(ctx context.Context, events []models.ScanEvent) {
	if len(events) == 0 {
		return
	}
	if err := s.eventRepo.InsertEvents(ctx, events); err != nil {
		s.logger.WithField("events", len(events)).WithError(err).Warn("Failed to record scan events")
	}
}
