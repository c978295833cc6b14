package scraper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opportunity-scanner/internal/config"
	"github.com/opportunity-scanner/internal/logging"
	"github.com/opportunity-scanner/internal/models"
	"github.com/opportunity-scanner/internal/types"
)

type stubAdapter struct {
	platform   types.Platform
	candidates []*types.RawCandidate
	err        error
	delay      time.Duration
}

func (s *stubAdapter) Platform() types.Platform {
	return s.platform
}

func (s *stubAdapter) Fetch(ctx context.Context, _ []*models.Niche) ([]*types.RawCandidate, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.candidates, nil
}

func candidate(platform types.Platform, id, title string) *types.RawCandidate {
	return &types.RawCandidate{
		ID:       string(platform) + ":" + id,
		Platform: platform,
		Title:    title,
	}
}

func testDispatcher(adapters ...SourceAdapter) *Dispatcher {
	cfg := &config.ScraperConfig{
		SourceTimeout: 2 * time.Second,
		MaxConcurrent: 4,
	}
	logger := logging.NewLogger(logging.LevelError, logging.FormatJSON)
	return NewDispatcher(cfg, adapters, logger)
}

func TestDispatchAggregatesInPlatformOrder(t *testing.T) {
	d := testDispatcher(
		&stubAdapter{
			platform:   types.PlatformReddit,
			candidates: []*types.RawCandidate{candidate(types.PlatformReddit, "1", "Reddit job")},
			delay:      50 * time.Millisecond,
		},
		&stubAdapter{
			platform:   types.PlatformTwitter,
			candidates: []*types.RawCandidate{candidate(types.PlatformTwitter, "1", "Twitter job")},
		},
	)

	result, err := d.Dispatch(context.Background(), []types.Platform{types.PlatformReddit, types.PlatformTwitter}, nil)

	require.NoError(t, err)
	require.Len(t, result.Candidates, 2)
	// Reddit finishes after Twitter but was requested first.
	assert.Equal(t, "reddit:1", result.Candidates[0].ID)
	assert.Equal(t, "twitter:1", result.Candidates[1].ID)
	assert.Equal(t, []types.Platform{types.PlatformReddit, types.PlatformTwitter}, result.PlatformsOK)
	assert.Empty(t, result.PlatformsFailed)
}

func TestDispatchIsolatesFailedPlatform(t *testing.T) {
	sourceErr := errors.New("twitter down")
	d := testDispatcher(
		&stubAdapter{
			platform:   types.PlatformReddit,
			candidates: []*types.RawCandidate{candidate(types.PlatformReddit, "1", "Reddit job")},
		},
		&stubAdapter{platform: types.PlatformTwitter, err: sourceErr},
	)

	result, err := d.Dispatch(context.Background(), []types.Platform{types.PlatformTwitter, types.PlatformReddit}, nil)

	require.NoError(t, err)
	assert.Len(t, result.Candidates, 1)
	assert.Equal(t, []types.Platform{types.PlatformReddit}, result.PlatformsOK)
	assert.Equal(t, []types.Platform{types.PlatformTwitter}, result.PlatformsFailed)

	require.Len(t, result.PerPlatform, 2)
	assert.Equal(t, types.PlatformTwitter, result.PerPlatform[0].Platform)
	assert.ErrorIs(t, result.PerPlatform[0].Err, sourceErr)
	assert.NoError(t, result.PerPlatform[1].Err)
}

func TestDispatchTimesOutSlowPlatform(t *testing.T) {
	cfg := &config.ScraperConfig{
		SourceTimeout: 50 * time.Millisecond,
		MaxConcurrent: 2,
	}
	logger := logging.NewLogger(logging.LevelError, logging.FormatJSON)
	d := NewDispatcher(cfg, []SourceAdapter{
		&stubAdapter{
			platform:   types.PlatformReddit,
			candidates: []*types.RawCandidate{candidate(types.PlatformReddit, "1", "Reddit job")},
		},
		&stubAdapter{platform: types.PlatformTelegram, delay: time.Second},
	}, logger)

	result, err := d.Dispatch(context.Background(), []types.Platform{types.PlatformReddit, types.PlatformTelegram}, nil)

	require.NoError(t, err)
	assert.Equal(t, []types.Platform{types.PlatformReddit}, result.PlatformsOK)
	assert.Equal(t, []types.Platform{types.PlatformTelegram}, result.PlatformsFailed)
}

func TestDispatchNormalizesAndAnalyzes(t *testing.T) {
	d := testDispatcher(&stubAdapter{
		platform: types.PlatformTwitter,
		candidates: []*types.RawCandidate{
			candidate(types.PlatformTwitter, "1", "Hiring\ncommunity manager  ASAP"),
			candidate(types.PlatformTwitter, "2", "   "),
		},
	})

	result, err := d.Dispatch(context.Background(), []types.Platform{types.PlatformTwitter}, nil)

	require.NoError(t, err)
	// The empty-title candidate is dropped.
	require.Len(t, result.Candidates, 1)

	c := result.Candidates[0]
	assert.Equal(t, "Hiring community manager ASAP", c.Title)
	require.NotNil(t, c.Analysis)
	assert.Equal(t, types.UrgencyHigh, c.Analysis.Urgency)
	assert.Contains(t, c.Analysis.Tags, "community_manager")
}

func TestDispatchRejectsUnknownPlatform(t *testing.T) {
	d := testDispatcher(&stubAdapter{platform: types.PlatformTwitter})

	_, err := d.Dispatch(context.Background(), []types.Platform{types.PlatformPumpFun}, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "pumpfun")
}

func TestDispatchCancelledContext(t *testing.T) {
	d := testDispatcher(&stubAdapter{
		platform: types.PlatformTwitter,
		delay:    time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Dispatch(ctx, []types.Platform{types.PlatformTwitter}, nil)
	require.Error(t, err)
}
