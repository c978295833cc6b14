package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opportunity-scanner/internal/logging"
	"github.com/opportunity-scanner/internal/models"
	"github.com/opportunity-scanner/internal/storage"
	"github.com/opportunity-scanner/internal/types"
)

// Mock repositories for testing

type mockOpportunityStore struct {
	rows      map[string]*models.Opportunity // keyed user_id:opportunity_id
	insertErr error
	insertCnt int
	listCalls int
}

func newMockOpportunityStore() *mockOpportunityStore {
	return &mockOpportunityStore{rows: make(map[string]*models.Opportunity)}
}

func oppKey(userID, oppID string) string {
	return userID + ":" + oppID
}

func (m *mockOpportunityStore) InsertIfAbsent(ctx context.Context, opp *models.Opportunity) (bool, error) {
	m.insertCnt++
	if m.insertErr != nil {
		return false, m.insertErr
	}
	key := oppKey(opp.UserID, opp.OpportunityID)
	if _, exists := m.rows[key]; exists {
		return false, nil
	}
	m.rows[key] = opp
	return true, nil
}

func (m *mockOpportunityStore) GetByID(ctx context.Context, userID, opportunityID string) (*models.Opportunity, error) {
	if opp, ok := m.rows[oppKey(userID, opportunityID)]; ok {
		return opp, nil
	}
	return nil, fmt.Errorf("opportunity %s: %w", opportunityID, storage.ErrNotFound)
}

func (m *mockOpportunityStore) List(ctx context.Context, userID string, filter models.OpportunityFilter) (*models.OpportunityPage, error) {
	m.listCalls++
	var opps []*models.Opportunity
	for _, opp := range m.rows {
		if opp.UserID == userID {
			opps = append(opps, opp)
		}
	}
	return &models.OpportunityPage{
		Opportunities: opps,
		Total:         len(opps),
		Page:          filter.Page,
		Limit:         filter.Limit,
	}, nil
}

func (m *mockOpportunityStore) SetSaved(ctx context.Context, userID, opportunityID string, saved bool) error {
	opp, ok := m.rows[oppKey(userID, opportunityID)]
	if !ok {
		return fmt.Errorf("opportunity %s: %w", opportunityID, storage.ErrNotFound)
	}
	opp.IsSaved = saved
	return nil
}

func (m *mockOpportunityStore) MarkApplied(ctx context.Context, userID, opportunityID string) error {
	opp, ok := m.rows[oppKey(userID, opportunityID)]
	if !ok {
		return fmt.Errorf("opportunity %s: %w", opportunityID, storage.ErrNotFound)
	}
	opp.IsApplied = true
	return nil
}

func testOpportunityService(store *mockOpportunityStore) *OpportunityService {
	logger := logging.NewLogger(logging.LevelError, logging.FormatJSON)
	return NewOpportunityService(store, nil, logger)
}

func rawCandidate(platform types.Platform, id string) *types.RawCandidate {
	return &types.RawCandidate{
		ID:          string(platform) + ":" + id,
		Platform:    platform,
		Title:       "Opportunity " + id,
		Description: "Description " + id,
		Analysis: &types.Analysis{
			Confidence: 60,
			Urgency:    types.UrgencyLow,
		},
	}
}

func TestPersistStoresUpToTierLimit(t *testing.T) {
	store := newMockOpportunityStore()
	svc := testOpportunityService(store)

	var candidates []*types.RawCandidate
	for i := 0; i < 10; i++ {
		candidates = append(candidates, rawCandidate(types.PlatformReddit, fmt.Sprintf("%d", i)))
	}

	result, err := svc.Persist(context.Background(), "user-1", "scan-1", candidates, 5)

	require.NoError(t, err)
	assert.Equal(t, 5, result.Stored)
	assert.Len(t, store.rows, 5)
	assert.Equal(t, 5, result.ByPlatform[types.PlatformReddit])

	// Earlier candidates win the truncation.
	_, ok := store.rows[oppKey("user-1", "reddit:0")]
	assert.True(t, ok)
	_, ok = store.rows[oppKey("user-1", "reddit:9")]
	assert.False(t, ok)
}

func TestPersistSkipsBatchInternalDuplicates(t *testing.T) {
	store := newMockOpportunityStore()
	svc := testOpportunityService(store)

	candidates := []*types.RawCandidate{
		rawCandidate(types.PlatformTwitter, "a"),
		rawCandidate(types.PlatformTwitter, "a"),
		rawCandidate(types.PlatformTwitter, "b"),
	}

	result, err := svc.Persist(context.Background(), "user-1", "scan-1", candidates, 5)

	require.NoError(t, err)
	assert.Equal(t, 2, result.Stored)
}

func TestPersistIsIdempotentAcrossScans(t *testing.T) {
	store := newMockOpportunityStore()
	svc := testOpportunityService(store)

	candidates := []*types.RawCandidate{
		rawCandidate(types.PlatformTwitter, "a"),
		rawCandidate(types.PlatformTwitter, "b"),
	}

	first, err := svc.Persist(context.Background(), "user-1", "scan-1", candidates, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Stored)

	// Same candidates from a later scan store nothing new.
	second, err := svc.Persist(context.Background(), "user-1", "scan-2", candidates, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Stored)
	assert.Len(t, store.rows, 2)

	// The original rows keep their first scan's provenance.
	assert.Equal(t, "scan-1", store.rows[oppKey("user-1", "twitter:a")].ScanID)
}

func TestPersistExistingRowsDoNotConsumeLimit(t *testing.T) {
	store := newMockOpportunityStore()
	svc := testOpportunityService(store)

	seed := []*types.RawCandidate{
		rawCandidate(types.PlatformTwitter, "a"),
		rawCandidate(types.PlatformTwitter, "b"),
	}
	_, err := svc.Persist(context.Background(), "user-1", "scan-1", seed, 5)
	require.NoError(t, err)

	// Re-run with the old candidates first plus three new ones, limit 3:
	// the duplicates are skipped and all three new rows land.
	batch := append(append([]*types.RawCandidate{}, seed...),
		rawCandidate(types.PlatformReddit, "c"),
		rawCandidate(types.PlatformReddit, "d"),
		rawCandidate(types.PlatformReddit, "e"),
	)

	result, err := svc.Persist(context.Background(), "user-1", "scan-2", batch, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Stored)
	assert.Len(t, store.rows, 5)
}

func TestPersistZeroLimitStoresNothing(t *testing.T) {
	store := newMockOpportunityStore()
	svc := testOpportunityService(store)

	result, err := svc.Persist(context.Background(), "user-1", "scan-1",
		[]*types.RawCandidate{rawCandidate(types.PlatformTwitter, "a")}, 0)

	require.NoError(t, err)
	assert.Equal(t, 0, result.Stored)
	assert.Equal(t, 0, store.insertCnt)
}

func TestPersistCarriesAnalysisAndContact(t *testing.T) {
	store := newMockOpportunityStore()
	svc := testOpportunityService(store)

	tg := "https://t.me/hiring"
	notes := "possible scam signals detected"
	c := &types.RawCandidate{
		ID:          "twitter:42",
		Platform:    types.PlatformTwitter,
		Title:       "Mod needed",
		Description: "apply now",
		URL:         "https://twitter.com/x/status/42",
		Contact:     types.Contact{Telegram: &tg},
		Analysis: &types.Analysis{
			Confidence: 25,
			Tags:       []string{"moderator"},
			Urgency:    types.UrgencyHigh,
			Notes:      &notes,
		},
	}

	_, err := svc.Persist(context.Background(), "user-1", "scan-1", []*types.RawCandidate{c}, 5)
	require.NoError(t, err)

	opp := store.rows[oppKey("user-1", "twitter:42")]
	require.NotNil(t, opp)
	require.NotNil(t, opp.Confidence)
	assert.Equal(t, 25, *opp.Confidence)
	assert.Equal(t, []string{"moderator"}, opp.Tags)
	require.NotNil(t, opp.Urgency)
	assert.Equal(t, types.UrgencyHigh, *opp.Urgency)
	require.NotNil(t, opp.Telegram)
	assert.Equal(t, tg, *opp.Telegram)
	assert.Equal(t, "scan-1", opp.ScanID)
	assert.False(t, opp.FoundAt.IsZero())
}

func TestSetSavedAndMarkApplied(t *testing.T) {
	store := newMockOpportunityStore()
	svc := testOpportunityService(store)

	_, err := svc.Persist(context.Background(), "user-1", "scan-1",
		[]*types.RawCandidate{rawCandidate(types.PlatformTwitter, "a")}, 5)
	require.NoError(t, err)

	require.NoError(t, svc.SetSaved(context.Background(), "user-1", "twitter:a", true))
	assert.True(t, store.rows[oppKey("user-1", "twitter:a")].IsSaved)

	require.NoError(t, svc.MarkApplied(context.Background(), "user-1", "twitter:a"))
	assert.True(t, store.rows[oppKey("user-1", "twitter:a")].IsApplied)

	// Another user cannot touch the row.
	err = svc.SetSaved(context.Background(), "user-2", "twitter:a", true)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
