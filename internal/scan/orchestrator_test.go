package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opportunity-scanner/internal/config"
	apperrors "github.com/opportunity-scanner/internal/errors"
	"github.com/opportunity-scanner/internal/logging"
	"github.com/opportunity-scanner/internal/models"
	"github.com/opportunity-scanner/internal/service"
	"github.com/opportunity-scanner/internal/storage"
	"github.com/opportunity-scanner/internal/types"
)

// Mock collaborators for testing

type mockUserStore struct {
	users map[string]*models.User
}

func (m *mockUserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("user %s: %w", id, storage.ErrNotFound)
}

type mockNicheStore struct {
	niches []*models.Niche
}

func (m *mockNicheStore) ListByUser(ctx context.Context, userID string, activeOnly bool) ([]*models.Niche, error) {
	var out []*models.Niche
	for _, n := range m.niches {
		if n.UserID != userID {
			continue
		}
		if activeOnly && !n.IsActive {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

type mockScanStore struct {
	mu    sync.Mutex
	scans map[string]*models.Scan
}

func newMockScanStore() *mockScanStore {
	return &mockScanStore{scans: make(map[string]*models.Scan)}
}

func (m *mockScanStore) Create(ctx context.Context, scan *models.Scan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	scan.Status = types.ScanStatusPending
	m.scans[scan.ScanID] = scan
	return nil
}

func (m *mockScanStore) GetByID(ctx context.Context, userID, scanID string) (*models.Scan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.scans[scanID]; ok && s.UserID == userID {
		copied := *s
		return &copied, nil
	}
	return nil, fmt.Errorf("scan %s: %w", scanID, storage.ErrNotFound)
}

func (m *mockScanStore) ListByUser(ctx context.Context, userID string, limit int) ([]*models.Scan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Scan
	for _, s := range m.scans {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockScanStore) MarkRunning(ctx context.Context, scanID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scans[scanID]
	if !ok || s.Status != types.ScanStatusPending {
		return fmt.Errorf("scan %s is not pending: %w", scanID, storage.ErrNotFound)
	}
	s.Status = types.ScanStatusRunning
	return nil
}

func (m *mockScanStore) Complete(ctx context.Context, scan *models.Scan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scans[scan.ScanID]
	if !ok || s.Status != types.ScanStatusRunning {
		return fmt.Errorf("scan %s is not running: %w", scan.ScanID, storage.ErrNotFound)
	}
	s.Status = types.ScanStatusCompleted
	s.PlatformsScanned = scan.PlatformsScanned
	s.FailedPlatforms = scan.FailedPlatforms
	s.OpportunitiesFound = scan.OpportunitiesFound
	now := time.Now().UTC()
	s.CompletedAt = &now
	return nil
}

func (m *mockScanStore) Fail(ctx context.Context, scanID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scans[scanID]
	if !ok || s.Status.IsTerminal() {
		return fmt.Errorf("scan %s is terminal: %w", scanID, storage.ErrNotFound)
	}
	s.Status = types.ScanStatusFailed
	s.Error = &reason
	now := time.Now().UTC()
	s.CompletedAt = &now
	return nil
}

func (m *mockScanStore) get(scanID string) *models.Scan {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scans[scanID]
}

type mockReserver struct {
	mu       sync.Mutex
	balance  int
	reserves int
}

func (m *mockReserver) GetOrInit(ctx context.Context, userID string, tier types.UserTier) (*models.CreditRecord, error) {
	return &models.CreditRecord{UserID: userID, Tier: tier, CurrentCredits: m.balance}, nil
}

func (m *mockReserver) Reserve(ctx context.Context, userID string, tier types.UserTier, amount int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balance < amount {
		return 0, apperrors.NewInsufficientCreditsError(amount, m.balance, 3.5)
	}
	m.balance -= amount
	m.reserves++
	return m.balance, nil
}

type mockDispatcher struct {
	result *types.DispatchResult
	err    error
	block  chan struct{} // when set, Dispatch waits for close
}

func (m *mockDispatcher) Dispatch(ctx context.Context, platforms []types.Platform, niches []*models.Niche) (*types.DispatchResult, error) {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type mockPersister struct {
	result *service.PersistResult
	err    error
}

func (m *mockPersister) Persist(ctx context.Context, userID, scanID string, candidates []*types.RawCandidate, tierLimit int) (*service.PersistResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	stored := len(candidates)
	if stored > tierLimit {
		stored = tierLimit
	}
	return &service.PersistResult{Stored: stored, ByPlatform: map[types.Platform]int{}}, nil
}

type mockRecorder struct {
	mu     sync.Mutex
	events []models.ScanEvent
}

func (m *mockRecorder) RecordEvents(ctx context.Context, events []models.ScanEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
}

type orchestratorFixture struct {
	orch      *Orchestrator
	users     *mockUserStore
	scans     *mockScanStore
	reserver  *mockReserver
	persister *mockPersister
	pool      *Pool
}

func newFixture(t *testing.T, dispatcher CandidateDispatcher) *orchestratorFixture {
	t.Helper()

	users := &mockUserStore{users: map[string]*models.User{
		"user-1": {ID: "user-1", Email: "u@example.com", Tier: types.TierPro},
	}}
	niches := &mockNicheStore{niches: []*models.Niche{
		{ID: "n1", UserID: "user-1", Name: "web3", Keywords: []string{"web3"}, IsActive: true},
		{ID: "n2", UserID: "user-1", Name: "dormant", Keywords: []string{"x"}, IsActive: false},
	}}
	scans := newMockScanStore()
	reserver := &mockReserver{balance: 50}
	persister := &mockPersister{}
	pool := NewPool(2, logging.NewLogger(logging.LevelError, logging.FormatJSON))
	t.Cleanup(pool.Stop)

	orch, err := NewOrchestrator(&OrchestratorConfig{
		UserRepo:   users,
		NicheRepo:  niches,
		ScanRepo:   scans,
		Ledger:     reserver,
		Dispatcher: dispatcher,
		OppService: persister,
		Analytics:  &mockRecorder{},
		Pool:       pool,
		Tiers:      config.DefaultTierTable(),
		CreditCost: 5,
		ScanBudget: 2 * time.Second,
		Logger:     logging.NewLogger(logging.LevelError, logging.FormatJSON),
	})
	require.NoError(t, err)

	return &orchestratorFixture{
		orch:      orch,
		users:     users,
		scans:     scans,
		reserver:  reserver,
		persister: persister,
		pool:      pool,
	}
}

func waitForTerminal(t *testing.T, store *mockScanStore, scanID string) *models.Scan {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := store.get(scanID); s != nil && s.Status.IsTerminal() {
			return s
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("scan %s never reached a terminal state", scanID)
	return nil
}

func TestStartScanHappyPath(t *testing.T) {
	dispatcher := &mockDispatcher{result: &types.DispatchResult{
		Candidates: []*types.RawCandidate{
			{ID: "twitter:1", Platform: types.PlatformTwitter, Title: "Job"},
		},
		PlatformsOK: []types.Platform{types.PlatformTwitter, types.PlatformReddit},
		PerPlatform: []types.PlatformReport{
			{Platform: types.PlatformTwitter, Candidates: 1},
			{Platform: types.PlatformReddit, Candidates: 0},
		},
	}}
	f := newFixture(t, dispatcher)

	scan, err := f.orch.StartScan(context.Background(), "user-1", nil)

	require.NoError(t, err)
	assert.Equal(t, types.ScanStatusPending, scan.Status)
	assert.Equal(t, 5, scan.CreditsUsed)
	assert.Equal(t, []string{"web3"}, scan.Niches)
	assert.Equal(t, 45, f.reserver.balance)

	final := waitForTerminal(t, f.scans, scan.ScanID)
	assert.Equal(t, types.ScanStatusCompleted, final.Status)
	assert.Equal(t, 1, final.OpportunitiesFound)
	assert.Equal(t, []types.Platform{types.PlatformTwitter, types.PlatformReddit}, final.PlatformsScanned)
}

func TestStartScanInsufficientCredits(t *testing.T) {
	f := newFixture(t, &mockDispatcher{result: &types.DispatchResult{}})
	f.reserver.balance = 2

	_, err := f.orch.StartScan(context.Background(), "user-1", nil)

	require.Error(t, err)
	var catErr *apperrors.CategorizedError
	require.ErrorAs(t, err, &catErr)
	assert.Equal(t, "INSUFFICIENT_CREDITS", catErr.Code)
	// No scan row is created when the reservation fails.
	assert.Empty(t, f.scans.scans)
}

func TestStartScanUnknownUser(t *testing.T) {
	f := newFixture(t, &mockDispatcher{result: &types.DispatchResult{}})

	_, err := f.orch.StartScan(context.Background(), "ghost", nil)

	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, 0, f.reserver.reserves)
}

func TestStartScanNoActiveNiches(t *testing.T) {
	f := newFixture(t, &mockDispatcher{result: &types.DispatchResult{}})

	// Only the dormant niche matches, and it is inactive.
	_, err := f.orch.StartScan(context.Background(), "user-1", []string{"dormant"})

	require.Error(t, err)
	var catErr *apperrors.CategorizedError
	require.ErrorAs(t, err, &catErr)
	assert.Equal(t, "INVALID_PARAMETER", catErr.Code)
	// Validation happens before charging.
	assert.Equal(t, 0, f.reserver.reserves)
}

func TestScanFailsOnDispatchError(t *testing.T) {
	f := newFixture(t, &mockDispatcher{err: errors.New("dispatch blew up")})

	scan, err := f.orch.StartScan(context.Background(), "user-1", nil)
	require.NoError(t, err)

	final := waitForTerminal(t, f.scans, scan.ScanID)
	assert.Equal(t, types.ScanStatusFailed, final.Status)
	require.NotNil(t, final.Error)
	assert.Contains(t, *final.Error, "dispatch blew up")
	// Credits are not refunded on failure.
	assert.Equal(t, 45, f.reserver.balance)
}

func TestScanFailsOnPersistError(t *testing.T) {
	f := newFixture(t, &mockDispatcher{result: &types.DispatchResult{
		Candidates:  []*types.RawCandidate{{ID: "x:1", Platform: types.PlatformTwitter, Title: "t"}},
		PlatformsOK: []types.Platform{types.PlatformTwitter},
	}})
	f.persister.err = errors.New("postgres down")

	scan, err := f.orch.StartScan(context.Background(), "user-1", nil)
	require.NoError(t, err)

	final := waitForTerminal(t, f.scans, scan.ScanID)
	assert.Equal(t, types.ScanStatusFailed, final.Status)
}

func TestScanCompletesWithFailedPlatforms(t *testing.T) {
	f := newFixture(t, &mockDispatcher{result: &types.DispatchResult{
		Candidates:      []*types.RawCandidate{{ID: "r:1", Platform: types.PlatformReddit, Title: "t"}},
		PlatformsOK:     []types.Platform{types.PlatformReddit},
		PlatformsFailed: []types.Platform{types.PlatformTwitter},
		PerPlatform: []types.PlatformReport{
			{Platform: types.PlatformReddit, Candidates: 1},
			{Platform: types.PlatformTwitter, Err: errors.New("down")},
		},
	}})

	scan, err := f.orch.StartScan(context.Background(), "user-1", nil)
	require.NoError(t, err)

	// Partial platform failure still completes the scan.
	final := waitForTerminal(t, f.scans, scan.ScanID)
	assert.Equal(t, types.ScanStatusCompleted, final.Status)
	assert.Equal(t, []types.Platform{types.PlatformTwitter}, final.FailedPlatforms)
}

func TestGetScanOwnerScoped(t *testing.T) {
	f := newFixture(t, &mockDispatcher{result: &types.DispatchResult{}})

	scan, err := f.orch.StartScan(context.Background(), "user-1", nil)
	require.NoError(t, err)
	waitForTerminal(t, f.scans, scan.ScanID)

	got, err := f.orch.GetScan(context.Background(), "user-1", scan.ScanID)
	require.NoError(t, err)
	assert.Equal(t, scan.ScanID, got.ScanID)

	_, err = f.orch.GetScan(context.Background(), "user-2", scan.ScanID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
