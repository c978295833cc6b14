package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opportunity-scanner/internal/config"
	apperrors "github.com/opportunity-scanner/internal/errors"
	"github.com/opportunity-scanner/internal/logging"
	"github.com/opportunity-scanner/internal/models"
	"github.com/opportunity-scanner/internal/service"
	"github.com/opportunity-scanner/internal/types"
)

// UserStore is the slice of the user repository the orchestrator needs
type UserStore interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// NicheStore is the slice of the niche repository the orchestrator needs
type NicheStore interface {
	ListByUser(ctx context.Context, userID string, activeOnly bool) ([]*models.Niche, error)
}

// ScanStore persists scan records and drives their state machine
type ScanStore interface {
	Create(ctx context.Context, scan *models.Scan) error
	GetByID(ctx context.Context, userID, scanID string) (*models.Scan, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.Scan, error)
	MarkRunning(ctx context.Context, scanID string) error
	Complete(ctx context.Context, scan *models.Scan) error
	Fail(ctx context.Context, scanID, reason string) error
}

// CreditReserver is the slice of the credit ledger the orchestrator needs
type CreditReserver interface {
	GetOrInit(ctx context.Context, userID string, tier types.UserTier) (*models.CreditRecord, error)
	Reserve(ctx context.Context, userID string, tier types.UserTier, amount int) (int, error)
}

// CandidateDispatcher fans a scan out across platforms
type CandidateDispatcher interface {
	Dispatch(ctx context.Context, platforms []types.Platform, niches []*models.Niche) (*types.DispatchResult, error)
}

// OpportunityPersister stores dispatched candidates for a user
type OpportunityPersister interface {
	Persist(ctx context.Context, userID, scanID string, candidates []*types.RawCandidate, tierLimit int) (*service.PersistResult, error)
}

// EventRecorder records per-platform scan events for analytics
type EventRecorder interface {
	RecordEvents(ctx context.Context, events []models.ScanEvent)
}

// Orchestrator owns the scan lifecycle: credit reservation, the pending ->
// running -> terminal state machine, and the background execution of scan
// bodies on the pool.
type Orchestrator struct {
	userRepo   UserStore
	nicheRepo  NicheStore
	scanRepo   ScanStore
	ledger     CreditReserver
	dispatcher CandidateDispatcher
	oppSvc     OpportunityPersister
	analytics  EventRecorder
	pool       *Pool
	tiers      config.TierTable
	creditCost int
	scanBudget time.Duration
	logger     *logging.Logger
}

// OrchestratorConfig holds the collaborators an Orchestrator needs
type OrchestratorConfig struct {
	UserRepo   UserStore
	NicheRepo  NicheStore
	ScanRepo   ScanStore
	Ledger     CreditReserver
	Dispatcher CandidateDispatcher
	OppService OpportunityPersister
	Analytics  EventRecorder
	Pool       *Pool
	Tiers      config.TierTable
	CreditCost int
	// ScanBudget caps the wall-clock time of one scan body. Defaults to 10m,
	// safely under the janitor's orphan deadline.
	ScanBudget time.Duration
	Logger     *logging.Logger
}

func NewOrchestrator(cfg *OrchestratorConfig) (*Orchestrator, error) {
	if cfg.UserRepo == nil {
		return nil, fmt.Errorf("user repository cannot be nil")
	}
	if cfg.NicheRepo == nil {
		return nil, fmt.Errorf("niche repository cannot be nil")
	}
	if cfg.ScanRepo == nil {
		return nil, fmt.Errorf("scan repository cannot be nil")
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("credit ledger cannot be nil")
	}
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher cannot be nil")
	}
	if cfg.OppService == nil {
		return nil, fmt.Errorf("opportunity service cannot be nil")
	}
	if cfg.Pool == nil {
		return nil, fmt.Errorf("pool cannot be nil")
	}

	creditCost := cfg.CreditCost
	if creditCost <= 0 {
		creditCost = 5
	}
	scanBudget := cfg.ScanBudget
	if scanBudget <= 0 {
		scanBudget = 10 * time.Minute
	}

	return &Orchestrator{
		userRepo:   cfg.UserRepo,
		nicheRepo:  cfg.NicheRepo,
		scanRepo:   cfg.ScanRepo,
		ledger:     cfg.Ledger,
		dispatcher: cfg.Dispatcher,
		oppSvc:     cfg.OppService,
		analytics:  cfg.Analytics,
		pool:       cfg.Pool,
		tiers:      cfg.Tiers,
		creditCost: creditCost,
		scanBudget: scanBudget,
		logger:     cfg.Logger,
	}, nil
}

// StartScan reserves credits and schedules a scan, returning the pending
// scan row immediately. The body runs on the pool; callers poll GetScan for
// progress.
//
// Credits are charged at start and not refunded on failure.
func (o *Orchestrator) StartScan(ctx context.Context, userID string, nicheNames []string) (*models.Scan, error) {
	user, err := o.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	niches, err := o.resolveNiches(ctx, userID, nicheNames)
	if err != nil {
		return nil, err
	}

	if _, err := o.ledger.GetOrInit(ctx, userID, user.Tier); err != nil {
		return nil, err
	}
	if _, err := o.ledger.Reserve(ctx, userID, user.Tier, o.creditCost); err != nil {
		// Insufficient credits: no scan row is created, nothing to clean up.
		return nil, err
	}

	platforms := o.tiers.PlatformsFor(user.Tier)
	scan := &models.Scan{
		ScanID:             uuid.New().String(),
		UserID:             userID,
		Status:             types.ScanStatusPending,
		Niches:             nicheNamesOf(niches),
		PlatformsRequested: platforms,
		CreditsUsed:        o.creditCost,
		StartedAt:          time.Now().UTC(),
	}
	if err := o.scanRepo.Create(ctx, scan); err != nil {
		return nil, fmt.Errorf("failed to create scan record: %w", err)
	}

	tierLimit := o.tiers.Limits(user.Tier).MaxOpportunities

	// The body outlives the HTTP request, so it runs on a fresh context.
	submitErr := o.pool.Submit(context.Background(),
		func(ctx context.Context) {
			o.runScan(ctx, scan, niches, tierLimit)
		},
		func(recovered interface{}) {
			o.failScan(scan.ScanID, fmt.Sprintf("panic: %v", recovered))
		},
	)
	if submitErr != nil {
		o.failScan(scan.ScanID, "scheduler unavailable")
		return nil, apperrors.NewScanFailedError(scan.ScanID, submitErr)
	}

	o.logger.WithFields(map[string]interface{}{
		"scan_id":   scan.ScanID,
		"user_id":   userID,
		"platforms": len(platforms),
		"niches":    len(niches),
	}).Info("Scan scheduled")

	return scan, nil
}

// GetScan returns a scan owned by the user
func (o *Orchestrator) GetScan(ctx context.Context, userID, scanID string) (*models.Scan, error) {
	return o.scanRepo.GetByID(ctx, userID, scanID)
}

// History returns the user's scans, newest first
func (o *Orchestrator) History(ctx context.Context, userID string, limit int) ([]*models.Scan, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return o.scanRepo.ListByUser(ctx, userID, limit)
}

// resolveNiches loads the user's active niches, filtered to the requested
// names when given. A scan with no matching active niches is rejected.
func (o *Orchestrator) resolveNiches(ctx context.Context, userID string, names []string) ([]*models.Niche, error) {
	active, err := o.nicheRepo.ListByUser(ctx, userID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to load niches: %w", err)
	}

	if len(names) == 0 {
		if len(active) == 0 {
			return nil, apperrors.NewInvalidParameterError("niches", "no active niches configured")
		}
		return active, nil
	}

	wanted := make(map[string]struct{}, len(names))
	for _, n := range names {
		wanted[n] = struct{}{}
	}
	var matched []*models.Niche
	for _, n := range active {
		if _, ok := wanted[n.Name]; ok {
			matched = append(matched, n)
		}
	}
	if len(matched) == 0 {
		return nil, apperrors.NewInvalidParameterError("niches", "no active niches match the request")
	}
	return matched, nil
}

// runScan is the scan body executed on the pool. It always drives the scan
// to a terminal state; partial platform failures reduce the result set but
// never fail the scan.
func (o *Orchestrator) runScan(ctx context.Context, scan *models.Scan, niches []*models.Niche, tierLimit int) {
	ctx, cancel := context.WithTimeout(ctx, o.scanBudget)
	defer cancel()

	logger := o.logger.WithFields(map[string]interface{}{
		"scan_id": scan.ScanID,
		"user_id": scan.UserID,
	})

	if err := o.scanRepo.MarkRunning(ctx, scan.ScanID); err != nil {
		// Already terminal (janitor beat us to it) or gone; nothing to run.
		logger.WithError(err).Warn("Scan no longer pending, skipping")
		return
	}

	result, err := o.dispatcher.Dispatch(ctx, scan.PlatformsRequested, niches)
	if err != nil {
		logger.WithError(err).Error("Scan dispatch failed")
		o.failScan(scan.ScanID, err.Error())
		return
	}

	persisted, err := o.oppSvc.Persist(ctx, scan.UserID, scan.ScanID, result.Candidates, tierLimit)
	if err != nil {
		logger.WithError(err).Error("Scan persistence failed")
		o.failScan(scan.ScanID, err.Error())
		return
	}

	o.recordEvents(scan, result, persisted)

	scan.PlatformsScanned = result.PlatformsOK
	scan.FailedPlatforms = result.PlatformsFailed
	scan.OpportunitiesFound = persisted.Stored
	if err := o.scanRepo.Complete(ctx, scan); err != nil {
		logger.WithError(err).Error("Failed to complete scan")
		return
	}

	logger.WithFields(map[string]interface{}{
		"candidates": len(result.Candidates),
		"stored":     persisted.Stored,
		"failed":     len(result.PlatformsFailed),
	}).Info("Scan completed")
}

// failScan drives a scan to failed on its own context: the scan context may
// already be dead when failure is being recorded.
func (o *Orchestrator) failScan(scanID, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := o.scanRepo.Fail(ctx, scanID, reason); err != nil {
		o.logger.WithField("scan_id", scanID).WithError(err).Error("Failed to mark scan failed")
	}
}

func (o *Orchestrator) recordEvents(scan *models.Scan, result *types.DispatchResult, persisted *service.PersistResult) {
	if o.analytics == nil {
		return
	}

	now := time.Now().UTC()
	events := make([]models.ScanEvent, 0, len(result.PerPlatform))
	for _, report := range result.PerPlatform {
		events = append(events, models.ScanEvent{
			EventTime:       now,
			UserID:          scan.UserID,
			ScanID:          scan.ScanID,
			Platform:        report.Platform,
			CandidatesFound: report.Candidates,
			Stored:          persisted.ByPlatform[report.Platform],
			DurationMs:      report.Duration.Milliseconds(),
			Failed:          report.Err != nil,
		})
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		o.analytics.RecordEvents(ctx, events)
	}()
}

func nicheNamesOf(niches []*models.Niche) []string {
	names := make([]string, len(niches))
	for i, n := range niches {
		names[i] = n.Name
	}
	return names
}
