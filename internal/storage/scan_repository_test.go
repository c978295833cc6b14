package storage

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/opportunity-scanner/internal/models"
	"github.com/opportunity-scanner/internal/types"
)

func createTestScan(t *testing.T, repo *ScanRepository, userID string) *models.Scan {
	t.Helper()
	scan := &models.Scan{
		ScanID:             uuid.New().String(),
		UserID:             userID,
		Niches:             []string{"golang"},
		PlatformsRequested: []types.Platform{types.PlatformReddit},
		CreditsUsed:        1,
	}
	if err := repo.Create(testContext(t), scan); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return scan
}

func TestScanRepository_MarkRunningStampsRunningSince(t *testing.T) {
	db := testDB(t)
	repo := NewScanRepository(db)
	userID := createTestUser(t, db)
	ctx := testContext(t)

	scan := createTestScan(t, repo, userID)
	if err := repo.MarkRunning(ctx, scan.ScanID); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}

	got, err := repo.GetByID(ctx, userID, scan.ScanID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != types.ScanStatusRunning {
		t.Errorf("Status = %s, want running", got.Status)
	}
	if got.RunningSince == nil {
		t.Fatal("RunningSince not stamped on the running transition")
	}
	if time.Since(*got.RunningSince) > time.Minute {
		t.Errorf("RunningSince = %v, want close to now", got.RunningSince)
	}
}

func TestScanRepository_FlagOrphans(t *testing.T) {
	db := testDB(t)
	repo := NewScanRepository(db)
	userID := createTestUser(t, db)
	ctx := testContext(t)

	// Stale running scan: picked up long ago, never reached a terminal state.
	staleRunning := createTestScan(t, repo, userID)
	if err := repo.MarkRunning(ctx, staleRunning.ScanID); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}
	backdate(t, db, staleRunning.ScanID, "running_since", -time.Hour)

	// Stale pending scan: created long ago, no worker ever picked it up.
	stalePending := createTestScan(t, repo, userID)
	backdate(t, db, stalePending.ScanID, "started_at", -time.Hour)

	// Running scan that waited in the queue: started_at is old but pickup was
	// recent, so its running budget has barely been touched.
	queuedRunning := createTestScan(t, repo, userID)
	if err := repo.MarkRunning(ctx, queuedRunning.ScanID); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}
	backdate(t, db, queuedRunning.ScanID, "started_at", -time.Hour)

	freshPending := createTestScan(t, repo, userID)

	flagged, err := repo.FlagOrphans(ctx, 15*time.Minute)
	if err != nil {
		t.Fatalf("FlagOrphans() error = %v", err)
	}
	// The sweep is global, so other stale rows may be flagged along with ours.
	if flagged < 2 {
		t.Errorf("FlagOrphans() = %d, want at least 2", flagged)
	}

	wantStatus := map[string]types.ScanStatus{
		staleRunning.ScanID:  types.ScanStatusFailed,
		stalePending.ScanID:  types.ScanStatusFailed,
		queuedRunning.ScanID: types.ScanStatusRunning,
		freshPending.ScanID:  types.ScanStatusPending,
	}
	for scanID, want := range wantStatus {
		got, err := repo.GetByID(ctx, userID, scanID)
		if err != nil {
			t.Fatalf("GetByID(%s) error = %v", scanID, err)
		}
		if got.Status != want {
			t.Errorf("scan %s status = %s, want %s", scanID, got.Status, want)
		}
		if want == types.ScanStatusFailed {
			if got.Error == nil || *got.Error != "orphaned" {
				t.Errorf("scan %s error = %v, want orphaned", scanID, got.Error)
			}
		}
	}
}

func backdate(t *testing.T, db *PostgresDB, scanID, column string, by time.Duration) {
	t.Helper()
	query := "UPDATE scans SET " + column + " = $1 WHERE scan_id = $2"
	if _, err := db.Pool().Exec(testContext(t), query, time.Now().Add(by), scanID); err != nil {
		t.Fatalf("backdating %s: %v", column, err)
	}
}
