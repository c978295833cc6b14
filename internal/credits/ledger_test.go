package credits

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/opportunity-scanner/internal/config"
	apperrors "github.com/opportunity-scanner/internal/errors"
	"github.com/opportunity-scanner/internal/logging"
	"github.com/opportunity-scanner/internal/models"
	"github.com/opportunity-scanner/internal/storage"
	"github.com/opportunity-scanner/internal/types"
)

// In-memory credit store for testing. Transactions are simulated with a
// snapshot that is restored on rollback.

type fakeTx struct {
	pgx.Tx
	store     *mockCreditStore
	committed bool
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	t.store.snapshot = nil
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if !t.committed && t.store.snapshot != nil {
		t.store.records = t.store.snapshot
		t.store.snapshot = nil
	}
	return nil
}

type mockCreditStore struct {
	records  map[string]*models.CreditRecord
	snapshot map[string]*models.CreditRecord
}

func newMockCreditStore() *mockCreditStore {
	return &mockCreditStore{records: make(map[string]*models.CreditRecord)}
}

func (m *mockCreditStore) BeginTx(ctx context.Context) (pgx.Tx, error) {
	m.snapshot = make(map[string]*models.CreditRecord, len(m.records))
	for k, v := range m.records {
		copied := *v
		m.snapshot[k] = &copied
	}
	return &fakeTx{store: m}, nil
}

func (m *mockCreditStore) EnsureRecord(ctx context.Context, userID string, tier types.UserTier, dailyCredits int) error {
	if _, ok := m.records[userID]; ok {
		return nil
	}
	now := time.Now()
	m.records[userID] = &models.CreditRecord{
		UserID:         userID,
		Tier:           tier,
		CurrentCredits: dailyCredits,
		DailyCredits:   dailyCredits,
		LastRefill:     now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return nil
}

func (m *mockCreditStore) Get(ctx context.Context, userID string) (*models.CreditRecord, error) {
	rec, ok := m.records[userID]
	if !ok {
		return nil, fmt.Errorf("credit record %s: %w", userID, storage.ErrNotFound)
	}
	copied := *rec
	return &copied, nil
}

func (m *mockCreditStore) GetForUpdate(ctx context.Context, tx pgx.Tx, userID string) (*models.CreditRecord, error) {
	return m.Get(ctx, userID)
}

func (m *mockCreditStore) UpdateTx(ctx context.Context, tx pgx.Tx, rec *models.CreditRecord) error {
	if _, ok := m.records[rec.UserID]; !ok {
		return fmt.Errorf("credit record %s: %w", rec.UserID, storage.ErrNotFound)
	}
	copied := *rec
	m.records[rec.UserID] = &copied
	return nil
}

func testLedger(store CreditStore) *Ledger {
	return NewLedger(store, nil, config.DefaultTierTable(), logging.NewLogger(logging.LevelError, logging.FormatText))
}

func TestGetOrInitCreatesFreshRecord(t *testing.T) {
	store := newMockCreditStore()
	ledger := testLedger(store)

	rec, err := ledger.GetOrInit(context.Background(), "user-1", types.TierFree)
	if err != nil {
		t.Fatalf("GetOrInit() error = %v", err)
	}

	if rec.CurrentCredits != 10 || rec.DailyCredits != 10 || rec.DailyCreditsUsed != 0 {
		t.Errorf("fresh record = %d/%d used %d, want 10/10 used 0",
			rec.CurrentCredits, rec.DailyCredits, rec.DailyCreditsUsed)
	}
}

func TestGetOrInitIsIdempotent(t *testing.T) {
	store := newMockCreditStore()
	ledger := testLedger(store)
	ctx := context.Background()

	first, err := ledger.GetOrInit(ctx, "user-1", types.TierPro)
	if err != nil {
		t.Fatalf("GetOrInit() error = %v", err)
	}

	// Spend some credits, then re-init; the existing record must survive.
	if _, err := ledger.Reserve(ctx, "user-1", types.TierPro, 5); err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}

	second, err := ledger.GetOrInit(ctx, "user-1", types.TierPro)
	if err != nil {
		t.Fatalf("GetOrInit() error = %v", err)
	}

	if second.CurrentCredits != first.CurrentCredits-5 {
		t.Errorf("re-init credits = %d, want %d", second.CurrentCredits, first.CurrentCredits-5)
	}
}

func TestReserveDeductsAndKeepsInvariant(t *testing.T) {
	store := newMockCreditStore()
	ledger := testLedger(store)
	ctx := context.Background()

	if _, err := ledger.GetOrInit(ctx, "user-1", types.TierPro); err != nil {
		t.Fatalf("GetOrInit() error = %v", err)
	}

	remaining, err := ledger.Reserve(ctx, "user-1", types.TierPro, 5)
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if remaining != 45 {
		t.Errorf("remaining = %d, want 45", remaining)
	}

	rec := store.records["user-1"]
	if rec.CurrentCredits+rec.DailyCreditsUsed != rec.DailyCredits {
		t.Errorf("invariant violated: %d + %d != %d",
			rec.CurrentCredits, rec.DailyCreditsUsed, rec.DailyCredits)
	}
}

func TestReserveInsufficientLeavesRecordUntouched(t *testing.T) {
	store := newMockCreditStore()
	ledger := testLedger(store)
	ctx := context.Background()

	if _, err := ledger.GetOrInit(ctx, "user-1", types.TierFree); err != nil {
		t.Fatalf("GetOrInit() error = %v", err)
	}

	_, err := ledger.Reserve(ctx, "user-1", types.TierFree, 11)
	if err == nil {
		t.Fatal("Reserve() expected insufficient credits error, got nil")
	}

	var catErr *apperrors.CategorizedError
	if !errors.As(err, &catErr) || catErr.Code != "INSUFFICIENT_CREDITS" {
		t.Fatalf("Reserve() error = %v, want INSUFFICIENT_CREDITS", err)
	}
	if catErr.Details["needed"] != 11 || catErr.Details["available"] != 10 {
		t.Errorf("details = %v, want needed=11 available=10", catErr.Details)
	}

	rec := store.records["user-1"]
	if rec.CurrentCredits != 10 || rec.DailyCreditsUsed != 0 {
		t.Errorf("record mutated on failed reserve: %d used %d", rec.CurrentCredits, rec.DailyCreditsUsed)
	}
}

func TestReserveScanBudgetScenario(t *testing.T) {
	// Free tier: 10 credits, scan costs 5. Two scans succeed, the third
	// fails reporting needed=5 available=0.
	store := newMockCreditStore()
	ledger := testLedger(store)
	ctx := context.Background()

	if _, err := ledger.GetOrInit(ctx, "user-1", types.TierFree); err != nil {
		t.Fatalf("GetOrInit() error = %v", err)
	}

	for i, want := range []int{5, 0} {
		remaining, err := ledger.Reserve(ctx, "user-1", types.TierFree, 5)
		if err != nil {
			t.Fatalf("Reserve() #%d error = %v", i+1, err)
		}
		if remaining != want {
			t.Errorf("Reserve() #%d remaining = %d, want %d", i+1, remaining, want)
		}
	}

	_, err := ledger.Reserve(ctx, "user-1", types.TierFree, 5)
	var catErr *apperrors.CategorizedError
	if !errors.As(err, &catErr) || catErr.Code != "INSUFFICIENT_CREDITS" {
		t.Fatalf("third Reserve() error = %v, want INSUFFICIENT_CREDITS", err)
	}
	if catErr.Details["needed"] != 5 || catErr.Details["available"] != 0 {
		t.Errorf("details = %v, want needed=5 available=0", catErr.Details)
	}
}

func TestRefillAfterRollingWindow(t *testing.T) {
	store := newMockCreditStore()
	ledger := testLedger(store)
	ctx := context.Background()

	if _, err := ledger.GetOrInit(ctx, "user-1", types.TierFree); err != nil {
		t.Fatalf("GetOrInit() error = %v", err)
	}
	if _, err := ledger.Reserve(ctx, "user-1", types.TierFree, 10); err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}

	base := store.records["user-1"].LastRefill

	// 23h59m since last refill: still empty.
	ledger.now = func() time.Time { return base.Add(RefillPeriod - time.Minute) }
	if _, err := ledger.Reserve(ctx, "user-1", types.TierFree, 5); err == nil {
		t.Fatal("Reserve() before refill window expected error, got nil")
	}

	// Exactly 24h: full again.
	ledger.now = func() time.Time { return base.Add(RefillPeriod) }
	remaining, err := ledger.Reserve(ctx, "user-1", types.TierFree, 5)
	if err != nil {
		t.Fatalf("Reserve() after refill error = %v", err)
	}
	if remaining != 5 {
		t.Errorf("remaining after refill = %d, want 5", remaining)
	}

	rec := store.records["user-1"]
	if !rec.LastRefill.Equal(base.Add(RefillPeriod)) {
		t.Errorf("last_refill = %v, want %v", rec.LastRefill, base.Add(RefillPeriod))
	}
}

func TestRefillAppliesTierChange(t *testing.T) {
	store := newMockCreditStore()
	ledger := testLedger(store)
	ctx := context.Background()

	if _, err := ledger.GetOrInit(ctx, "user-1", types.TierFree); err != nil {
		t.Fatalf("GetOrInit() error = %v", err)
	}

	base := store.records["user-1"].LastRefill

	// Upgrade mid-window: allowance unchanged until the next refill.
	balance, err := ledger.Balance(ctx, "user-1", types.TierPro)
	if err != nil {
		t.Fatalf("Balance() error = %v", err)
	}
	if balance.DailyCredits != 10 {
		t.Errorf("mid-window daily credits = %d, want 10", balance.DailyCredits)
	}

	ledger.now = func() time.Time { return base.Add(RefillPeriod + time.Hour) }
	balance, err = ledger.Balance(ctx, "user-1", types.TierPro)
	if err != nil {
		t.Fatalf("Balance() error = %v", err)
	}
	if balance.DailyCredits != 50 || balance.CurrentCredits != 50 {
		t.Errorf("post-refill balance = %d/%d, want 50/50", balance.CurrentCredits, balance.DailyCredits)
	}
}

func TestBalancePersistsDueRefill(t *testing.T) {
	store := newMockCreditStore()
	ledger := testLedger(store)
	ctx := context.Background()

	if _, err := ledger.GetOrInit(ctx, "user-1", types.TierFree); err != nil {
		t.Fatalf("GetOrInit() error = %v", err)
	}
	if _, err := ledger.Reserve(ctx, "user-1", types.TierFree, 10); err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}

	base := store.records["user-1"].LastRefill
	ledger.now = func() time.Time { return base.Add(RefillPeriod + time.Minute) }

	balance, err := ledger.Balance(ctx, "user-1", types.TierFree)
	if err != nil {
		t.Fatalf("Balance() error = %v", err)
	}
	if balance.CurrentCredits != 10 || balance.DailyCreditsUsed != 0 {
		t.Errorf("balance after refill = %d used %d, want 10 used 0",
			balance.CurrentCredits, balance.DailyCreditsUsed)
	}

	// The refill was persisted, not just projected.
	rec := store.records["user-1"]
	if rec.CurrentCredits != 10 || rec.DailyCreditsUsed != 0 {
		t.Errorf("stored record after refill = %d used %d, want 10 used 0",
			rec.CurrentCredits, rec.DailyCreditsUsed)
	}
}

func TestBalanceUnknownUser(t *testing.T) {
	store := newMockCreditStore()
	ledger := testLedger(store)

	_, err := ledger.Balance(context.Background(), "ghost", types.TierFree)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Balance() error = %v, want ErrNotFound", err)
	}
}
