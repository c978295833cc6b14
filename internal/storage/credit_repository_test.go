package storage

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"

	"github.com/opportunity-scanner/internal/types"
)

// createTestUser inserts a throwaway user row and removes it (and every
// cascading row) when the test ends.
func createTestUser(t *testing.T, db *PostgresDB) string {
	t.Helper()
	ctx := testContext(t)

	id := uuid.New().String()
	email := fmt.Sprintf("credit-test-%s@example.com", id)
	_, err := db.Pool().Exec(ctx,
		`INSERT INTO users (id, email, tier) VALUES ($1, $2, $3)`,
		id, email, types.TierFree,
	)
	if err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	t.Cleanup(func() {
		_, _ = db.Pool().Exec(testContext(t), `DELETE FROM users WHERE id = $1`, id)
	})
	return id
}

func TestCreditRepository_ConcurrentEnsureRecord(t *testing.T) {
	db := testDB(t)
	repo := NewCreditRepository(db)
	userID := createTestUser(t, db)
	ctx := testContext(t)

	const callers = 10
	const daily = 5

	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.EnsureRecord(ctx, userID, types.TierFree, daily)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("EnsureRecord() error = %v", err)
		}
	}

	rec, err := repo.Get(ctx, userID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.CurrentCredits != daily {
		t.Errorf("CurrentCredits = %d, want %d (a losing insert must not reset the balance)", rec.CurrentCredits, daily)
	}

	var rows int
	if err := db.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM user_credits WHERE user_id = $1`, userID).Scan(&rows); err != nil {
		t.Fatalf("counting credit rows: %v", err)
	}
	if rows != 1 {
		t.Errorf("credit rows = %d, want exactly 1", rows)
	}
}

func TestCreditRepository_ConcurrentReservations(t *testing.T) {
	db := testDB(t)
	repo := NewCreditRepository(db)
	userID := createTestUser(t, db)
	ctx := testContext(t)

	const daily = 5
	const amount = 2
	const callers = 16

	if err := repo.EnsureRecord(ctx, userID, types.TierFree, daily); err != nil {
		t.Fatalf("EnsureRecord() error = %v", err)
	}

	// Each caller runs the reservation transaction: lock the row, check the
	// balance, deduct, commit. The row lock serializes the check-and-deduct,
	// so with 5 credits and 2 per reservation only 2 callers may win.
	var successes atomic.Int32
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			tx, err := repo.BeginTx(ctx)
			if err != nil {
				errs <- err
				return
			}
			defer func() { _ = tx.Rollback(ctx) }()

			rec, err := repo.GetForUpdate(ctx, tx, userID)
			if err != nil {
				errs <- err
				return
			}
			if rec.CurrentCredits < amount {
				return
			}

			rec.CurrentCredits -= amount
			rec.DailyCreditsUsed += amount
			if err := repo.UpdateTx(ctx, tx, rec); err != nil {
				errs <- err
				return
			}
			if err := tx.Commit(ctx); err != nil {
				errs <- err
				return
			}
			successes.Add(1)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("reservation error = %v", err)
	}

	wantWins := int32(daily / amount)
	if successes.Load() != wantWins {
		t.Errorf("successful reservations = %d, want %d", successes.Load(), wantWins)
	}

	rec, err := repo.Get(ctx, userID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	wantLeft := daily - int(wantWins)*amount
	if rec.CurrentCredits != wantLeft {
		t.Errorf("CurrentCredits = %d, want %d", rec.CurrentCredits, wantLeft)
	}
	if rec.DailyCreditsUsed != int(wantWins)*amount {
		t.Errorf("DailyCreditsUsed = %d, want %d", rec.DailyCreditsUsed, int(wantWins)*amount)
	}
}
