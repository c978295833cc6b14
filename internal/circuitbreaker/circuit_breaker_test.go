package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errSourceDown = errors.New("source down")

func testConfig(name string) *Config {
	return &Config{
		Name:             name,
		MaxFailures:      3,
		FailureThreshold: 0.5,
		Timeout:          50 * time.Millisecond,
		HalfOpenMaxCalls: 2,
	}
}

func fail() error    { return errSourceDown }
func succeed() error { return nil }

func TestTripsAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(testConfig("reddit"))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := cb.Execute(ctx, fail); !errors.Is(err, errSourceDown) {
			t.Fatalf("Execute() error = %v, want source error", err)
		}
	}

	if got := cb.GetState(); got != StateOpen {
		t.Fatalf("state = %s, want open", got)
	}
	if err := cb.Execute(ctx, succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() while open error = %v, want ErrCircuitOpen", err)
	}
}

func TestClosesAfterSuccessfulTrials(t *testing.T) {
	cb := NewCircuitBreaker(testConfig("twitter"))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, fail)
	}
	time.Sleep(60 * time.Millisecond)

	// Cooldown elapsed: trial calls are admitted and close the breaker.
	for i := 0; i < 2; i++ {
		if err := cb.Execute(ctx, succeed); err != nil {
			t.Fatalf("trial call %d error = %v", i, err)
		}
	}
	if got := cb.GetState(); got != StateClosed {
		t.Errorf("state = %s, want closed", got)
	}
}

func TestReopensOnFailedTrial(t *testing.T) {
	cb := NewCircuitBreaker(testConfig("telegram"))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, fail)
	}
	time.Sleep(60 * time.Millisecond)

	_ = cb.Execute(ctx, fail)
	if got := cb.GetState(); got != StateOpen {
		t.Errorf("state = %s, want open after failed trial", got)
	}
}

func TestStaysClosedBelowThreshold(t *testing.T) {
	cb := NewCircuitBreaker(testConfig("web3career"))
	ctx := context.Background()

	// One failure in three keeps the rate at a third and the streak at one,
	// both under the trip conditions.
	for i := 0; i < 10; i++ {
		_ = cb.Execute(ctx, succeed)
		_ = cb.Execute(ctx, succeed)
		_ = cb.Execute(ctx, fail)
	}
	if got := cb.GetState(); got != StateClosed {
		t.Errorf("state = %s, want closed", got)
	}
}

func TestRegistrySharesBreakersPerSource(t *testing.T) {
	reg := NewRegistry(*testConfig(""))

	a := reg.For("pumpfun")
	b := reg.For("pumpfun")
	if a != b {
		t.Error("For() returned different breakers for the same source")
	}
	if reg.For("dexscreener") == a {
		t.Error("For() shared a breaker across sources")
	}
}

func TestRegistryAllStats(t *testing.T) {
	reg := NewRegistry(*testConfig(""))
	ctx := context.Background()

	_ = reg.For("twitter").Execute(ctx, fail)
	_ = reg.For("coingecko").Execute(ctx, succeed)

	stats := reg.AllStats()
	if len(stats) != 2 {
		t.Fatalf("AllStats() len = %d, want 2", len(stats))
	}
	if stats[0].Name != "coingecko" || stats[1].Name != "twitter" {
		t.Errorf("AllStats() order = %s, %s, want coingecko, twitter", stats[0].Name, stats[1].Name)
	}
	if stats[1].Failures != 1 {
		t.Errorf("twitter failures = %d, want 1", stats[1].Failures)
	}
}
