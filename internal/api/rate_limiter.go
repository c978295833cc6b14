package api

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/opportunity-scanner/internal/config"
	"github.com/opportunity-scanner/internal/types"
)

// rateLimiter enforces per-user request rates based on subscription tier.
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*userLimiter
	cfg      config.RateLimitConfig
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiter(cfg config.RateLimitConfig) *rateLimiter {
	rl := &rateLimiter{
		limiters: make(map[string]*userLimiter),
		cfg:      cfg,
	}
	go rl.cleanup()
	return rl
}

// limitFor maps a tier header value to a requests-per-minute budget.
func (rl *rateLimiter) limitFor(tier string) int {
	switch types.UserTier(tier) {
	case types.TierPremium:
		return rl.cfg.PremiumTier
	case types.TierPro:
		return rl.cfg.ProTier
	default:
		return rl.cfg.FreeTier
	}
}

func (rl *rateLimiter) allow(userID, tier string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	ul, ok := rl.limiters[userID]
	if !ok {
		perMinute := rl.limitFor(tier)
		ul = &userLimiter{
			limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 10),
		}
		rl.limiters[userID] = ul
	}
	ul.lastSeen = time.Now()
	return ul.limiter.Allow()
}

// cleanup evicts limiters for users idle longer than 10 minutes.
func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		rl.mu.Lock()
		cutoff := time.Now().Add(-10 * time.Minute)
		for id, ul := range rl.limiters {
			if ul.lastSeen.Before(cutoff) {
				delete(rl.limiters, id)
			}
		}
		rl.mu.Unlock()
	}
}

// RateLimitMiddleware rejects requests exceeding the caller's tier budget.
// Unidentified callers share the free tier budget under a single bucket.
func RateLimitMiddleware(cfg config.RateLimitConfig) func(http.Handler) http.Handler {
	rl := newRateLimiter(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, tier := requestIdentity(r)
			if userID == "" {
				userID = "anonymous"
			}
			if !rl.allow(userID, tier) {
				w.Header().Set("Retry-After", "60")
				respondError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Too many requests, slow down", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
