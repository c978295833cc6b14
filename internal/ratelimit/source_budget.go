// Package ratelimit provides a Redis-coordinated request budget for
// outbound platform calls. External APIs enforce their quotas per API key,
// so the budget is shared across every server instance through Redis
// rather than tracked in-process.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opportunity-scanner/internal/types"
)

const (
	// DefaultWindowSize is the budget accounting window.
	DefaultWindowSize = time.Minute

	keyPrefix = "srcbudget:"
)

// DefaultPlatformLimits holds requests-per-window caps per platform,
// sized under each API's published free-tier quota.
var DefaultPlatformLimits = map[types.Platform]int{
	types.PlatformTwitter:       60,
	types.PlatformReddit:        90,
	types.PlatformTelegram:      120,
	types.PlatformWeb3Career:    60,
	types.PlatformPumpFun:       60,
	types.PlatformDexScreener:   250,
	types.PlatformCoinMarketCap: 25,
	types.PlatformCoinGecko:     25,
}

// SourceBudget tracks per-platform outbound request counts in Redis using
// a window-aligned counter with atomic check-and-increment.
type SourceBudget struct {
	redis      redis.Cmdable
	limits     map[types.Platform]int
	windowSize time.Duration
	keyTTL     time.Duration
}

// SourceBudgetConfig holds configuration for the budget.
type SourceBudgetConfig struct {
	// Redis is required; the budget cannot coordinate without it.
	Redis redis.Cmdable

	// Limits overrides DefaultPlatformLimits per platform. Platforms not
	// listed keep the default; a zero limit disables tracking entirely.
	Limits map[types.Platform]int

	// WindowSize is the accounting window. Default: 1m.
	WindowSize time.Duration
}

// PlatformUsage reports one platform's consumption in the current window.
type PlatformUsage struct {
	Platform    types.Platform `json:"platform"`
	Used        int            `json:"used"`
	Limit       int            `json:"limit"`
	WindowStart time.Time      `json:"windowStart"`
}

// NewSourceBudget creates a budget with the given configuration.
func NewSourceBudget(cfg *SourceBudgetConfig) (*SourceBudget, error) {
	if cfg == nil || cfg.Redis == nil {
		return nil, errors.New("redis client is required")
	}

	windowSize := cfg.WindowSize
	if windowSize == 0 {
		windowSize = DefaultWindowSize
	}

	limits := make(map[types.Platform]int, len(DefaultPlatformLimits))
	for p, n := range DefaultPlatformLimits {
		limits[p] = n
	}
	for p, n := range cfg.Limits {
		if n < 0 {
			return nil, fmt.Errorf("limit for %s cannot be negative", p)
		}
		limits[p] = n
	}

	return &SourceBudget{
		redis:      cfg.Redis,
		limits:     limits,
		windowSize: windowSize,
		keyTTL:     2 * windowSize,
	}, nil
}

func (b *SourceBudget) windowTimestamp() int64 {
	return time.Now().Truncate(b.windowSize).UnixMilli()
}

func (b *SourceBudget) key(platform types.Platform, windowTS int64) string {
	return keyPrefix + string(platform) + ":" + strconv.FormatInt(windowTS, 10)
}

var consumeScript = redis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local ttl = tonumber(ARGV[2])

	local used = tonumber(redis.call('GET', key) or '0')
	if used >= limit then
		return {0, used}
	end

	redis.call('INCR', key)
	redis.call('EXPIRE', key, ttl)
	return {1, used + 1}
`)

// TryConsume attempts to take one request from the platform's budget.
//
// Returns whether the request is allowed and, when it is not, the suggested
// wait until the next window opens. Platforms without a configured limit
// are always allowed. A Redis failure also allows the request: a broken
// coordinator must not take scanning down with it.
func (b *SourceBudget) TryConsume(ctx context.Context, platform types.Platform) (bool, time.Duration) {
	limit, ok := b.limits[platform]
	if !ok || limit == 0 {
		return true, 0
	}

	windowTS := b.windowTimestamp()

	ttlSeconds := int(b.keyTTL.Seconds())
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}

	result, err := consumeScript.Run(ctx, b.redis, []string{b.key(platform, windowTS)},
		limit, ttlSeconds).Int64Slice()
	if err != nil {
		return true, 0
	}

	if result[0] != 1 {
		return false, b.waitUntilNextWindow(windowTS)
	}
	return true, 0
}

func (b *SourceBudget) waitUntilNextWindow(windowTS int64) time.Duration {
	windowEnd := time.UnixMilli(windowTS).Add(b.windowSize)
	wait := time.Until(windowEnd)
	if wait < 0 {
		wait = 0
	}
	return wait + time.Millisecond
}

// Usage returns the current window's consumption for every limited platform.
func (b *SourceBudget) Usage(ctx context.Context) ([]PlatformUsage, error) {
	windowTS := b.windowTimestamp()

	pipe := b.redis.Pipeline()
	cmds := make(map[types.Platform]*redis.StringCmd, len(b.limits))
	for p := range b.limits {
		cmds[p] = pipe.Get(ctx, b.key(p, windowTS))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read budget usage: %w", err)
	}

	out := make([]PlatformUsage, 0, len(b.limits))
	for p, cmd := range cmds {
		used, err := cmd.Int()
		if err != nil {
			used = 0
		}
		out = append(out, PlatformUsage{
			Platform:    p,
			Used:        used,
			Limit:       b.limits[p],
			WindowStart: time.UnixMilli(windowTS),
		})
	}
	return out, nil
}

// Limit returns the configured cap for a platform, zero when unlimited.
func (b *SourceBudget) Limit(platform types.Platform) int {
	return b.limits[platform]
}
