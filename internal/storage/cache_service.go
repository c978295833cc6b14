package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/opportunity-scanner/internal/types"
)

// CacheService provides high-level JSON caching for the opportunity scanner
type CacheService struct {
	redis *RedisCache
	ttl   time.Duration
}

// NewCacheService creates a new cache service
func NewCacheService(redis *RedisCache, ttl time.Duration) *CacheService {
	return &CacheService{
		redis: redis,
		ttl:   ttl,
	}
}

// CacheKeyType represents different types of cache keys
type CacheKeyType string

const (
	// CacheKeyOpportunities is for opportunity list pages
	CacheKeyOpportunities CacheKeyType = "opps"
	// CacheKeyBalance is for credit balance projections
	CacheKeyBalance CacheKeyType = "credits"
	// CacheKeyAnalytics is for analytics summaries
	CacheKeyAnalytics CacheKeyType = "analytics"
)

// GenerateCacheKey generates a cache key for a given type and parameters
// Format: <type>:<param1>:<param2>:...
func (c *CacheService) GenerateCacheKey(keyType CacheKeyType, params ...string) string {
	// Normalize all parameters to lowercase for consistency
	normalizedParams := make([]string, len(params))
	for i, param := range params {
		normalizedParams[i] = strings.ToLower(param)
	}

	parts := append([]string{string(keyType)}, normalizedParams...)
	return strings.Join(parts, ":")
}

// GenerateOpportunityPageKey generates a cache key for one opportunity list page
// Format: opps:<user-id>:<platform>:<saved>:<page>:<limit>
func (c *CacheService) GenerateOpportunityPageKey(userID string, platform *types.Platform, savedOnly bool, page, limit int) string {
	platformPart := "all"
	if platform != nil {
		platformPart = string(*platform)
	}
	return c.GenerateCacheKey(CacheKeyOpportunities,
		userID,
		platformPart,
		fmt.Sprintf("%t", savedOnly),
		fmt.Sprintf("%d", page),
		fmt.Sprintf("%d", limit),
	)
}

// GenerateBalanceKey generates a cache key for a user's credit balance
// Format: credits:<user-id>
func (c *CacheService) GenerateBalanceKey(userID string) string {
	return c.GenerateCacheKey(CacheKeyBalance, userID)
}

// GenerateAnalyticsKey generates a cache key for an analytics summary
// Format: analytics:<user-id>:<days>
func (c *CacheService) GenerateAnalyticsKey(userID string, days int) string {
	return c.GenerateCacheKey(CacheKeyAnalytics, userID, fmt.Sprintf("%d", days))
}

// Set stores a value in cache with the configured TTL
func (c *CacheService) Set(ctx context.Context, key string, value interface{}) error {
	return c.SetWithTTL(ctx, key, value, c.ttl)
}

// SetWithTTL stores a value in cache with a custom TTL
func (c *CacheService) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return c.redis.Set(ctx, key, data, ttl)
}

// Get retrieves a value from cache and deserializes it
func (c *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.redis.Get(ctx, key)
	if err != nil {
		// Key not found is not an error, just a cache miss
		if err.Error() == "redis: nil" {
			return false, nil
		}
		return false, fmt.Errorf("failed to get from cache: %w", err)
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}

	return true, nil
}

// Invalidate removes one or more keys from cache
func (c *CacheService) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.redis.Del(ctx, keys...)
}

// InvalidatePattern removes all keys matching a pattern
// Pattern examples: "opps:42:*", "credits:*"
func (c *CacheService) InvalidatePattern(ctx context.Context, pattern string) error {
	keys, err := c.redis.Keys(ctx, pattern)
	if err != nil {
		return fmt.Errorf("failed to find keys matching pattern: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}

	return c.redis.Del(ctx, keys...)
}

// InvalidateUserOpportunities invalidates every cached opportunity page for a
// user. Called after a scan stores new rows or a save/apply flag changes.
func (c *CacheService) InvalidateUserOpportunities(ctx context.Context, userID string) error {
	pattern := fmt.Sprintf("opps:%s:*", strings.ToLower(userID))
	if err := c.InvalidatePattern(ctx, pattern); err != nil {
		return fmt.Errorf("failed to invalidate opportunity cache: %w", err)
	}
	return nil
}

// InvalidateBalance invalidates a user's cached credit balance
func (c *CacheService) InvalidateBalance(ctx context.Context, userID string) error {
	return c.Invalidate(ctx, c.GenerateBalanceKey(userID))
}

// Exists checks if a key exists in cache
func (c *CacheService) Exists(ctx context.Context, key string) (bool, error) {
	return c.redis.Exists(ctx, key)
}

// Refresh updates the TTL on an existing key
func (c *CacheService) Refresh(ctx context.Context, key string) error {
	return c.redis.Expire(ctx, key, c.ttl)
}

// GetTTL returns the configured TTL for this cache service
func (c *CacheService) GetTTL() time.Duration {
	return c.ttl
}
