// Package scraper provides per-platform source adapters and the dispatcher
// that fans a scan out across them.
package scraper

import (
	"context"
	"fmt"

	"github.com/opportunity-scanner/internal/models"
	"github.com/opportunity-scanner/internal/types"
)

// SourceAdapter defines the interface for platform-specific scrapers.
// Implementations own the full round trip to their platform: fetching, paging
// and mapping the native payload into RawCandidate. Raw platform shapes never
// escape the adapter.
type SourceAdapter interface {
	// Platform returns the platform this adapter scrapes
	Platform() types.Platform

	// Fetch retrieves candidate opportunities matching the given niches.
	// Fetch is stateless: every call hits the platform again.
	// Returns error if the platform request fails or times out.
	Fetch(ctx context.Context, niches []*models.Niche) ([]*types.RawCandidate, error)
}

// Common error types for source adapters

var (
	// ErrSourceUnavailable indicates the platform is unreachable or erroring
	ErrSourceUnavailable = fmt.Errorf("scan source unavailable")

	// ErrSourceRateLimit indicates the platform rate limit was exceeded
	ErrSourceRateLimit = fmt.Errorf("scan source rate limit exceeded")

	// ErrSourceTimeout indicates the platform request timed out
	ErrSourceTimeout = fmt.Errorf("scan source request timeout")

	// ErrMalformedPayload indicates the platform returned an unexpected shape
	ErrMalformedPayload = fmt.Errorf("malformed source payload")
)

// AdapterError wraps errors with platform context
type AdapterError struct {
	Platform types.Platform
	Op       string // Operation that failed (e.g., "Fetch", "Search")
	Err      error
	Details  map[string]interface{}
}

func (e *AdapterError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("source adapter error [%s:%s]: %v (details: %+v)", e.Platform, e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("source adapter error [%s:%s]: %v", e.Platform, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// NewAdapterError creates a new AdapterError
func NewAdapterError(platform types.Platform, op string, err error, details map[string]interface{}) *AdapterError {
	return &AdapterError{
		Platform: platform,
		Op:       op,
		Err:      err,
		Details:  details,
	}
}

// nicheKeywords flattens the keyword lists of all niches, deduplicated,
// preserving first-seen order.
func nicheKeywords(niches []*models.Niche) []string {
	seen := make(map[string]struct{})
	var keywords []string
	for _, n := range niches {
		for _, k := range n.Keywords {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keywords = append(keywords, k)
		}
	}
	return keywords
}
