package scraper

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opportunity-scanner/internal/circuitbreaker"
	"github.com/opportunity-scanner/internal/config"
	"github.com/opportunity-scanner/internal/logging"
	"github.com/opportunity-scanner/internal/models"
	"github.com/opportunity-scanner/internal/types"
)

// PlatformBudget gates outbound platform requests against a shared quota.
type PlatformBudget interface {
	TryConsume(ctx context.Context, platform types.Platform) (bool, time.Duration)
}

// Dispatcher fans a scan out across platform adapters. Each platform runs
// under its own deadline; a failing platform never aborts the others.
type Dispatcher struct {
	adapters      map[types.Platform]SourceAdapter
	analyzer      *Analyzer
	sourceTimeout time.Duration
	maxConcurrent int
	budget        PlatformBudget
	logger        *logging.Logger
}

func NewDispatcher(cfg *config.ScraperConfig, adapters []SourceAdapter, logger *logging.Logger) *Dispatcher {
	byPlatform := make(map[types.Platform]SourceAdapter, len(adapters))
	for _, a := range adapters {
		byPlatform[a.Platform()] = a
	}
	return &Dispatcher{
		adapters:      byPlatform,
		analyzer:      NewAnalyzer(),
		sourceTimeout: cfg.SourceTimeout,
		maxConcurrent: cfg.MaxConcurrent,
		logger:        logger,
	}
}

// SetBudget installs a shared outbound request budget. Without one the
// dispatcher relies on per-adapter circuit breakers alone.
func (d *Dispatcher) SetBudget(budget PlatformBudget) {
	d.budget = budget
}

// DefaultBreakerConfig is the breaker tuning every source starts with
func DefaultBreakerConfig() circuitbreaker.Config {
	return circuitbreaker.Config{
		MaxFailures:      5,
		FailureThreshold: 0.5,
		Timeout:          30 * time.Second,
		HalfOpenMaxCalls: 2,
	}
}

// NewDefaultAdapters builds the full adapter set from config. All adapters
// draw their breakers from the shared registry so source health is visible
// in one place.
func NewDefaultAdapters(cfg *config.ScraperConfig, breakers *circuitbreaker.Registry) []SourceAdapter {
	return []SourceAdapter{
		NewTwitterAdapter(cfg, breakers),
		NewRedditAdapter(cfg, breakers),
		NewTelegramAdapter(cfg, breakers),
		NewWeb3CareerAdapter(cfg, breakers),
		NewPumpFunAdapter(cfg, breakers),
		NewDexScreenerAdapter(cfg, breakers),
		NewCoinMarketCapAdapter(cfg, breakers),
		NewCoinGeckoAdapter(cfg, breakers),
	}
}

// Dispatch runs the requested platforms concurrently and aggregates their
// candidates. Results keep the order of the platforms argument regardless of
// completion order. Candidates are normalized and analyzed before return;
// candidates with an empty title after normalization are dropped.
//
// Dispatch only errors when the context is done or no adapter exists for a
// requested platform. Individual platform failures land in PlatformsFailed.
func (d *Dispatcher) Dispatch(ctx context.Context, platforms []types.Platform, niches []*models.Niche) (*types.DispatchResult, error) {
	for _, p := range platforms {
		if _, ok := d.adapters[p]; !ok {
			return nil, fmt.Errorf("no adapter registered for platform %s", p)
		}
	}

	type slot struct {
		candidates []*types.RawCandidate
		report     types.PlatformReport
	}
	slots := make([]slot, len(platforms))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.maxConcurrent)

	for i, platform := range platforms {
		i, platform := i, platform
		g.Go(func() error {
			adapter := d.adapters[platform]

			if d.budget != nil {
				if ok, wait := d.budget.TryConsume(gctx, platform); !ok {
					slots[i] = slot{report: types.PlatformReport{
						Platform: platform,
						Err:      fmt.Errorf("%w: budget exhausted, retry in %s", ErrSourceRateLimit, wait.Round(time.Second)),
					}}
					d.logger.WithFields(map[string]interface{}{
						"platform": string(platform),
						"wait":     wait.String(),
					}).Warn("Platform request budget exhausted")
					return gctx.Err()
				}
			}

			fetchCtx, cancel := context.WithTimeout(gctx, d.sourceTimeout)
			defer cancel()

			start := time.Now()
			candidates, err := adapter.Fetch(fetchCtx, niches)
			elapsed := time.Since(start)

			slots[i] = slot{
				candidates: candidates,
				report: types.PlatformReport{
					Platform:   platform,
					Candidates: len(candidates),
					Duration:   elapsed,
					Err:        err,
				},
			}

			if err != nil {
				d.logger.WithFields(map[string]interface{}{
					"platform":    string(platform),
					"duration_ms": elapsed.Milliseconds(),
				}).WithError(err).Warn("Platform fetch failed")
			} else {
				d.logger.WithFields(map[string]interface{}{
					"platform":    string(platform),
					"candidates":  len(candidates),
					"duration_ms": elapsed.Milliseconds(),
				}).Debug("Platform fetch completed")
			}

			// Platform failures are isolated; only context cancellation
			// stops the group.
			if gctx.Err() != nil {
				return gctx.Err()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("dispatch aborted: %w", err)
	}

	result := &types.DispatchResult{}
	for i := range slots {
		s := &slots[i]
		result.PerPlatform = append(result.PerPlatform, s.report)
		if s.report.Err != nil {
			result.PlatformsFailed = append(result.PlatformsFailed, s.report.Platform)
			continue
		}
		result.PlatformsOK = append(result.PlatformsOK, s.report.Platform)

		for _, c := range s.candidates {
			if !Normalize(c) {
				continue
			}
			c.Analysis = d.analyzer.Analyze(c, niches)
			result.Candidates = append(result.Candidates, c)
		}
	}

	return result, nil
}
