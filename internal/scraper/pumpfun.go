package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/opportunity-scanner/internal/circuitbreaker"
	"github.com/opportunity-scanner/internal/config"
	"github.com/opportunity-scanner/internal/models"
	"github.com/opportunity-scanner/internal/types"
)

// PumpFunAdapter surfaces freshly launched tokens from the pump.fun frontend
// API. New launches routinely hire community staff, so each fresh token
// becomes a gig candidate.
type PumpFunAdapter struct {
	client  *sourceClient
	baseURL string
}

func NewPumpFunAdapter(cfg *config.ScraperConfig, breakers *circuitbreaker.Registry) *PumpFunAdapter {
	return &PumpFunAdapter{
		client:  newSourceClient(types.PlatformPumpFun, cfg.UserAgent, cfg.SourceTimeout, breakers),
		baseURL: cfg.PumpFunURL,
	}
}

func (a *PumpFunAdapter) Platform() types.Platform {
	return types.PlatformPumpFun
}

type pumpFunToken struct {
	Mint             string  `json:"mint"`
	Name             string  `json:"name"`
	Symbol           string  `json:"symbol"`
	Description      string  `json:"description"`
	Twitter          string  `json:"twitter"`
	Telegram         string  `json:"telegram"`
	Website          string  `json:"website"`
	CreatedTimestamp int64   `json:"created_timestamp"` // milliseconds
	USDMarketCap     float64 `json:"usd_market_cap"`
}

// Tokens older than this are not worth surfacing; the hiring window on a
// pump.fun launch is the first day.
const pumpFunMaxAge = 24 * time.Hour

func (a *PumpFunAdapter) Fetch(ctx context.Context, _ []*models.Niche) ([]*types.RawCandidate, error) {
	var tokens []pumpFunToken
	url := a.baseURL + "/coins?offset=0&limit=50&sort=created_timestamp&order=DESC"
	if err := a.client.getJSON(ctx, url, &tokens); err != nil {
		return nil, err
	}

	now := time.Now()
	var candidates []*types.RawCandidate
	for _, token := range tokens {
		created := time.UnixMilli(token.CreatedTimestamp).UTC()
		age := now.Sub(created)
		if age > pumpFunMaxAge || token.Mint == "" {
			continue
		}

		var telegram *string
		if token.Telegram != "" {
			link := "https://t.me/" + token.Telegram
			telegram = &link
		}

		candidates = append(candidates, &types.RawCandidate{
			ID:       "pumpfun:" + token.Mint,
			Platform: types.PlatformPumpFun,
			Title:    fmt.Sprintf("Fresh token launch: $%s - %s", token.Symbol, token.Name),
			Description: fmt.Sprintf(
				"Launched %dh ago on Pump.fun. %s Market cap $%.0f. New launches typically need community managers, moderators and designers.",
				int(age.Hours()), token.Description, token.USDMarketCap,
			),
			URL: "https://pump.fun/" + token.Mint,
			Contact: types.Contact{
				Telegram: telegram,
				Twitter:  strPtr(token.Twitter),
				Website:  strPtr(token.Website),
			},
			PostedAt: created,
		})
	}

	return candidates, nil
}
