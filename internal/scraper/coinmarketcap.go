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

// CoinMarketCapAdapter surfaces recently listed tokens from the CMC pro API.
// Requires an API key; without one the adapter reports the source unavailable.
type CoinMarketCapAdapter struct {
	client  *sourceClient
	baseURL string
	apiKey  string
}

func NewCoinMarketCapAdapter(cfg *config.ScraperConfig, breakers *circuitbreaker.Registry) *CoinMarketCapAdapter {
	client := newSourceClient(types.PlatformCoinMarketCap, cfg.UserAgent, cfg.SourceTimeout, breakers)
	if cfg.CoinMarketCapKey != "" {
		client.setHeader("X-CMC_PRO_API_KEY", cfg.CoinMarketCapKey)
	}
	return &CoinMarketCapAdapter{
		client:  client,
		baseURL: cfg.CoinMarketCapURL,
		apiKey:  cfg.CoinMarketCapKey,
	}
}

func (a *CoinMarketCapAdapter) Platform() types.Platform {
	return types.PlatformCoinMarketCap
}

type cmcListingsResponse struct {
	Data []struct {
		ID        int64  `json:"id"`
		Name      string `json:"name"`
		Symbol    string `json:"symbol"`
		Slug      string `json:"slug"`
		DateAdded string `json:"date_added"`
		Quote     struct {
			USD struct {
				MarketCap float64 `json:"market_cap"`
				Volume24h float64 `json:"volume_24h"`
			} `json:"USD"`
		} `json:"quote"`
	} `json:"data"`
}

const cmcMaxListingAge = 7 * 24 * time.Hour

func (a *CoinMarketCapAdapter) Fetch(ctx context.Context, _ []*models.Niche) ([]*types.RawCandidate, error) {
	if a.apiKey == "" {
		return nil, NewAdapterError(types.PlatformCoinMarketCap, "Fetch", ErrSourceUnavailable, map[string]interface{}{
			"reason": "api key not configured",
		})
	}

	url := a.baseURL + "/v1/cryptocurrency/listings/latest?start=1&limit=100&sort=date_added&sort_dir=desc&convert=USD"
	var resp cmcListingsResponse
	if err := a.client.getJSON(ctx, url, &resp); err != nil {
		return nil, err
	}

	now := time.Now()
	var candidates []*types.RawCandidate
	for _, coin := range resp.Data {
		added, err := time.Parse(time.RFC3339, coin.DateAdded)
		if err != nil || now.Sub(added) > cmcMaxListingAge {
			continue
		}
		ageDays := int(now.Sub(added).Hours() / 24)

		candidates = append(candidates, &types.RawCandidate{
			ID:       fmt.Sprintf("coinmarketcap:%d", coin.ID),
			Platform: types.PlatformCoinMarketCap,
			Title:    fmt.Sprintf("New CMC listing: $%s - %s", coin.Symbol, coin.Name),
			Description: fmt.Sprintf(
				"Listed %dd ago. Market cap $%.0f, 24h volume $%.0f. Newly listed projects are growing and commonly hire community managers and designers.",
				ageDays, coin.Quote.USD.MarketCap, coin.Quote.USD.Volume24h,
			),
			URL:      "https://coinmarketcap.com/currencies/" + coin.Slug,
			PostedAt: added,
		})
	}

	return candidates, nil
}
