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

// DexScreenerAdapter surfaces new trading pairs from the DexScreener search
// API across a fixed set of chains.
type DexScreenerAdapter struct {
	client  *sourceClient
	baseURL string
}

func NewDexScreenerAdapter(cfg *config.ScraperConfig, breakers *circuitbreaker.Registry) *DexScreenerAdapter {
	return &DexScreenerAdapter{
		client:  newSourceClient(types.PlatformDexScreener, cfg.UserAgent, cfg.SourceTimeout, breakers),
		baseURL: cfg.DexScreenerURL,
	}
}

func (a *DexScreenerAdapter) Platform() types.Platform {
	return types.PlatformDexScreener
}

var dexScreenerChains = []string{"solana", "ethereum", "bsc"}

const dexScreenerMaxPairs = 15

type dexScreenerResponse struct {
	Pairs []struct {
		PairAddress   string `json:"pairAddress"`
		ChainID       string `json:"chainId"`
		DexID         string `json:"dexId"`
		URL           string `json:"url"`
		PairCreatedAt int64  `json:"pairCreatedAt"` // milliseconds
		BaseToken     struct {
			Symbol string `json:"symbol"`
			Name   string `json:"name"`
		} `json:"baseToken"`
		QuoteToken struct {
			Symbol string `json:"symbol"`
		} `json:"quoteToken"`
		Liquidity struct {
			USD float64 `json:"usd"`
		} `json:"liquidity"`
		Volume struct {
			H24 float64 `json:"h24"`
		} `json:"volume"`
		Info struct {
			Socials []struct {
				Type string `json:"type"`
				URL  string `json:"url"`
			} `json:"socials"`
		} `json:"info"`
	} `json:"pairs"`
}

func (a *DexScreenerAdapter) Fetch(ctx context.Context, _ []*models.Niche) ([]*types.RawCandidate, error) {
	var candidates []*types.RawCandidate
	var lastErr error
	failed := 0

	for _, chain := range dexScreenerChains {
		var resp dexScreenerResponse
		if err := a.client.getJSON(ctx, a.baseURL+"/latest/dex/search?q="+chain, &resp); err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			failed++
			lastErr = err
			continue
		}

		pairs := resp.Pairs
		if len(pairs) > dexScreenerMaxPairs {
			pairs = pairs[:dexScreenerMaxPairs]
		}

		for _, pair := range pairs {
			if pair.PairAddress == "" {
				continue
			}

			created := time.Now()
			if pair.PairCreatedAt > 0 {
				created = time.UnixMilli(pair.PairCreatedAt).UTC()
			}
			ageHours := int(time.Since(created).Hours())

			contact := types.Contact{}
			for _, social := range pair.Info.Socials {
				switch social.Type {
				case "telegram":
					contact.Telegram = strPtr(social.URL)
				case "twitter":
					contact.Twitter = strPtr(social.URL)
				case "website":
					contact.Website = strPtr(social.URL)
				}
			}

			pairURL := pair.URL
			if pairURL == "" {
				pairURL = fmt.Sprintf("https://dexscreener.com/%s/%s", chain, pair.PairAddress)
			}

			candidates = append(candidates, &types.RawCandidate{
				ID:       "dexscreener:" + pair.PairAddress,
				Platform: types.PlatformDexScreener,
				Title:    fmt.Sprintf("New pair: %s/%s on %s", pair.BaseToken.Symbol, pair.QuoteToken.Symbol, pair.DexID),
				Description: fmt.Sprintf(
					"Age %dh. Liquidity $%.0f, 24h volume $%.0f on %s. Early pairs often recruit community and social staff.",
					ageHours, pair.Liquidity.USD, pair.Volume.H24, chain,
				),
				URL:      pairURL,
				Contact:  contact,
				PostedAt: created,
			})
		}
	}

	if failed == len(dexScreenerChains) && lastErr != nil {
		return nil, lastErr
	}

	return candidates, nil
}
