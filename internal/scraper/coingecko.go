package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opportunity-scanner/internal/circuitbreaker"
	"github.com/opportunity-scanner/internal/config"
	"github.com/opportunity-scanner/internal/models"
	"github.com/opportunity-scanner/internal/types"
)

// CoinGeckoAdapter surfaces recently added coins from the public CoinGecko
// API. The coin list endpoint returns everything in listing order; the tail
// of the list is the newest additions.
type CoinGeckoAdapter struct {
	client  *sourceClient
	baseURL string
}

func NewCoinGeckoAdapter(cfg *config.ScraperConfig, breakers *circuitbreaker.Registry) *CoinGeckoAdapter {
	return &CoinGeckoAdapter{
		client:  newSourceClient(types.PlatformCoinGecko, cfg.UserAgent, cfg.SourceTimeout, breakers),
		baseURL: cfg.CoinGeckoURL,
	}
}

func (a *CoinGeckoAdapter) Platform() types.Platform {
	return types.PlatformCoinGecko
}

type coinGeckoCoin struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

type coinGeckoDetail struct {
	ID          string `json:"id"`
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	GenesisDate string `json:"genesis_date"`
	Description struct {
		En string `json:"en"`
	} `json:"description"`
	Links struct {
		Homepage          []string `json:"homepage"`
		TwitterScreenName string   `json:"twitter_screen_name"`
		TelegramChannelID string   `json:"telegram_channel_identifier"`
	} `json:"links"`
	MarketData struct {
		MarketCap struct {
			USD float64 `json:"usd"`
		} `json:"market_cap"`
	} `json:"market_data"`
}

// Detail lookups are rate limited hard on the free tier, so only the newest
// few coins get enriched per fetch.
const coinGeckoDetailLimit = 10

func (a *CoinGeckoAdapter) Fetch(ctx context.Context, _ []*models.Niche) ([]*types.RawCandidate, error) {
	var coins []coinGeckoCoin
	if err := a.client.getJSON(ctx, a.baseURL+"/api/v3/coins/list", &coins); err != nil {
		return nil, err
	}

	recent := coins
	if len(recent) > coinGeckoDetailLimit {
		recent = recent[len(recent)-coinGeckoDetailLimit:]
	}

	var candidates []*types.RawCandidate
	for _, coin := range recent {
		detail, err := a.fetchDetail(ctx, coin.ID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			// Detail lookups fail individually (rate limits); skip the coin.
			continue
		}

		postedAt := time.Now().UTC()
		if detail.GenesisDate != "" {
			if t, perr := time.Parse("2006-01-02", detail.GenesisDate); perr == nil {
				postedAt = t
			}
		}

		contact := types.Contact{}
		if detail.Links.TelegramChannelID != "" {
			link := "https://t.me/" + detail.Links.TelegramChannelID
			contact.Telegram = &link
		}
		if detail.Links.TwitterScreenName != "" {
			handle := "@" + detail.Links.TwitterScreenName
			contact.Twitter = &handle
		}
		if len(detail.Links.Homepage) > 0 {
			contact.Website = strPtr(detail.Links.Homepage[0])
		}

		candidates = append(candidates, &types.RawCandidate{
			ID:       "coingecko:" + detail.ID,
			Platform: types.PlatformCoinGecko,
			Title:    fmt.Sprintf("CoinGecko listing: $%s - %s", strings.ToUpper(detail.Symbol), detail.Name),
			Description: fmt.Sprintf(
				"%s Market cap $%.0f. New CoinGecko listings need community growth and content creators.",
				detail.Description.En, detail.MarketData.MarketCap.USD,
			),
			URL:      "https://www.coingecko.com/en/coins/" + detail.ID,
			Contact:  contact,
			PostedAt: postedAt,
		})
	}

	return candidates, nil
}

func (a *CoinGeckoAdapter) fetchDetail(ctx context.Context, id string) (*coinGeckoDetail, error) {
	var detail coinGeckoDetail
	if err := a.client.getJSON(ctx, a.baseURL+"/api/v3/coins/"+id, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}
