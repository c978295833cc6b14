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

// RedditAdapter pulls new posts from the configured job subreddits via the
// public JSON listings. No auth required.
type RedditAdapter struct {
	client     *sourceClient
	baseURL    string
	subreddits []string
}

func NewRedditAdapter(cfg *config.ScraperConfig, breakers *circuitbreaker.Registry) *RedditAdapter {
	return &RedditAdapter{
		client:     newSourceClient(types.PlatformReddit, cfg.UserAgent, cfg.SourceTimeout, breakers),
		baseURL:    cfg.RedditBase,
		subreddits: cfg.Subreddits,
	}
}

func (a *RedditAdapter) Platform() types.Platform {
	return types.PlatformReddit
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				ID         string  `json:"id"`
				Title      string  `json:"title"`
				SelfText   string  `json:"selftext"`
				Author     string  `json:"author"`
				Permalink  string  `json:"permalink"`
				CreatedUTC float64 `json:"created_utc"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

var redditJobKeywords = []string{
	"hiring", "looking for", "need", "position", "opportunity",
	"seeking", "developer", "designer", "moderator", "community",
	"job", "work", "role", "team",
}

func (a *RedditAdapter) Fetch(ctx context.Context, niches []*models.Niche) ([]*types.RawCandidate, error) {
	keywords := append([]string{}, redditJobKeywords...)
	keywords = append(keywords, nicheKeywords(niches)...)

	var candidates []*types.RawCandidate
	var lastErr error
	failed := 0

	for _, sub := range a.subreddits {
		var listing redditListing
		url := fmt.Sprintf("%s/r/%s/new.json?limit=25", a.baseURL, sub)
		if err := a.client.getJSON(ctx, url, &listing); err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			failed++
			lastErr = err
			continue
		}

		for _, child := range listing.Data.Children {
			p := child.Data
			if !titleMatches(p.Title, keywords) {
				continue
			}

			desc := p.SelfText
			if desc == "" {
				desc = p.Title
			}

			candidates = append(candidates, &types.RawCandidate{
				ID:          "reddit:" + p.ID,
				Platform:    types.PlatformReddit,
				Title:       p.Title,
				Description: desc,
				URL:         "https://reddit.com" + p.Permalink,
				Contact: types.Contact{
					Telegram: extractTelegram(p.SelfText),
					Email:    extractEmail(p.SelfText),
				},
				PostedAt: time.Unix(int64(p.CreatedUTC), 0).UTC(),
			})
		}
	}

	// Only fail the platform when every subreddit failed.
	if failed == len(a.subreddits) && lastErr != nil {
		return nil, lastErr
	}

	return candidates, nil
}

func titleMatches(title string, keywords []string) bool {
	lower := strings.ToLower(title)
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
