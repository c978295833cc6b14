package scraper

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/opportunity-scanner/internal/circuitbreaker"
	"github.com/opportunity-scanner/internal/config"
	"github.com/opportunity-scanner/internal/models"
	"github.com/opportunity-scanner/internal/types"
)

// TwitterAdapter searches the Twitter/X recent search API for hiring posts.
type TwitterAdapter struct {
	client  *sourceClient
	baseURL string
}

func NewTwitterAdapter(cfg *config.ScraperConfig, breakers *circuitbreaker.Registry) *TwitterAdapter {
	client := newSourceClient(types.PlatformTwitter, cfg.UserAgent, cfg.SourceTimeout, breakers)
	if cfg.TwitterBearerToken != "" {
		client.setHeader("Authorization", "Bearer "+cfg.TwitterBearerToken)
	}
	return &TwitterAdapter{
		client:  client,
		baseURL: cfg.TwitterAPIURL,
	}
}

func (a *TwitterAdapter) Platform() types.Platform {
	return types.PlatformTwitter
}

type twitterSearchResponse struct {
	Data []struct {
		ID        string `json:"id"`
		Text      string `json:"text"`
		AuthorID  string `json:"author_id"`
		CreatedAt string `json:"created_at"`
	} `json:"data"`
	Includes struct {
		Users []struct {
			ID          string `json:"id"`
			Username    string `json:"username"`
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"users"`
	} `json:"includes"`
}

// Base queries run on every scan; niche keywords are appended as extra queries.
var twitterBaseQueries = []string{
	"hiring web3",
	"crypto job",
	"community manager needed",
}

func (a *TwitterAdapter) Fetch(ctx context.Context, niches []*models.Niche) ([]*types.RawCandidate, error) {
	queries := append([]string{}, twitterBaseQueries...)
	for _, k := range nicheKeywords(niches) {
		queries = append(queries, k+" hiring")
	}
	if len(queries) > 5 {
		queries = queries[:5]
	}

	seen := make(map[string]struct{})
	var candidates []*types.RawCandidate

	for _, query := range queries {
		resp, err := a.search(ctx, query)
		if err != nil {
			// A single failed query fails the whole platform fetch so
			// the dispatcher can report it.
			return nil, err
		}

		users := make(map[string]struct {
			Username    string
			Name        string
			Description string
		})
		for _, u := range resp.Includes.Users {
			users[u.ID] = struct {
				Username    string
				Name        string
				Description string
			}{u.Username, u.Name, u.Description}
		}

		for _, tweet := range resp.Data {
			if _, dup := seen[tweet.ID]; dup {
				continue
			}
			seen[tweet.ID] = struct{}{}

			author := users[tweet.AuthorID]
			username := author.Username
			if username == "" {
				username = "unknown"
			}

			postedAt, _ := time.Parse(time.RFC3339, tweet.CreatedAt)

			handle := "@" + username
			candidates = append(candidates, &types.RawCandidate{
				ID:          "twitter:" + tweet.ID,
				Platform:    types.PlatformTwitter,
				Title:       tweet.Text,
				Description: tweet.Text,
				URL:         fmt.Sprintf("https://twitter.com/%s/status/%s", username, tweet.ID),
				Contact: types.Contact{
					Twitter:  &handle,
					Telegram: extractTelegram(tweet.Text + " " + author.Description),
				},
				PostedAt: postedAt,
			})
		}
	}

	return candidates, nil
}

func (a *TwitterAdapter) search(ctx context.Context, query string) (*twitterSearchResponse, error) {
	startTime := time.Now().Add(-72 * time.Hour).UTC().Format("2006-01-02T15:04:05Z")

	params := url.Values{}
	params.Set("query", query+" -is:retweet lang:en")
	params.Set("max_results", "10")
	params.Set("start_time", startTime)
	params.Set("tweet.fields", "created_at,author_id")
	params.Set("expansions", "author_id")
	params.Set("user.fields", "username,name,description")

	var resp twitterSearchResponse
	if err := a.client.getJSON(ctx, a.baseURL+"/2/tweets/search/recent?"+params.Encode(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
