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

// Web3CareerAdapter pulls job listings from the web3.career API.
type Web3CareerAdapter struct {
	client  *sourceClient
	baseURL string
	token   string
}

func NewWeb3CareerAdapter(cfg *config.ScraperConfig, breakers *circuitbreaker.Registry) *Web3CareerAdapter {
	return &Web3CareerAdapter{
		client:  newSourceClient(types.PlatformWeb3Career, cfg.UserAgent, cfg.SourceTimeout, breakers),
		baseURL: cfg.Web3CareerURL,
		token:   cfg.Web3CareerToken,
	}
}

func (a *Web3CareerAdapter) Platform() types.Platform {
	return types.PlatformWeb3Career
}

type web3CareerResponse struct {
	Jobs []struct {
		ID          int64  `json:"id"`
		Title       string `json:"title"`
		Description string `json:"description"`
		ApplyURL    string `json:"apply_url"`
		Company     string `json:"company_name"`
		Location    string `json:"location"`
		CreatedAt   string `json:"created_at"`
	} `json:"jobs"`
}

const web3CareerMaxJobs = 30

func (a *Web3CareerAdapter) Fetch(ctx context.Context, _ []*models.Niche) ([]*types.RawCandidate, error) {
	url := a.baseURL + "/api/jobs"
	if a.token != "" {
		url += "?token=" + a.token
	}

	var resp web3CareerResponse
	if err := a.client.getJSON(ctx, url, &resp); err != nil {
		return nil, err
	}

	jobs := resp.Jobs
	if len(jobs) > web3CareerMaxJobs {
		jobs = jobs[:web3CareerMaxJobs]
	}

	candidates := make([]*types.RawCandidate, 0, len(jobs))
	for _, job := range jobs {
		postedAt, _ := time.Parse(time.RFC3339, job.CreatedAt)

		desc := job.Description
		if job.Company != "" {
			desc = fmt.Sprintf("%s at %s (%s). %s", job.Title, job.Company, orDefault(job.Location, "Remote"), job.Description)
		}

		candidates = append(candidates, &types.RawCandidate{
			ID:          fmt.Sprintf("web3career:%d", job.ID),
			Platform:    types.PlatformWeb3Career,
			Title:       job.Title,
			Description: desc,
			URL:         fmt.Sprintf("https://web3.career/job/%d", job.ID),
			Contact: types.Contact{
				Website:  strPtr(job.ApplyURL),
				Telegram: extractTelegram(job.Description),
				Email:    extractEmail(job.Description),
			},
			PostedAt: postedAt,
		})
	}

	return candidates, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
