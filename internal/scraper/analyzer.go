package scraper

import (
	"strings"

	"github.com/opportunity-scanner/internal/models"
	"github.com/opportunity-scanner/internal/types"
)

// Analyzer scores candidates with keyword heuristics. Scores are advisory:
// a failed or skipped analysis never blocks persistence.
type Analyzer struct {
	roleKeywords map[string][]string
	highUrgency  []string
	midUrgency   []string
	scamSignals  []string
	salaryHints  []string
}

// NewAnalyzer creates an analyzer with the built-in keyword tables
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		roleKeywords: map[string][]string{
			"community_manager": {"community manager", "community lead", "cm needed", "community mod"},
			"moderator":         {"moderator", "mod needed", "discord mod", "telegram mod"},
			"developer":         {"developer", "dev needed", "engineer", "solidity", "full stack", "smart contract"},
			"designer":          {"designer", "ui/ux", "graphic design", "logo design", "nft art"},
			"marketing":         {"marketing", "growth", "promotion", "shiller", "kol", "influencer"},
			"writer":            {"writer", "content creator", "copywriter", "technical writer", "ghostwriter"},
		},
		highUrgency: []string{"urgent", "asap", "immediately", "right now", "today only"},
		midUrgency:  []string{"soon", "this week", "quickly", "fast turnaround", "limited spots"},
		scamSignals: []string{
			"send funds", "deposit first", "guaranteed profit", "100% return",
			"pay to apply", "registration fee", "dm for investment",
		},
		salaryHints: []string{"$", "usdc", "usdt", "per week", "per month", "/hr", "salary", "budget"},
	}
}

// Analyze scores one candidate against the user's niches.
// Confidence is 0-100; tags carry the matched role categories.
func (a *Analyzer) Analyze(c *types.RawCandidate, niches []*models.Niche) *types.Analysis {
	text := strings.ToLower(c.Title + " " + c.Description)

	analysis := &types.Analysis{
		Confidence: 30,
		Urgency:    types.UrgencyLow,
	}

	for category, keywords := range a.roleKeywords {
		if containsAny(text, keywords) {
			analysis.Tags = append(analysis.Tags, category)
		}
	}
	if len(analysis.Tags) > 0 {
		analysis.Confidence += 20
	}

	if hasContact(c.Contact) {
		analysis.Confidence += 15
	}
	if c.URL != "" {
		analysis.Confidence += 10
	}
	if matchesNiche(text, niches) {
		analysis.Confidence += 15
	}
	if containsAny(text, a.salaryHints) {
		analysis.Confidence += 10
	}

	if containsAny(text, a.highUrgency) {
		analysis.Urgency = types.UrgencyHigh
	} else if containsAny(text, a.midUrgency) {
		analysis.Urgency = types.UrgencyMedium
	}

	if containsAny(text, a.scamSignals) {
		analysis.Confidence -= 40
		notes := "possible scam signals detected"
		analysis.Notes = &notes
	}

	if analysis.Confidence < 0 {
		analysis.Confidence = 0
	}
	if analysis.Confidence > 100 {
		analysis.Confidence = 100
	}

	return analysis
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

func matchesNiche(text string, niches []*models.Niche) bool {
	for _, n := range niches {
		for _, k := range n.Keywords {
			if strings.Contains(text, strings.ToLower(k)) {
				return true
			}
		}
	}
	return false
}

func hasContact(c types.Contact) bool {
	return c.Telegram != nil || c.Twitter != nil || c.Email != nil || c.Website != nil
}
