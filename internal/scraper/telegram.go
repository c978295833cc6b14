package scraper

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/opportunity-scanner/internal/circuitbreaker"
	"github.com/opportunity-scanner/internal/config"
	"github.com/opportunity-scanner/internal/models"
	"github.com/opportunity-scanner/internal/types"
)

// TelegramAdapter reads the public t.me/s preview pages of the configured
// job channels. The preview HTML is stable enough to parse without a real
// Telegram API session.
type TelegramAdapter struct {
	client   *sourceClient
	baseURL  string
	channels []string
}

func NewTelegramAdapter(cfg *config.ScraperConfig, breakers *circuitbreaker.Registry) *TelegramAdapter {
	return &TelegramAdapter{
		client:   newSourceClient(types.PlatformTelegram, cfg.UserAgent, cfg.SourceTimeout, breakers),
		baseURL:  cfg.TelegramBase,
		channels: cfg.TelegramChannels,
	}
}

func (a *TelegramAdapter) Platform() types.Platform {
	return types.PlatformTelegram
}

var (
	tgMessageRe = regexp.MustCompile(`(?s)data-post="([^"]+)".*?js-message_text[^>]*>(.*?)</div>`)
	tgTimeRe    = regexp.MustCompile(`datetime="([^"]+)"`)
	tgTagRe     = regexp.MustCompile(`<[^>]+>`)
)

func (a *TelegramAdapter) Fetch(ctx context.Context, niches []*models.Niche) ([]*types.RawCandidate, error) {
	keywords := nicheKeywords(niches)

	var candidates []*types.RawCandidate
	var lastErr error
	failed := 0

	for _, channel := range a.channels {
		channel = strings.TrimPrefix(channel, "@")
		msgs, err := a.fetchChannel(ctx, channel)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			failed++
			lastErr = err
			continue
		}

		for _, m := range msgs {
			if !looksLikeJobPost(m.text, keywords) {
				continue
			}
			tgLink := "https://t.me/" + channel
			candidates = append(candidates, &types.RawCandidate{
				ID:          "telegram:" + m.post,
				Platform:    types.PlatformTelegram,
				Title:       m.text,
				Description: m.text,
				URL:         "https://t.me/" + m.post,
				Contact: types.Contact{
					Telegram: &tgLink,
					Email:    extractEmail(m.text),
				},
				PostedAt: m.postedAt,
			})
		}
	}

	if failed == len(a.channels) && lastErr != nil {
		return nil, lastErr
	}

	return candidates, nil
}

type telegramMessage struct {
	post     string // "channel/1234"
	text     string
	postedAt time.Time
}

func (a *TelegramAdapter) fetchChannel(ctx context.Context, channel string) ([]*telegramMessage, error) {
	var msgs []*telegramMessage

	err := a.client.getText(ctx, fmt.Sprintf("%s/%s", a.baseURL, channel), func(body []byte) error {
		for _, m := range tgMessageRe.FindAllSubmatch(body, -1) {
			post := string(m[1])
			text := html.UnescapeString(tgTagRe.ReplaceAllString(string(m[2]), " "))

			var postedAt time.Time
			if t := tgTimeRe.FindSubmatch(m[2]); t != nil {
				postedAt, _ = time.Parse(time.RFC3339, string(t[1]))
			}

			msgs = append(msgs, &telegramMessage{post: post, text: text, postedAt: postedAt})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

var telegramJobSignals = []string{
	"hiring", "we are hiring", "looking for", "job opening", "apply now",
	"send cv", "vacancy", "open position", "seeking", "needed",
}

// looksLikeJobPost keeps only messages that either carry a hiring signal or
// mention one of the user's niche keywords. Channel previews are noisy.
func looksLikeJobPost(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, s := range telegramJobSignals {
		if strings.Contains(lower, s) {
			return true
		}
	}
	for _, k := range keywords {
		if strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}
