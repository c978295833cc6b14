package scraper

import (
	"regexp"
)

var (
	telegramPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)t\.me/([a-zA-Z0-9_]{5,32})`),
		regexp.MustCompile(`(?i)telegram[:\s@]+([a-zA-Z0-9_]{5,32})`),
		regexp.MustCompile(`(?i)tg[:\s@]+([a-zA-Z0-9_]{5,32})`),
	}
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
)

// extractTelegram pulls a t.me link out of free text. Returns nil when
// nothing resembling a Telegram handle is present.
func extractTelegram(text string) *string {
	for _, p := range telegramPatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			link := "https://t.me/" + m[1]
			return &link
		}
	}
	return nil
}

func extractEmail(text string) *string {
	if m := emailPattern.FindString(text); m != "" {
		return &m
	}
	return nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
