package scraper

import (
	"strings"
	"unicode"

	"github.com/opportunity-scanner/internal/types"
)

const (
	// MaxTitleLen is the stored title length cap
	MaxTitleLen = 100
	// MaxDescriptionLen is the stored description length cap
	MaxDescriptionLen = 500
)

// Normalize applies the presentation rules every candidate must satisfy
// before persistence: titles and descriptions are newline-free, whitespace
// is collapsed and lengths are capped. Returns false when the candidate has
// no usable title and should be dropped.
func Normalize(c *types.RawCandidate) bool {
	c.Title = truncateRunes(collapseWhitespace(c.Title), MaxTitleLen)
	c.Description = truncateRunes(collapseWhitespace(c.Description), MaxDescriptionLen)
	return c.Title != ""
}

// collapseWhitespace replaces every whitespace run (including newlines and
// carriage returns) with a single space and trims the ends.
func collapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			inSpace = true
			continue
		}
		if inSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

// truncateRunes caps s at n runes so multi-byte characters never get split
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
