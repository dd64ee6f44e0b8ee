package comparable

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultTitleLen is the display length used for a record's own title.
const DefaultTitleLen = 120

var boilerplate = regexp.MustCompile(`(?i)^Hanke objekt[a-z]* on\s+`)

var sentenceBreaks = []string{". ", ".\n", " ning ", " ja "}

// CleanTitle shortens a raw notice description to a display title. It strips
// the standard "Hanke objekt... on" opening, cuts at the first sentence break
// found between 30 and maxLen runes, and otherwise truncates on a word boundary.
func CleanTitle(raw string, maxLen int) string {
	if raw == "" {
		return ""
	}
	text := boilerplate.ReplaceAllString(raw, "")

	for _, sep := range sentenceBreaks {
		idx := strings.Index(text, sep)
		if idx < 0 {
			continue
		}
		if pos := utf8.RuneCountInString(text[:idx]); pos > 30 && pos < maxLen {
			return strings.TrimSpace(text[:idx])
		}
	}

	runes := []rune(text)
	if len(runes) <= maxLen {
		return strings.TrimSpace(text)
	}
	cut := string(runes[:maxLen])
	if i := strings.LastIndex(cut, " "); i >= 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, ".,;:") + "..."
}
