// Package sanitize removes structured payload fragments from text that is
// about to be shown to a user.
package sanitize

import (
	"regexp"
	"strings"
)

// SentinelKeys are the payload keys whose enclosing brace span is removed.
var SentinelKeys = []string{"slots", "services", "about_company", "company_info"}

// An unterminated fence runs to the end of the text, which keeps a block
// that is still streaming hidden.
var fencedJSONPattern = regexp.MustCompile("(?s)```json.*?(?:```|\\z)")

var sentinelPatterns = func() []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, len(SentinelKeys))
	for i, key := range SentinelKeys {
		patterns[i] = regexp.MustCompile(`(?s)\{.*"` + regexp.QuoteMeta(key) + `".*\}`)
	}
	return patterns
}()

// Text strips fenced JSON blocks and brace-delimited spans that mention a
// sentinel key, then trims surrounding whitespace.
func Text(s string) string {
	if s == "" {
		return s
	}
	s = fencedJSONPattern.ReplaceAllString(s, "")
	for _, p := range sentinelPatterns {
		s = p.ReplaceAllString(s, "")
	}
	return strings.TrimSpace(s)
}
