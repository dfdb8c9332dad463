// Package htmlsanitize strips markup from text that arrives from outside the
// system (imported contact fields) before it is stored.
package htmlsanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// strict removes every tag. Policies are safe for concurrent use once built.
var strict = bluemonday.StrictPolicy()

// PlainText returns s with all HTML tags removed. Entities that bluemonday
// escapes on the way out are decoded again so that "O'Brien" survives as
// typed.
func PlainText(s string) string {
	if s == "" {
		return ""
	}
	if !strings.ContainsAny(s, "<>&") {
		return s
	}
	return html.UnescapeString(strict.Sanitize(s))
}
