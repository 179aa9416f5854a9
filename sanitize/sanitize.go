// Package sanitize strips markup from user supplied chat text.
package sanitize

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// MaxUsernameLen bounds usernames, in runes.
const MaxUsernameLen = 24

var strict = bluemonday.StrictPolicy()

// Username removes all markup and surrounding space from a username and
// truncates it. The result may be empty, which callers must reject.
func Username(name string) string {
	clean := strings.TrimSpace(Text(name))
	if utf8.RuneCountInString(clean) > MaxUsernameLen {
		clean = string([]rune(clean)[:MaxUsernameLen])
	}
	return clean
}

// Text removes every HTML element from s and returns plain text, so that
// "a < b" survives while "<b>hi</b>" becomes "hi".
func Text(s string) string {
	if s == "" {
		return ""
	}
	return html.UnescapeString(strict.Sanitize(s))
}
