// Package sanitizer strips markup from user-supplied display text such as
// person and tenant names before it is persisted.
package sanitizer

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer removes all HTML from plain-text fields
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer creates a sanitizer that allows no elements at all
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// Clean strips tags, decodes entities left behind by the policy, drops
// control characters and collapses runs of whitespace
func (s *TextSanitizer) Clean(input string) string {
	if input == "" {
		return ""
	}
	stripped := html.UnescapeString(s.policy.Sanitize(input))

	var b strings.Builder
	b.Grow(len(stripped))
	space := false
	for _, r := range stripped {
		switch {
		case unicode.IsSpace(r):
			space = true
		case unicode.IsControl(r):
		default:
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		}
	}
	return b.String()
}
