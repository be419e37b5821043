// Package sanitize cleans free text received from external forms before it is stored.
package sanitize

import (
	"html"
	"regexp"
	"strings"
	"unicode"
)

var htmlTagRegex = regexp.MustCompile(`<[^>]*>`)

// StripHTML removes HTML tags, including tags hidden behind entity encoding.
func StripHTML(s string) string {
	result := htmlTagRegex.ReplaceAllString(s, "")
	result = html.UnescapeString(result)
	return htmlTagRegex.ReplaceAllString(result, "")
}

// Text strips markup, drops control characters except newlines and tabs, and trims.
func Text(s string) string {
	stripped := StripHTML(s)
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, stripped)
	return strings.TrimSpace(cleaned)
}
