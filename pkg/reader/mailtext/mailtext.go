// Package mailtext turns alert mail bodies into plain notification text.
package mailtext

import (
	"html"
	"regexp"
	"strings"
)

var (
	blockRe = regexp.MustCompile(`(?is)<(script|style|head)\b.*?</(script|style|head)\s*>`)
	breakRe = regexp.MustCompile(`(?i)<\s*(br|/p|/div|/tr|/li|/h[1-6])\b[^>]*>`)
	tagRe   = regexp.MustCompile(`(?s)<[^>]*>`)
	spaceRe = regexp.MustCompile(`[ \t\r\f\v\x{00a0}]+`)
	blankRe = regexp.MustCompile(`\n\s*\n+`)
)

// FromHTML strips markup from an HTML body and unescapes entities.
func FromHTML(body string) string {
	s := blockRe.ReplaceAllString(body, " ")
	s = breakRe.ReplaceAllString(s, "\n")
	s = tagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return Clean(s)
}

// Clean collapses runs of spaces, trims every line and drops blank lines.
func Clean(body string) string {
	s := spaceRe.ReplaceAllString(body, " ")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")
	s = blankRe.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}

// Flatten joins the lines of a cleaned body into one line, which is the shape
// the extraction patterns expect.
func Flatten(body string) string {
	return strings.Join(strings.Fields(body), " ")
}
