package loader

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	reHorizontalSpace = regexp.MustCompile(`[ \t]+`)
	reManyNewlines    = regexp.MustCompile(`\n{3,}`)
)

// NormalizeText canonicalizes extracted text: unix newlines, no control
// characters besides newline and tab, NBSP as space, collapsed horizontal
// whitespace, trimmed lines and at most one blank line in a row.
func NormalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r == '\u00a0':
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, s)

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(reHorizontalSpace.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")

	s = reManyNewlines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
