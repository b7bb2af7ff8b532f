package loader

import (
	"regexp"
	"strings"
)

// PIIMode selects how personal data is treated before text leaves the
// ingestion path.
type PIIMode string

const (
	PIIRaw    PIIMode = "raw"
	PIIMasked PIIMode = "masked"
)

// ParsePIIMode maps unknown or empty values to PIIMasked.
func ParsePIIMode(value string) PIIMode {
	if PIIMode(strings.ToLower(strings.TrimSpace(value))) == PIIRaw {
		return PIIRaw
	}
	return PIIMasked
}

const visibleSuffix = 4

var (
	reEmail = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	rePhone = regexp.MustCompile(`(?:\+?55[\s-]?)?(?:\(\d{2}\)[\s-]?|\d{2}[\s-]?)?9?\d{4}[\s-]?\d{4}`)
	reCPF   = regexp.MustCompile(`\d{3}\.?\d{3}\.?\d{3}-?\d{2}`)
)

// Anonymize masks e-mail addresses, phone numbers and CPFs, in that order.
// Each match keeps its last four characters. PIIRaw returns text unchanged.
func Anonymize(text string, mode PIIMode) string {
	if mode == PIIRaw {
		return text
	}
	text = maskMatches(text, reEmail, false)
	text = maskMatches(text, rePhone, true)
	text = maskMatches(text, reCPF, true)
	return text
}

// maskMatches replaces every match of re. With digitBounded set, matches
// glued to further digits are left alone so longer numbers are not cut.
func maskMatches(text string, re *regexp.Regexp, digitBounded bool) string {
	matches := re.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	cursor := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		if digitBounded && (isDigitAt(text, start-1) || isDigitAt(text, end)) {
			continue
		}
		b.WriteString(text[cursor:start])
		b.WriteString(mask(text[start:end]))
		cursor = end
	}
	b.WriteString(text[cursor:])
	return b.String()
}

func isDigitAt(s string, i int) bool {
	return i >= 0 && i < len(s) && s[i] >= '0' && s[i] <= '9'
}

func mask(value string) string {
	runes := []rune(value)
	if len(runes) <= visibleSuffix {
		return value
	}
	return strings.Repeat("*", len(runes)-visibleSuffix) + string(runes[len(runes)-visibleSuffix:])
}
