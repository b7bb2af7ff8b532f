package util

import "strings"

// SanitizePostgresText drops invalid UTF-8 and NUL bytes, which text columns reject.
func SanitizePostgresText(value string) string {
	if value == "" {
		return value
	}

	sanitized := strings.ToValidUTF8(value, "")
	return strings.ReplaceAll(sanitized, "\x00", "")
}

// TruncateRunes cuts s to at most max runes. max <= 0 disables the limit.
func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == max {
			return s[:i]
		}
		count++
	}
	return s
}
