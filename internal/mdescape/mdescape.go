// Package mdescape escapes Telegram MarkdownV2 metacharacters.
package mdescape

import "strings"

// metacharacters is the closed set of characters MarkdownV2 requires
// escaping with a leading backslash.
const metacharacters = "_*[]()~`>#+-=|{}.!\\"

// Escape prefixes every occurrence of a MarkdownV2 metacharacter in s with
// a backslash. Empty input returns empty output.
func Escape(s string) string {
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(metacharacters, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
