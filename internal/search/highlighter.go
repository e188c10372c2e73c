package search

import (
	"strings"
	"unicode/utf8"
)

// Highlight returns at most maxLen characters of content, centered on the
// first occurrence of any query term. Elided text is marked with "...".
func Highlight(content string, terms []string, maxLen int) string {
	content = strings.Join(strings.Fields(content), " ")
	if maxLen <= 0 || utf8.RuneCountInString(content) <= maxLen {
		return content
	}
	runes := []rune(content)
	lower := strings.ToLower(content)

	hit := -1
	for _, t := range terms {
		if len(lower) != len(content) {
			break // case folding changed byte offsets
		}
		if t == "" {
			continue
		}
		if i := strings.Index(lower, strings.ToLower(t)); i >= 0 && (hit < 0 || i < hit) {
			hit = i
		}
	}
	start := 0
	if hit > 0 {
		// byte offset to rune offset
		start = utf8.RuneCountInString(content[:hit]) - maxLen/4
		start = max(0, min(start, len(runes)-maxLen))
	}
	end := start + maxLen

	var b strings.Builder
	if start > 0 {
		b.WriteString("...")
	}
	b.WriteString(strings.TrimSpace(string(runes[start:end])))
	if end < len(runes) {
		b.WriteString("...")
	}
	return b.String()
}
