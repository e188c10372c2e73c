package indexer

import (
	"regexp"
	"strings"
	"unicode"
)

var blankRun = regexp.MustCompile(`\n{3,}`)

// Preprocess normalizes text before chunking. Paragraph breaks survive because
// the chunker splits on them; trailing spaces, control characters, and runs of
// blank lines do not.
func Preprocess(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRightFunc(line, unicode.IsSpace)
	}
	text = strings.Join(lines, "\n")
	text = blankRun.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
