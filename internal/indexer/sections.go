package indexer

import (
	"context"
	"regexp"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// Section is a titled span of a document.
type Section struct {
	Title string
	Text  string
}

// SectionAnalyzer finds the logical sections of a document. Implementations
// may call out to other services; the chunker treats any error as a reason to
// fall back to whole-document chunking.
type SectionAnalyzer interface {
	Sections(ctx context.Context, doc *models.Document) ([]Section, error)
}

var (
	atxHeading    = regexp.MustCompile(`^#{1,6}\s+(.+?)\s*#*$`)
	setextUnderln = regexp.MustCompile(`^(=+|-+)$`)
	listMarker    = regexp.MustCompile(`^\s*([-*•]|\d+[.)])\s`)
)

// HeadingAnalyzer splits Markdown-style documents on ATX (# Title) and setext
// (Title / =====) headings. Text before the first heading belongs to a section
// named after the document.
type HeadingAnalyzer struct{}

// Sections implements SectionAnalyzer.
func (HeadingAnalyzer) Sections(_ context.Context, doc *models.Document) ([]Section, error) {
	lines := strings.Split(doc.Content, "\n")
	var sections []Section
	current := Section{Title: doc.Title}
	headed := false
	var body []string

	// The untitled lead-in is dropped when empty; headed sections are kept
	// even without text so they still get a summary chunk.
	flush := func() {
		current.Text = strings.TrimSpace(strings.Join(body, "\n"))
		if current.Text != "" || headed {
			sections = append(sections, current)
		}
		body = body[:0]
	}

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if m := atxHeading.FindStringSubmatch(line); m != nil {
			flush()
			current, headed = Section{Title: m[1]}, true
			continue
		}
		if line != "" && !listMarker.MatchString(lines[i]) && i+1 < len(lines) &&
			setextUnderln.MatchString(strings.TrimSpace(lines[i+1])) && !isTableLine(line) {
			flush()
			current, headed = Section{Title: line}, true
			i++
			continue
		}
		body = append(body, lines[i])
	}
	flush()

	if len(sections) == 0 {
		sections = []Section{{Title: doc.Title, Text: strings.TrimSpace(doc.Content)}}
	}
	return sections, nil
}

func isTableLine(line string) bool {
	return strings.Count(line, "|") >= 2
}
