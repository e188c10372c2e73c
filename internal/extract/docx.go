package extract

import (
	"archive/zip"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
)

const (
	docxDefaultPath     = "word/document.xml"
	contentTypesPath    = "[Content_Types].xml"
	docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

var (
	// Text runs carry arbitrary attributes, e.g. xml:space="preserve".
	wtTag = regexp.MustCompile(`<w:t(?:\s[^>]*)?>([^<]*)</w:t>`)
	// Heading styles are "Heading1".."Heading9" or "Title".
	headingStyle = regexp.MustCompile(`<w:pStyle\s+w:val="(?:Heading([1-9])|(Title))"`)
	paragraphEnd = regexp.MustCompile(`</w:p>|<w:p\s*/>`)
	tabOrBreak   = regexp.MustCompile(`<w:(?:tab|br)\s*/>`)

	overrideTag  = regexp.MustCompile(`<Override\s[^>]*>`)
	partNameAttr = regexp.MustCompile(`PartName="([^"]+)"`)
)

// docxMainPart finds the main document part from [Content_Types].xml. The
// part is usually word/document.xml but some producers rename it.
func docxMainPart(zr *zip.Reader) string {
	data, err := readZipEntry(zr, contentTypesPath)
	if err != nil || data == nil {
		return docxDefaultPath
	}
	for _, tag := range overrideTag.FindAllString(string(data), -1) {
		if !strings.Contains(tag, `ContentType="`+docxMainContentType+`"`) {
			continue
		}
		if m := partNameAttr.FindStringSubmatch(tag); m != nil {
			return strings.TrimPrefix(m[1], "/")
		}
	}
	return docxDefaultPath
}

// extractDOCX returns one line per paragraph. Heading paragraphs become
// markdown headings.
func extractDOCX(content []byte) (string, error) {
	zr, err := openZip(content)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}
	part := docxMainPart(zr)
	body, err := readZipEntry(zr, part)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: %w", err)
	}
	if body == nil {
		return "", fmt.Errorf("extract DOCX: %s not found", part)
	}

	var b strings.Builder
	for _, para := range paragraphEnd.Split(string(body), -1) {
		para = tabOrBreak.ReplaceAllString(para, "<w:t> </w:t>")
		runs := wtTag.FindAllStringSubmatch(para, -1)
		if len(runs) == 0 {
			continue
		}
		var line strings.Builder
		for _, r := range runs {
			line.WriteString(r[1])
		}
		text := strings.TrimSpace(html.UnescapeString(line.String()))
		if text == "" {
			continue
		}
		if m := headingStyle.FindStringSubmatch(para); m != nil {
			level := 1
			if m[1] != "" {
				level, _ = strconv.Atoi(m[1])
			}
			text = strings.Repeat("#", level) + " " + text
			b.WriteByte('\n')
		}
		b.WriteString(text)
		b.WriteByte('\n')
	}
	return b.String(), nil
}
