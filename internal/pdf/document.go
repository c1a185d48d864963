package pdf

import (
	"strings"
)

// Document is the extracted text of a PDF, one entry per page.
type Document struct {
	Name        string
	Path        string
	Fingerprint string
	pages       []string
}

// NewDocument builds a document from already extracted page texts.
func NewDocument(name string, pages []string) *Document {
	return &Document{Name: name, pages: append([]string(nil), pages...)}
}

func (d *Document) PageCount() int {
	if d == nil {
		return 0
	}
	return len(d.pages)
}

// PageText returns the raw text of page i (0-based), or "" when i is out of range.
func (d *Document) PageText(i int) string {
	if d == nil || i < 0 || i >= len(d.pages) {
		return ""
	}
	return d.pages[i]
}

// DocumentText joins the trimmed non-empty pages with a blank line.
func (d *Document) DocumentText() string {
	if d == nil {
		return ""
	}
	parts := make([]string, 0, len(d.pages))
	for _, p := range d.pages {
		if t := strings.TrimSpace(p); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}

