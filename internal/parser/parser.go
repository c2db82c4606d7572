package parser

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dgallion1/legichunk/internal/doctree"
)

// Parser converts raw document bytes into ordered page text.
type Parser interface {
	Parse(r io.Reader, filename string) (*doctree.Document, error)
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".pdf":
		return &PDFParser{FallbackPdftotext: true}, nil
	case ".docx":
		return &DOCXParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// newDocument names a document after its file; the stem drives code lookup.
func newDocument(filename string) *doctree.Document {
	base := filepath.Base(filename)
	return &doctree.Document{
		Name:     strings.TrimSuffix(base, filepath.Ext(base)),
		Filename: base,
		Extra:    map[string]string{"filename": base},
	}
}

// addPage appends a page unless its text is blank. Page numbers are kept as
// given so skipped pages leave gaps.
func addPage(doc *doctree.Document, number int, text string) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return
	}
	doc.Pages = append(doc.Pages, doctree.Page{Number: number, Text: text})
}

// blocks accumulates flattened headings and paragraphs of formats without
// pagination. Each block becomes one or more lines of page 1.
type blocks struct {
	sb strings.Builder
}

func (b *blocks) add(s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return
	}
	if b.sb.Len() > 0 {
		b.sb.WriteString("\n\n")
	}
	b.sb.WriteString(s)
}

func (b *blocks) document(filename string) *doctree.Document {
	doc := newDocument(filename)
	addPage(doc, 1, b.sb.String())
	return doc
}
