package parser

import (
	"io"
	"strings"

	"github.com/dgallion1/legichunk/internal/doctree"
)

// TextParser handles plain text files. Form feeds separate pages, as in
// pdftotext output.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*doctree.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	doc := newDocument(filename)
	for i, page := range strings.Split(string(data), "\f") {
		addPage(doc, i+1, page)
	}
	return doc, nil
}
