package output

import (
	"bufio"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/dgallion1/legichunk/internal/doctree"
)

// Header identifies the code at the top of a Markdown export.
type Header struct {
	Name string
	URL  string
	Key  string
}

// WriteMarkdown renders chunks as a human-readable document. A "## path"
// heading is emitted whenever the hierarchy path changes; each chunk gets an
// "### Article <id>" heading (or "### Préambule") and its page.
func WriteMarkdown(w io.Writer, h Header, chunks []doctree.Chunk) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("# " + h.Name + "\n\n")
	if h.URL != "" {
		bw.WriteString("Source: " + h.URL + "\n\n")
	}
	if h.Key != "" {
		bw.WriteString("Code: " + h.Key + "\n\n")
	}
	bw.WriteString("---\n")

	var current []string
	first := true
	for _, c := range chunks {
		if first || !slices.Equal(c.HierarchyPath, current) {
			current = c.HierarchyPath
			first = false
			if len(current) > 0 {
				bw.WriteString("\n## " + strings.Join(current, doctree.PathSeparator) + "\n")
			}
		}
		if c.ArticleID != "" {
			bw.WriteString("\n### Article " + c.ArticleID + "\n")
		} else {
			bw.WriteString("\n### Préambule\n")
		}
		bw.WriteString("*Page " + strconv.Itoa(c.Page) + "*\n\n")
		bw.WriteString(c.RawContent)
		bw.WriteString("\n")
	}
	return bw.Flush()
}
