// Package validate audits enriched chunk files and reports coverage and
// data-quality issues. Nothing here rejects a chunk; problems are reported.
package validate

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dgallion1/legichunk/internal/doctree"
	"github.com/dgallion1/legichunk/internal/output"
)

// Issue is one reported problem. Line is 0 for document-level warnings.
type Issue struct {
	File    string `json:"file"`
	Line    int    `json:"line,omitempty"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Line > 0 {
		return fmt.Sprintf("%s:%d - %s", i.File, i.Line, i.Message)
	}
	return fmt.Sprintf("%s - %s", i.File, i.Message)
}

// Report aggregates counts over one or more chunk files.
type Report struct {
	Files          int     `json:"files"`
	Total          int     `json:"total_chunks"`
	WithBook       int     `json:"chunks_with_book"`
	WithArticle    int     `json:"chunks_with_article"`
	WithHierarchy  int     `json:"chunks_with_hierarchy"`
	WithSourceURL  int     `json:"chunks_with_url"`
	WithArticleURL int     `json:"chunks_with_article_url"`
	Windows        int     `json:"split_windows"`
	Issues         []Issue `json:"issues"`

	seen map[string]string // point id -> first location
}

// NewReport returns an empty report.
func NewReport() *Report {
	return &Report{Issues: []Issue{}, seen: make(map[string]string)}
}

// Add counts a decoded chunk and records its issues.
func (r *Report) Add(file string, line int, c doctree.Chunk) {
	r.Total++
	if c.SourceBook != "" {
		r.WithBook++
	}
	if c.ArticleID != "" {
		r.WithArticle++
	}
	if len(c.HierarchyPath) > 0 {
		r.WithHierarchy++
	}
	if c.SourceURL != "" {
		r.WithSourceURL++
	}
	if c.ArticleURL != "" {
		r.WithArticleURL++
	}
	if c.ChunkIndex > 0 {
		r.Windows++
	}
	for _, msg := range CheckChunk(c) {
		r.Issues = append(r.Issues, Issue{File: file, Line: line, Message: msg})
	}

	id := c.PointID()
	loc := fmt.Sprintf("%s:%d", file, line)
	if prev, dup := r.seen[id]; dup {
		r.Issues = append(r.Issues, Issue{File: file, Line: line, Message: "duplicate chunk id, first seen at " + prev})
	} else {
		r.seen[id] = loc
	}
}

// AddError records an unreadable line.
func (r *Report) AddError(file string, line int, err error) {
	r.Issues = append(r.Issues, Issue{File: file, Line: line, Message: "JSON error: " + err.Error()})
}

// Warn records a document-level warning such as a page regression.
func (r *Report) Warn(file, msg string) {
	r.Issues = append(r.Issues, Issue{File: file, Message: msg})
}

// Percent returns n as a share of Total, 0 when empty.
func (r *Report) Percent(n int) float64 {
	return 100 * float64(n) / float64(max(1, r.Total))
}

// CheckChunk returns the data-quality problems of a single chunk.
func CheckChunk(c doctree.Chunk) []string {
	var out []string
	if c.SourceBook == "" {
		out = append(out, "missing source_book")
	}
	if strings.TrimSpace(c.RawContent) == "" {
		out = append(out, "empty raw_content")
	}
	if c.Content == "" {
		out = append(out, "empty content")
	} else if c.Content != c.Render(c.RawContent) {
		out = append(out, "content does not match its metadata prefix")
	}
	if c.Page < 0 {
		out = append(out, fmt.Sprintf("negative page %d", c.Page))
	}
	if c.ChunkIndex == 0 && c.Overlap != 0 {
		out = append(out, "first window declares an overlap")
	}
	for _, l := range c.HierarchyPath {
		if strings.TrimSpace(l) == "" {
			out = append(out, "blank hierarchy label")
			break
		}
	}
	return out
}

// File adds every record of a JSONL file to the report.
func (r *Report) File(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return r.Read(f, filepath.Base(path))
}

// Read adds every record of a JSONL stream to the report under name.
func (r *Report) Read(rd io.Reader, name string) error {
	r.Files++
	return output.ReadJSONL(rd, func(line int, c doctree.Chunk, err error) error {
		if err != nil {
			r.AddError(name, line, err)
			return nil
		}
		r.Add(name, line, c)
		return nil
	})
}

// Dir validates every .jsonl file in dir.
func Dir(dir string) (*Report, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	r := NewReport()
	for _, f := range files {
		if err := r.File(f); err != nil {
			return r, fmt.Errorf("validate %s: %w", filepath.Base(f), err)
		}
	}
	return r, nil
}

// CheckPageOrder reports regressions and gaps in a page sequence as
// supplied to the enricher.
func CheckPageOrder(pages []int) []string {
	var out []string
	for i := 1; i < len(pages); i++ {
		prev, cur := pages[i-1], pages[i]
		switch {
		case cur <= prev:
			out = append(out, fmt.Sprintf("page %d follows page %d", cur, prev))
		case cur > prev+1:
			out = append(out, fmt.Sprintf("pages %d-%d missing", prev+1, cur-1))
		}
	}
	return out
}

// Summary writes a human-readable report.
func (r *Report) Summary(w io.Writer) {
	fmt.Fprintf(w, "Validated %d files\n", r.Files)
	fmt.Fprintf(w, "  Total chunks: %d\n", r.Total)
	fmt.Fprintf(w, "  With source_book: %d (%.1f%%)\n", r.WithBook, r.Percent(r.WithBook))
	fmt.Fprintf(w, "  With article_id: %d (%.1f%%)\n", r.WithArticle, r.Percent(r.WithArticle))
	fmt.Fprintf(w, "  With hierarchy: %d (%.1f%%)\n", r.WithHierarchy, r.Percent(r.WithHierarchy))
	fmt.Fprintf(w, "  With source_url: %d (%.1f%%)\n", r.WithSourceURL, r.Percent(r.WithSourceURL))
	fmt.Fprintf(w, "  With article_url: %d (%.1f%%)\n", r.WithArticleURL, r.Percent(r.WithArticleURL))
	fmt.Fprintf(w, "  Split windows: %d\n", r.Windows)
	if len(r.Issues) == 0 {
		fmt.Fprintln(w, "  No issues found")
		return
	}
	fmt.Fprintf(w, "  Issues: %d\n", len(r.Issues))
	for i, is := range r.Issues {
		if i == 20 {
			fmt.Fprintf(w, "    ... and %d more\n", len(r.Issues)-20)
			break
		}
		fmt.Fprintf(w, "    %s\n", is)
	}
}
