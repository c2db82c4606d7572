// Package enrich turns document pages into article chunks carrying the
// active hierarchy path and the resolved code identity.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dgallion1/legichunk/internal/doctree"
	"github.com/dgallion1/legichunk/internal/hierarchy"
	"github.com/dgallion1/legichunk/internal/pattern"
	"github.com/dgallion1/legichunk/internal/registry"
)

// Options configures an Enricher.
type Options struct {
	Levels []hierarchy.Level // hierarchy levels to recognise; all when empty
	Logger *slog.Logger
}

// Enricher is stateless across documents and safe for concurrent use. All
// per-document state lives in a DocumentRun.
type Enricher struct {
	matcher  *pattern.Matcher
	enabled  [hierarchy.NumLevels]bool
	registry *registry.Registry
	log      *slog.Logger
}

// New creates an Enricher. A nil registry resolves every document to its
// filename fallback.
func New(reg *registry.Registry, opts Options) *Enricher {
	if reg == nil {
		reg = registry.New()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	e := &Enricher{
		matcher:  pattern.NewMatcher(opts.Levels...),
		registry: reg,
		log:      log,
	}
	for _, l := range e.matcher.Levels() {
		e.enabled[l] = true
	}
	return e
}

// Registry returns the registry used for code resolution.
func (e *Enricher) Registry() *registry.Registry { return e.registry }

// openArticle is the article whose span may continue onto the next page.
type openArticle struct {
	id   string
	url  string
	path []string
}

// DocumentRun holds the state of one document walk. It must be fed pages
// from a single goroutine.
type DocumentRun struct {
	e       *Enricher
	code    registry.CodeEntry
	tracker *hierarchy.Tracker
	extra   map[string]string

	open        *openArticle
	lastPage    int
	pages       int
	regressions int
	warnings    []string
}

// Begin starts a walk over doc. The code is resolved once here.
func (e *Enricher) Begin(doc *doctree.Document) *DocumentRun {
	name := doc.Name
	if name == "" {
		name = doc.Filename
	}
	extra := make(map[string]string, len(doc.Extra)+1)
	for k, v := range doc.Extra {
		extra[k] = v
	}
	if extra["filename"] == "" && doc.Filename != "" {
		extra["filename"] = doc.Filename
	}
	return &DocumentRun{
		e:       e,
		code:    e.registry.Resolve(name),
		tracker: hierarchy.NewTracker(),
		extra:   extra,
	}
}

// Code returns the code entry the document resolved to.
func (r *DocumentRun) Code() registry.CodeEntry { return r.code }

// Regressions counts pages whose number did not increase over the previous one.
func (r *DocumentRun) Regressions() int { return r.regressions }

// Pages returns the number of pages processed.
func (r *DocumentRun) Pages() int { return r.pages }

// Warnings lists structural oddities seen so far, such as a section opened
// under a title with no chapter.
func (r *DocumentRun) Warnings() []string { return r.warnings }

// gap returns the first enabled level left unset between the deepest set
// level above l and l itself.
func (r *DocumentRun) gap(l hierarchy.Level) (hierarchy.Level, bool) {
	parent := hierarchy.Level(-1)
	for p := l - 1; p >= hierarchy.Part; p-- {
		if _, set := r.tracker.Get(p); set {
			parent = p
			break
		}
	}
	if parent < 0 {
		return 0, false
	}
	for m := parent + 1; m < l; m++ {
		if r.e.enabled[m] {
			return m, true
		}
	}
	return 0, false
}

// AddPage walks one page and returns its chunks. Tracker state carries over
// to the next call.
func (r *DocumentRun) AddPage(page doctree.Page) ([]doctree.Chunk, error) {
	if r.pages > 0 && page.Number <= r.lastPage {
		r.regressions++
	}
	r.lastPage = page.Number
	r.pages++

	text := page.Text
	matches := r.e.matcher.Match(text)

	var out []doctree.Chunk
	firstStart := len(text)
	if len(matches) > 0 {
		firstStart = matches[0].Start
	}
	if r.open != nil {
		if c, ok := r.span(text, 0, firstStart, page.Number, r.open.id, r.open.url, r.open.path); ok {
			out = append(out, c)
		}
	} else if c, ok := r.span(text, 0, firstStart, page.Number, "", "", r.tracker.Snapshot()); ok {
		out = append(out, c)
	}

	for i, m := range matches {
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1].Start
		}

		switch m.Kind {
		case pattern.KindHierarchy:
			if missing, ok := r.gap(m.Level); ok {
				r.warnings = append(r.warnings, fmt.Sprintf("page %d: %s %s opened with no %s", page.Number, m.Level, m.Label, missing))
			}
			if err := r.tracker.Update(m.Level, m.Label); err != nil {
				return nil, fmt.Errorf("page %d: %w", page.Number, err)
			}
			r.open = nil
			if c, ok := r.span(text, m.End, end, page.Number, "", "", r.tracker.Snapshot()); ok {
				out = append(out, c)
			}

		case pattern.KindArticle:
			url, _ := r.e.registry.ArticleURL(r.code.Key, m.ArticleID)
			path := r.tracker.Snapshot()
			r.open = &openArticle{id: m.ArticleID, url: url, path: path}
			if c, ok := r.span(text, m.Start, end, page.Number, m.ArticleID, url, path); ok {
				out = append(out, c)
			}
		}
	}

	return out, nil
}

// span builds a chunk from text[start:end], trimmed. Whitespace-only spans
// yield nothing.
func (r *DocumentRun) span(text string, start, end, page int, articleID, articleURL string, path []string) (doctree.Chunk, bool) {
	if start >= end {
		return doctree.Chunk{}, false
	}
	s := text[start:end]
	trimmed := strings.TrimLeftFunc(s, unicode.IsSpace)
	start += len(s) - len(trimmed)
	raw := strings.TrimRightFunc(trimmed, unicode.IsSpace)
	if raw == "" {
		return doctree.Chunk{}, false
	}

	c := doctree.Chunk{
		SourceBook:    r.code.DisplayName,
		SourceURL:     r.code.CanonicalURL,
		ArticleID:     articleID,
		ArticleURL:    articleURL,
		HierarchyPath: doctree.CopyPath(path),
		Page:          page,
		RawContent:    raw,
		Offset:        utf8.RuneCountInString(text[:start]),
		Extra:         copyExtra(r.extra),
	}
	c.Content = c.Render(raw)
	return c, true
}

func copyExtra(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Enrich walks every page of doc in the order given. Cancellation is checked
// between pages; a page is never left half processed.
func (e *Enricher) Enrich(ctx context.Context, doc *doctree.Document) ([]doctree.Chunk, error) {
	chunks, _, err := e.Walk(ctx, doc)
	return chunks, err
}

// Walk is Enrich that also returns the finished run, so callers can read
// its code, page count and warnings.
func (e *Enricher) Walk(ctx context.Context, doc *doctree.Document) ([]doctree.Chunk, *DocumentRun, error) {
	run := e.Begin(doc)
	var out []doctree.Chunk
	for _, p := range doc.Pages {
		if err := ctx.Err(); err != nil {
			return out, run, err
		}
		chunks, err := run.AddPage(p)
		if err != nil {
			return out, run, err
		}
		out = append(out, chunks...)
	}

	if run.Regressions() > 0 {
		e.log.Warn("pages out of order", "document", doc.Filename, "regressions", run.Regressions())
	}
	if w := run.Warnings(); len(w) > 0 {
		e.log.Info("hierarchy gaps", "document", doc.Filename, "count", len(w), "first", w[0])
	}
	e.log.Debug("document enriched",
		"document", doc.Filename,
		"code", run.code.DisplayName,
		"pages", run.Pages(),
		"chunks", len(out),
	)
	return out, run, nil
}
