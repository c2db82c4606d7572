// Package retrieve answers similarity queries over the chunk index.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgallion1/legichunk/internal/doctree"
	"github.com/dgallion1/legichunk/internal/embed"
	"github.com/dgallion1/legichunk/internal/index"
)

// ErrEmptyQuery is returned for a blank query text.
var ErrEmptyQuery = errors.New("empty query")

// Query is a retrieval request. Codes restricts results to the named
// source books.
type Query struct {
	Text           string   `json:"query"`
	K              int      `json:"k,omitempty"`
	Codes          []string `json:"codes,omitempty"`
	ScoreThreshold float32  `json:"score_threshold,omitempty"`
}

// Result is one retrieved chunk.
type Result struct {
	Chunk doctree.Chunk `json:"chunk"`
	Score float32       `json:"score"`
}

// Citation renders "<code>, art. <id>" with the most specific URL.
func (r Result) Citation() string {
	c := r.Chunk
	s := c.SourceBook
	if c.ArticleID != "" {
		s += ", art. " + c.ArticleID
	}
	if u := c.CitationURL(); u != "" {
		s += " (" + u + ")"
	}
	return s
}

// ContextSeparator separates chunks in a prompt context block.
const ContextSeparator = "\n\n---\n\n"

// ContextBlock joins result contents for use as model context.
func ContextBlock(results []Result) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Chunk.Content
	}
	return strings.Join(parts, ContextSeparator)
}

// Service embeds queries and searches the index.
type Service struct {
	embedder  embed.Embedder
	store     index.Store
	defaultK  int
	threshold float32
	log       *slog.Logger
}

func NewService(e embed.Embedder, s index.Store, defaultK int, threshold float32, log *slog.Logger) *Service {
	if defaultK <= 0 {
		defaultK = 5
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{embedder: e, store: s, defaultK: defaultK, threshold: threshold, log: log}
}

func (s *Service) Search(ctx context.Context, q Query) ([]Result, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, ErrEmptyQuery
	}
	k := q.K
	if k <= 0 {
		k = s.defaultK
	}
	threshold := q.ScoreThreshold
	if threshold == 0 {
		threshold = s.threshold
	}

	start := time.Now()
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := s.store.Search(ctx, vec, k, index.Filter{SourceBooks: q.Codes, ScoreThreshold: threshold})
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	out := make([]Result, len(hits))
	for i, h := range hits {
		out[i] = Result{Chunk: h.Chunk, Score: h.Score}
	}
	s.log.Debug("search", "k", k, "codes", len(q.Codes), "hits", len(out), "elapsed_ms", time.Since(start).Milliseconds())
	return out, nil
}
