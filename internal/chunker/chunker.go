package chunker

import (
	"errors"
	"fmt"
	"iter"
	"unicode/utf8"

	"github.com/dgallion1/legichunk/internal/doctree"
)

// Config controls window splitting. Sizes are in runes.
type Config struct {
	ChunkSize    int // Maximum window size.
	ChunkOverlap int // Runes shared by consecutive windows.
}

// DefaultConfig returns the sizes used to build the index.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    1000,
		ChunkOverlap: 150,
	}
}

// Validate rejects configurations that cannot make progress.
func (c Config) Validate() error {
	var errs []error
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize))
	}
	if c.ChunkOverlap < 0 {
		errs = append(errs, fmt.Errorf("chunk overlap must not be negative, got %d", c.ChunkOverlap))
	}
	if c.ChunkSize > 0 && c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", c.ChunkOverlap, c.ChunkSize))
	}
	return errors.Join(errs...)
}

// needsSplit reports whether c is over the size limit both as rendered
// content and as raw text.
func needsSplit(c doctree.Chunk, cfg Config) bool {
	return utf8.RuneCountInString(c.Content) > cfg.ChunkSize && utf8.RuneCountInString(c.RawContent) > cfg.ChunkSize
}

// Split breaks c into overlapping windows over its raw text. A chunk within
// the size limit is returned unchanged. Each window re-renders the same
// context prefix.
func Split(c doctree.Chunk, cfg Config) []doctree.Chunk {
	var out []doctree.Chunk
	for w := range Iter(c, cfg) {
		out = append(out, w)
	}
	return out
}

// Iter yields the windows of c in order. The sequence is finite and may be
// ranged over more than once.
func Iter(c doctree.Chunk, cfg Config) iter.Seq[doctree.Chunk] {
	return func(yield func(doctree.Chunk) bool) {
		if cfg.Validate() != nil || !needsSplit(c, cfg) {
			yield(c)
			return
		}
		raw := []rune(c.RawContent)
		for i, w := range windows(raw, cfg.ChunkSize, cfg.ChunkOverlap) {
			sub := c.Clone()
			sub.RawContent = string(raw[w.start:w.end])
			sub.Offset = c.Offset + w.start
			sub.ChunkIndex = i
			sub.Overlap = 0
			if i > 0 {
				sub.Overlap = cfg.ChunkOverlap
			}
			sub.Content = sub.Render(sub.RawContent)
			if !yield(sub) {
				return
			}
		}
	}
}

// SplitAll splits every chunk, preserving order.
func SplitAll(chunks []doctree.Chunk, cfg Config) []doctree.Chunk {
	out := make([]doctree.Chunk, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, Split(c, cfg)...)
	}
	return out
}

// Join reassembles the raw text of consecutive windows of one chunk by
// dropping each window's overlap.
func Join(parts []doctree.Chunk) string {
	var out []rune
	for _, w := range parts {
		r := []rune(w.RawContent)
		if w.Overlap > 0 && w.Overlap <= len(r) {
			r = r[w.Overlap:]
		}
		out = append(out, r...)
	}
	return string(out)
}

type window struct{ start, end int }

// windows cuts raw into spans of at most size runes. Each span but the first
// starts exactly overlap runes before the previous end.
func windows(raw []rune, size, overlap int) []window {
	var out []window
	start := 0
	for {
		if len(raw)-start <= size {
			return append(out, window{start, len(raw)})
		}
		limit := start + size
		// Never cut before half a window, and always leave room to advance
		// past the overlap.
		minCut := start + max(size/2, overlap+1)
		cut := breakPoint(raw, minCut, limit)
		out = append(out, window{start, cut})
		start = cut - overlap
	}
}

// breakPoint picks the latest cut in [lo, hi] after a paragraph break, a line
// break, a sentence end or a space, in that order of preference. Without
// any it cuts hard at hi.
func breakPoint(raw []rune, lo, hi int) int {
	if cut := lastAfter(lo, hi, func(i int) bool {
		return i >= 2 && raw[i-1] == '\n' && raw[i-2] == '\n'
	}); cut > 0 {
		return cut
	}
	if cut := lastAfter(lo, hi, func(i int) bool { return raw[i-1] == '\n' }); cut > 0 {
		return cut
	}
	if cut := lastAfter(lo, hi, func(i int) bool {
		return i >= 2 && raw[i-1] == ' ' && isSentenceEnd(raw[i-2])
	}); cut > 0 {
		return cut
	}
	if cut := lastAfter(lo, hi, func(i int) bool { return raw[i-1] == ' ' }); cut > 0 {
		return cut
	}
	return hi
}

func lastAfter(lo, hi int, ok func(i int) bool) int {
	for i := hi; i >= lo && i > 0; i-- {
		if ok(i) {
			return i
		}
	}
	return 0
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', ';':
		return true
	}
	return false
}
