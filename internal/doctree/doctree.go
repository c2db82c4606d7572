package doctree

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Document is the ordered page text of one source file.
type Document struct {
	Name     string            // Document name used for code resolution (filename stem)
	Filename string            // Original filename
	Pages    []Page            // Pages in the order supplied by the extractor
	Extra    map[string]string // Pass-through fields copied onto every chunk
}

// Page is the extracted text of a single 1-based page.
type Page struct {
	Number int
	Text   string
}

// Chunk is an enriched, retrievable unit of a legal code.
type Chunk struct {
	Content       string            `json:"content"`
	SourceBook    string            `json:"source_book"`
	SourceURL     string            `json:"source_url,omitempty"`
	ArticleID     string            `json:"article_id,omitempty"`
	ArticleURL    string            `json:"article_url,omitempty"`
	HierarchyPath []string          `json:"hierarchy_path"`
	Page          int               `json:"page"`
	RawContent    string            `json:"raw_content"`
	Offset        int               `json:"offset"`
	ChunkIndex    int               `json:"chunk_index"`
	Overlap       int               `json:"overlap"`
	Extra         map[string]string `json:"extra,omitempty"`
}

// PathSeparator joins hierarchy labels in rendered content.
const PathSeparator = " > "

// Prefix renders the context block placed before the raw text. The line
// order is part of the index contract and must not change.
func (c Chunk) Prefix() string {
	var sb strings.Builder
	sb.WriteString("Source: ")
	sb.WriteString(c.SourceBook)
	sb.WriteString("\n")
	if len(c.HierarchyPath) > 0 {
		sb.WriteString(strings.Join(c.HierarchyPath, PathSeparator))
		sb.WriteString("\n")
	}
	if c.ArticleID != "" {
		sb.WriteString("Article ")
		sb.WriteString(c.ArticleID)
		sb.WriteString("\n")
	}
	if u := c.CitationURL(); u != "" {
		sb.WriteString("URL: ")
		sb.WriteString(u)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	return sb.String()
}

// Render returns raw wrapped with this chunk's context prefix.
func (c Chunk) Render(raw string) string {
	return c.Prefix() + raw
}

// CitationURL returns the most specific known URL for the chunk.
func (c Chunk) CitationURL() string {
	if c.ArticleURL != "" {
		return c.ArticleURL
	}
	return c.SourceURL
}

// Source returns the pass-through filename, falling back to the code name.
func (c Chunk) Source() string {
	if f := c.Extra["filename"]; f != "" {
		return f
	}
	return c.SourceBook
}

// pointNamespace scopes chunk IDs so they never collide with other UUIDv5 users.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://legichunk/chunk"))

// PointID is a deterministic identifier for the chunk, stable across runs so
// that re-ingesting a document overwrites rather than duplicates.
func (c Chunk) PointID() string {
	key := fmt.Sprintf("%s|%s|%d|%d|%d", c.Source(), c.ArticleID, c.Page, c.Offset, c.ChunkIndex)
	return uuid.NewSHA1(pointNamespace, []byte(key)).String()
}

// Clone returns a copy that shares no slices or maps with c.
func (c Chunk) Clone() Chunk {
	out := c
	out.HierarchyPath = CopyPath(c.HierarchyPath)
	if c.Extra != nil {
		out.Extra = make(map[string]string, len(c.Extra))
		for k, v := range c.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// CopyPath copies a hierarchy path, mapping nil to an empty slice so the
// JSON form is always an array.
func CopyPath(p []string) []string {
	out := make([]string, len(p))
	copy(out, p)
	return out
}
