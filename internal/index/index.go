// Package index stores chunk vectors for similarity search.
package index

import (
	"context"

	"github.com/dgallion1/legichunk/internal/doctree"
)

// Record is one chunk and its vector, keyed by the chunk's point ID.
type Record struct {
	ID     string
	Vector []float32
	Chunk  doctree.Chunk
}

// NewRecord keys c by its deterministic point ID.
func NewRecord(c doctree.Chunk, vector []float32) Record {
	return Record{ID: c.PointID(), Vector: vector, Chunk: c}
}

// Filter narrows a search. Zero values match everything.
type Filter struct {
	SourceBooks    []string // match any
	ScoreThreshold float32  // drop hits scoring below
}

// Hit is a search result.
type Hit struct {
	ID    string        `json:"id"`
	Score float32       `json:"score"`
	Chunk doctree.Chunk `json:"chunk"`
}

// Store is a vector index. Upsert must be idempotent by Record.ID.
type Store interface {
	EnsureCollection(ctx context.Context, dims int) error
	Upsert(ctx context.Context, records []Record) error
	Search(ctx context.Context, vector []float32, k int, f Filter) ([]Hit, error)
	Health(ctx context.Context) error
}
