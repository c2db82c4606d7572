package index

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
)

// Memory is a brute-force cosine index for tests and small corpora.
type Memory struct {
	mu      sync.RWMutex
	dims    int
	records map[string]Record
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]Record)}
}

func (m *Memory) EnsureCollection(_ context.Context, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("index: invalid dimension %d", dims)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dims != 0 && m.dims != dims {
		return fmt.Errorf("index: collection has dimension %d, not %d", m.dims, dims)
	}
	m.dims = dims
	return nil
}

func (m *Memory) Upsert(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		if m.dims != 0 && len(r.Vector) != m.dims {
			return fmt.Errorf("index: record %s has dimension %d, want %d", r.ID, len(r.Vector), m.dims)
		}
	}
	for _, r := range records {
		r.Chunk = r.Chunk.Clone()
		m.records[r.ID] = r
	}
	return nil
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *Memory) Search(_ context.Context, vector []float32, k int, f Filter) ([]Hit, error) {
	if k <= 0 {
		k = 5
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []Hit
	for id, r := range m.records {
		if len(f.SourceBooks) > 0 && !slices.Contains(f.SourceBooks, r.Chunk.SourceBook) {
			continue
		}
		score := cosine(vector, r.Vector)
		if score < f.ScoreThreshold {
			continue
		}
		hits = append(hits, Hit{ID: id, Score: score, Chunk: r.Chunk.Clone()})
	}
	slices.SortFunc(hits, func(a, b Hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *Memory) Health(context.Context) error { return nil }

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
