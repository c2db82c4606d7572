package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/legichunk/internal/doctree"
	"github.com/dgallion1/legichunk/internal/embed"
	"github.com/dgallion1/legichunk/internal/index"
)

// Indexer embeds chunk content and upserts it into a vector store. One
// Indexer is shared by all workers.
type Indexer struct {
	embedder    embed.Embedder
	store       index.Store
	batchSize   int
	concurrency int
	log         *slog.Logger
	backoff     func(int) time.Duration

	mu      sync.Mutex
	ensured bool
}

func NewIndexer(e embed.Embedder, s index.Store, batchSize, concurrency int, log *slog.Logger) *Indexer {
	if batchSize <= 0 {
		batchSize = 32
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Indexer{
		embedder:    e,
		store:       s,
		batchSize:   batchSize,
		concurrency: concurrency,
		log:         log,
		backoff:     Backoff,
	}
}

// ensureCollection creates the collection once, sized by the first vector.
func (ix *Indexer) ensureCollection(ctx context.Context, dims int) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.ensured {
		return nil
	}
	if err := ix.store.EnsureCollection(ctx, dims); err != nil {
		return err
	}
	ix.ensured = true
	return nil
}

// Index embeds and upserts chunks in batches with bounded concurrency. It
// returns the number of chunks stored and one error per failed batch.
// onBatch, if set, is called after each stored batch.
func (ix *Indexer) Index(ctx context.Context, chunks []doctree.Chunk, onBatch func(n int)) (int, []error) {
	type batchResult struct {
		idx int
		n   int
		err error
	}
	var batches [][]doctree.Chunk
	for start := 0; start < len(chunks); start += ix.batchSize {
		batches = append(batches, chunks[start:min(start+ix.batchSize, len(chunks))])
	}

	results := make(chan batchResult, len(batches))
	sem := make(chan struct{}, ix.concurrency)
	for i, b := range batches {
		sem <- struct{}{}
		go func() {
			defer func() { <-sem }()
			err := ix.indexBatch(ctx, b)
			n := 0
			if err == nil {
				n = len(b)
			}
			results <- batchResult{idx: i, n: n, err: err}
		}()
	}

	stored := 0
	var errs []error
	for range batches {
		r := <-results
		if r.err != nil {
			ix.log.Error("index batch failed", "batch", r.idx, "error", r.err)
			errs = append(errs, fmt.Errorf("batch %d: %w", r.idx, r.err))
			continue
		}
		stored += r.n
		if onBatch != nil {
			onBatch(r.n)
		}
	}
	return stored, errs
}

func (ix *Indexer) indexBatch(ctx context.Context, batch []doctree.Chunk) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Content
	}

	var vecs [][]float32
	err := retry(ctx, ix.backoff, func() error {
		var err error
		vecs, err = ix.embedder.EmbedBatch(ctx, texts)
		if err != nil && IsRetryable(err) {
			ix.log.Warn("retryable embed error", "error", err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	if len(vecs) != len(batch) {
		return fmt.Errorf("embed: %d vectors for %d chunks", len(vecs), len(batch))
	}
	if err := ix.ensureCollection(ctx, len(vecs[0])); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}

	records := make([]index.Record, len(batch))
	for i, c := range batch {
		records[i] = index.NewRecord(c, vecs[i])
	}
	return retry(ctx, ix.backoff, func() error {
		return ix.store.Upsert(ctx, records)
	})
}
