package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgallion1/legichunk/internal/chunker"
	"github.com/dgallion1/legichunk/internal/embed"
	"github.com/dgallion1/legichunk/internal/enrich"
	"github.com/dgallion1/legichunk/internal/index"
	"github.com/dgallion1/legichunk/internal/output"
	"github.com/dgallion1/legichunk/internal/registry"
)

const penalText = "LIVRE III\nTITRE Ier\nChapitre Ier : Du vol\n" +
	"Article 311-1\nLe vol est la soustraction frauduleuse de la chose d'autrui.\n" +
	"Article 311-2\nLa soustraction frauduleuse d'énergie au préjudice d'autrui est assimilée au vol.\n" +
	"\f" +
	"Article 311-3\nLe vol est puni de trois ans d'emprisonnement et de 45 000 euros d'amende.\n"

func quietLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEnricher() *enrich.Enricher {
	reg := registry.New(registry.CodeEntry{
		Key:          "code_penal",
		DisplayName:  "Code pénal",
		CanonicalURL: "https://www.legifrance.gouv.fr/codes/texte_lc/LEGITEXT000006070719",
	})
	return enrich.New(reg, enrich.Options{Logger: quietLog()})
}

// fakeEmbedder returns a two-dimensional vector per text. failures makes
// the first n calls fail with a retryable error.
type fakeEmbedder struct {
	calls    atomic.Int32
	failures int32
	err      error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	n := f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if n <= f.failures {
		return nil, &embed.RetryableError{StatusCode: 429, Message: "rate limited"}
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return 2 }

func noBackoff(int) time.Duration { return 0 }

func testIndexer(e embed.Embedder, s index.Store, batch int) *Indexer {
	ix := NewIndexer(e, s, batch, 2, quietLog())
	ix.backoff = noBackoff
	return ix
}

func TestWorker_ProcessWritesAndIndexes(t *testing.T) {
	dir := t.TempDir()
	store := index.NewMemory()
	w := NewWorker(testEnricher(), testIndexer(&fakeEmbedder{}, store, 2), quietLog(), WorkerOptions{
		Chunking:      chunker.DefaultConfig(),
		OutputDir:     dir,
		WriteMarkdown: true,
	})

	job := NewJob("Code_penal.txt", []byte(penalText))
	w.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (errors %v)", snap.Status, snap.Progress.Errors)
	}
	if snap.Code != "Code pénal" || snap.Progress.Pages != 2 || snap.Progress.Articles != 3 {
		t.Errorf("unexpected progress %+v", snap)
	}
	if snap.Progress.TotalChunks != 3 || snap.Progress.Indexed != 3 || store.Len() != 3 {
		t.Errorf("expected 3 chunks indexed, got total=%d indexed=%d store=%d", snap.Progress.TotalChunks, snap.Progress.Indexed, store.Len())
	}
	if snap.Progress.Issues != 0 {
		t.Errorf("expected no issues, got %d", snap.Progress.Issues)
	}
	if job.FileData() != nil {
		t.Error("expected upload to be released after parsing")
	}

	chunks, err := output.ReadJSONLFile(filepath.Join(dir, "Code_penal.jsonl"))
	if err != nil {
		t.Fatalf("read jsonl: %v", err)
	}
	if len(chunks) != 3 || chunks[2].ArticleID != "311-3" || chunks[2].Page != 2 {
		t.Fatalf("unexpected chunks %+v", chunks)
	}
	if got := strings.Join(chunks[2].HierarchyPath, " > "); got != "III > Ier > Ier - Du vol" {
		t.Errorf("expected hierarchy to persist across pages, got %q", got)
	}

	md, err := os.ReadFile(filepath.Join(dir, "Code_penal.md"))
	if err != nil {
		t.Fatalf("read markdown: %v", err)
	}
	if !strings.HasPrefix(string(md), "# Code pénal\n") || !strings.Contains(string(md), "### Article 311-2") {
		t.Errorf("unexpected markdown:\n%s", md)
	}
	if len(snap.Outputs) != 2 {
		t.Errorf("expected 2 outputs, got %v", snap.Outputs)
	}
}

func TestWorker_NoIndexerCompletesAfterWriting(t *testing.T) {
	w := NewWorker(testEnricher(), nil, quietLog(), WorkerOptions{Chunking: chunker.DefaultConfig()})
	job := NewJob("Code_penal.txt", []byte(penalText))
	w.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusCompleted || len(snap.Outputs) != 0 {
		t.Fatalf("expected in-memory completion, got %+v", snap)
	}
	if len(job.Chunks()) != 3 {
		t.Errorf("expected chunks kept on job, got %d", len(job.Chunks()))
	}
}

func TestWorker_SplitUsesJobOverride(t *testing.T) {
	w := NewWorker(testEnricher(), nil, quietLog(), WorkerOptions{Chunking: chunker.DefaultConfig()})
	job := NewJob("Code_penal.txt", []byte("Article 1\n"+strings.Repeat("Alinéa du texte. ", 60)))
	job.SetChunkConfig(chunker.Config{ChunkSize: 300, ChunkOverlap: 30})
	w.Process(context.Background(), job)

	chunks := job.Chunks()
	if len(chunks) < 3 {
		t.Fatalf("expected several windows, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.ChunkIndex != i || c.ArticleID != "1" {
			t.Errorf("unexpected window %d: %+v", i, c)
		}
	}
}

func TestWorker_FailurePhases(t *testing.T) {
	w := NewWorker(testEnricher(), nil, quietLog(), WorkerOptions{Chunking: chunker.DefaultConfig()})

	unsupported := NewJob("code.csv", []byte("a,b"))
	w.Process(context.Background(), unsupported)
	if s := unsupported.Snapshot(); s.Status != StatusFailed || s.Phase != "parsing" {
		t.Errorf("expected parse failure, got %s/%s", s.Status, s.Phase)
	}

	empty := NewJob("Code_penal.txt", []byte("   \n\f\n"))
	w.Process(context.Background(), empty)
	if s := empty.Snapshot(); s.Status != StatusFailed || s.Progress.Errors[0] != "no extractable content" {
		t.Errorf("expected empty failure, got %+v", s)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cancelled := NewJob("Code_penal.txt", []byte(penalText))
	w.Process(ctx, cancelled)
	if s := cancelled.Snapshot(); s.Status != StatusFailed || s.Phase != "enriching" {
		t.Errorf("expected enrich cancellation, got %s/%s", s.Status, s.Phase)
	}
}

func TestWorker_IndexFailureStatus(t *testing.T) {
	boom := errors.New("model not found")
	w := NewWorker(testEnricher(), testIndexer(&fakeEmbedder{err: boom}, index.NewMemory(), 2), quietLog(), WorkerOptions{Chunking: chunker.DefaultConfig()})
	job := NewJob("Code_penal.txt", []byte(penalText))
	w.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusFailed || snap.Phase != "indexing" {
		t.Fatalf("expected indexing failure, got %s/%s", snap.Status, snap.Phase)
	}
	if len(snap.Progress.Errors) != 2 {
		t.Errorf("expected one error per batch, got %v", snap.Progress.Errors)
	}
}

func TestWorker_RecordsPageWarnings(t *testing.T) {
	w := NewWorker(testEnricher(), nil, quietLog(), WorkerOptions{Chunking: chunker.DefaultConfig()})
	// A section directly under a title is reported as a gap.
	job := NewJob("Code_penal.txt", []byte("TITRE II\nSection 1\nArticle 1\nTexte.\n"))
	w.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completion, got %s", snap.Status)
	}
	if len(snap.Progress.Warnings) != 1 || !strings.Contains(snap.Progress.Warnings[0], "Chapitre") {
		t.Errorf("expected chapter gap warning, got %v", snap.Progress.Warnings)
	}
	if snap.Progress.Issues != 1 {
		t.Errorf("expected the warning counted as an issue, got %d", snap.Progress.Issues)
	}
}
