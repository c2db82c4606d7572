package pipeline

import (
	"testing"
	"time"

	"github.com/dgallion1/legichunk/internal/chunker"
	"github.com/dgallion1/legichunk/internal/doctree"
)

func TestContentHashHex_Consistency(t *testing.T) {
	data := []byte("hello world")
	h1 := ContentHashHex(data)
	h2 := ContentHashHex(data)
	if h1 != h2 {
		t.Errorf("expected identical hashes, got %q and %q", h1, h2)
	}
	// SHA-256 of "hello world" is well-known.
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if h1 != want {
		t.Errorf("expected hash %q, got %q", want, h1)
	}
}

func TestContentHashHex_DifferentInputs(t *testing.T) {
	h1 := ContentHashHex([]byte("aaa"))
	h2 := ContentHashHex([]byte("bbb"))
	if h1 == h2 {
		t.Error("expected different hashes for different inputs")
	}
}

func TestContentHashHex_EmptyInput(t *testing.T) {
	h := ContentHashHex([]byte{})
	// SHA-256 of empty input is well-known.
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if h != want {
		t.Errorf("expected hash %q, got %q", want, h)
	}
}

func TestJob_StateTransitions(t *testing.T) {
	job := &Job{
		ID:        "test-1",
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	transitions := []struct {
		status JobStatus
		phase  string
	}{
		{StatusParsing, "parsing"},
		{StatusEnriching, "enriching"},
		{StatusSplitting, "splitting"},
		{StatusWriting, "writing"},
		{StatusIndexing, "indexing"},
		{StatusCompleted, "done"},
	}

	for _, tr := range transitions {
		before := job.UpdatedAt
		// Small sleep to ensure time difference is detectable.
		time.Sleep(time.Millisecond)
		job.SetStatus(tr.status, tr.phase)

		if job.Status != tr.status {
			t.Errorf("expected status %q, got %q", tr.status, job.Status)
		}
		if job.Phase != tr.phase {
			t.Errorf("expected phase %q, got %q", tr.phase, job.Phase)
		}
		if !job.UpdatedAt.After(before) {
			t.Errorf("expected UpdatedAt to advance after SetStatus(%q)", tr.status)
		}
	}
}

func TestJob_SetStatusFailed(t *testing.T) {
	job := &Job{
		ID:        "test-fail",
		Status:    StatusIndexing,
		UpdatedAt: time.Now(),
	}
	job.SetStatus(StatusFailed, "indexing")
	if job.Status != StatusFailed {
		t.Errorf("expected status %q, got %q", StatusFailed, job.Status)
	}
}

func TestJob_AddError(t *testing.T) {
	job := &Job{ID: "err-test", UpdatedAt: time.Now()}
	job.AddError("chunk 3 failed")
	job.AddError("chunk 7 failed")

	snap := job.Snapshot()
	if len(snap.Progress.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(snap.Progress.Errors))
	}
	if snap.Progress.Errors[0] != "chunk 3 failed" {
		t.Errorf("expected first error %q, got %q", "chunk 3 failed", snap.Progress.Errors[0])
	}
}

func TestJob_AddIndexed(t *testing.T) {
	job := &Job{ID: "incr-test", UpdatedAt: time.Now()}
	job.AddIndexed(32)
	job.AddIndexed(5)

	snap := job.Snapshot()
	if snap.Progress.Indexed != 37 {
		t.Errorf("expected 37 indexed, got %d", snap.Progress.Indexed)
	}
}

func TestJob_SetEnrichedAndChunks(t *testing.T) {
	job := &Job{ID: "enrich-test", UpdatedAt: time.Now()}
	job.SetEnriched("Code pénal", 12, 40)
	job.SetChunks(make([]doctree.Chunk, 42))

	snap := job.Snapshot()
	if snap.Code != "Code pénal" || snap.Progress.Pages != 12 || snap.Progress.Articles != 40 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if snap.Progress.TotalChunks != 42 || len(job.Chunks()) != 42 {
		t.Errorf("expected 42 total chunks, got %d", snap.Progress.TotalChunks)
	}
}

func TestJob_ChunkConfigOverride(t *testing.T) {
	job := &Job{ID: "cfg-test"}
	def := chunker.DefaultConfig()
	if got := job.chunkConfig(def); got != def {
		t.Errorf("expected default config, got %+v", got)
	}
	job.SetChunkConfig(chunker.Config{ChunkSize: 400, ChunkOverlap: 40})
	if got := job.chunkConfig(def); got.ChunkSize != 400 || got.ChunkOverlap != 40 {
		t.Errorf("expected override, got %+v", got)
	}
}

func TestNewJob(t *testing.T) {
	data := []byte("Article 1")
	a := NewJob("Code_civil.txt", data)
	b := NewJob("Code_civil.txt", data)
	if a.ID == b.ID {
		t.Error("expected distinct job ids")
	}
	if a.DocID != b.DocID || len(a.DocID) != 16 {
		t.Errorf("expected stable 16-char doc id, got %q and %q", a.DocID, b.DocID)
	}
	if a.Status != StatusQueued || string(a.FileData()) != "Article 1" {
		t.Errorf("unexpected new job %+v", a.Snapshot())
	}
}

func TestJobStatus_Done(t *testing.T) {
	for _, s := range []JobStatus{StatusCompleted, StatusFailed, StatusPartial, StatusDupSkipped} {
		if !s.Done() {
			t.Errorf("expected %q to be terminal", s)
		}
	}
	for _, s := range []JobStatus{StatusQueued, StatusParsing, StatusIndexing} {
		if s.Done() {
			t.Errorf("expected %q to be in progress", s)
		}
	}
}

func TestJob_FileData(t *testing.T) {
	job := &Job{ID: "data-test"}
	data := []byte("file content here")
	job.SetFileData(data)
	got := job.FileData()
	if string(got) != string(data) {
		t.Errorf("expected file data %q, got %q", data, got)
	}
}

func TestJob_SnapshotErrorsNotNil(t *testing.T) {
	// Snapshot should always return non-nil errors slice.
	job := &Job{ID: "snap-test", UpdatedAt: time.Now()}
	snap := job.Snapshot()
	if snap.Progress.Errors == nil || snap.Progress.Warnings == nil || snap.Outputs == nil {
		t.Error("expected non-nil slices in snapshot")
	}
	if len(snap.Progress.Errors) != 0 {
		t.Errorf("expected empty errors, got %d", len(snap.Progress.Errors))
	}
}

func TestJobStore_PutGet(t *testing.T) {
	store := NewJobStore(time.Hour)
	job := &Job{ID: "store-1", UpdatedAt: time.Now()}
	store.Put(job)

	got := store.Get("store-1")
	if got == nil {
		t.Fatal("expected to get job back")
	}
	if got.ID != "store-1" {
		t.Errorf("expected ID %q, got %q", "store-1", got.ID)
	}
}

func TestJobStore_GetMissing(t *testing.T) {
	store := NewJobStore(time.Hour)
	if store.Get("nonexistent") != nil {
		t.Error("expected nil for missing job")
	}
}

func TestJobStore_TTLCleanup(t *testing.T) {
	store := NewJobStore(50 * time.Millisecond)

	expired := &Job{ID: "old", UpdatedAt: time.Now()}
	store.Put(expired)

	// Wait for the TTL to pass.
	time.Sleep(100 * time.Millisecond)

	// Add a fresh job.
	fresh := &Job{ID: "new", UpdatedAt: time.Now()}
	store.Put(fresh)

	store.Cleanup()

	if store.Get("old") != nil {
		t.Error("expected expired job to be cleaned up")
	}
	if store.Get("new") == nil {
		t.Error("expected fresh job to survive cleanup")
	}
}

func TestJobStore_CleanupEmpty(t *testing.T) {
	store := NewJobStore(time.Hour)
	// Should not panic on empty store.
	store.Cleanup()
}

func TestJobStore_FindCompleted(t *testing.T) {
	store := NewJobStore(time.Hour)
	running := &Job{ID: "a", ContentHash: "h1", Status: StatusIndexing}
	done := &Job{ID: "b", ContentHash: "h2", Status: StatusCompleted}
	store.Put(running)
	store.Put(done)

	if store.FindCompleted("h1") != nil {
		t.Error("expected running job to be ignored")
	}
	if got := store.FindCompleted("h2"); got == nil || got.ID != "b" {
		t.Errorf("expected job b, got %v", got)
	}
	if store.Len() != 2 {
		t.Errorf("expected 2 jobs, got %d", store.Len())
	}
}
