package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/legichunk/internal/chunker"
	"github.com/dgallion1/legichunk/internal/doctree"
)

// JobStatus represents the state of an ingestion job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusParsing    JobStatus = "parsing"
	StatusEnriching  JobStatus = "enriching"
	StatusSplitting  JobStatus = "splitting"
	StatusWriting    JobStatus = "writing"
	StatusIndexing   JobStatus = "indexing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusPartial    JobStatus = "partial"
	StatusDupSkipped JobStatus = "duplicate_skipped"
)

// Done reports whether the status is terminal.
func (s JobStatus) Done() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusPartial, StatusDupSkipped:
		return true
	}
	return false
}

// Job tracks the state of a single document ingestion.
type Job struct {
	mu sync.Mutex

	ID    string `json:"job_id"`
	DocID string `json:"doc_id"`

	Status   JobStatus `json:"status"`
	Phase    string    `json:"phase"`
	Filename string    `json:"filename"`
	Code     string    `json:"code"`

	Progress Progress `json:"progress"`

	ContentHash string    `json:"content_hash,omitempty"`
	Force       bool      `json:"force,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Internal: not serialized.
	fileData []byte
	chunkCfg *chunker.Config
	chunks   []doctree.Chunk
	outputs  []string
}

// Progress tracks processing progress.
type Progress struct {
	Pages       int      `json:"pages"`
	Articles    int      `json:"articles"`
	TotalChunks int      `json:"total_chunks"`
	Indexed     int      `json:"indexed"`
	Issues      int      `json:"issues"`
	Warnings    []string `json:"warnings"`
	Errors      []string `json:"errors"`
}

// NewJob creates a queued job for a file. The document ID is derived from the
// content so that resubmitting the same bytes is detectable.
func NewJob(filename string, data []byte) *Job {
	now := time.Now()
	hash := ContentHashHex(data)
	return &Job{
		ID:          uuid.NewString(),
		DocID:       hash[:16],
		Status:      StatusQueued,
		Phase:       "queued",
		Filename:    filename,
		ContentHash: hash,
		CreatedAt:   now,
		UpdatedAt:   now,
		fileData:    data,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// FindCompleted returns a completed job with the given content hash, if any.
func (s *JobStore) FindCompleted(hash string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		j.mu.Lock()
		ok := j.ContentHash == hash && j.Status == StatusCompleted
		j.mu.Unlock()
		if ok {
			return j
		}
	}
	return nil
}

// Len returns the number of tracked jobs.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		expired := now.Sub(job.UpdatedAt) > s.ttl
		job.mu.Unlock()
		if expired {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Errors = append(j.Progress.Errors, err)
	j.UpdatedAt = time.Now()
}

// AddWarnings records structural warnings found while enriching.
func (j *Job) AddWarnings(w ...string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Warnings = append(j.Progress.Warnings, w...)
	j.UpdatedAt = time.Now()
}

// SetEnriched records the outcome of the enrichment phase.
func (j *Job) SetEnriched(code string, pages, articles int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Code = code
	j.Progress.Pages = pages
	j.Progress.Articles = articles
	j.UpdatedAt = time.Now()
}

// SetChunks stores the final chunks and their count.
func (j *Job) SetChunks(chunks []doctree.Chunk) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.chunks = chunks
	j.Progress.TotalChunks = len(chunks)
	j.UpdatedAt = time.Now()
}

// Chunks returns the job's final chunks. They must not be modified.
func (j *Job) Chunks() []doctree.Chunk {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.chunks
}

// SetIssues records the number of data-quality issues found.
func (j *Job) SetIssues(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Issues = n
}

// AddIndexed counts chunks written to the vector index.
func (j *Job) AddIndexed(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Indexed += n
	j.UpdatedAt = time.Now()
}

// AddOutput records a written file.
func (j *Job) AddOutput(path string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.outputs = append(j.outputs, path)
}

// SetFileData sets the raw file bytes for processing.
func (j *Job) SetFileData(data []byte) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fileData = data
}

// FileData returns the raw file bytes.
func (j *Job) FileData() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fileData
}

// releaseFileData drops the upload once it has been parsed.
func (j *Job) releaseFileData() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fileData = nil
}

// SetChunkConfig overrides the splitter settings for this job.
func (j *Job) SetChunkConfig(cfg chunker.Config) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.chunkCfg = &cfg
}

func (j *Job) chunkConfig(fallback chunker.Config) chunker.Config {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.chunkCfg != nil {
		return *j.chunkCfg
	}
	return fallback
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID       string    `json:"job_id"`
	DocID    string    `json:"doc_id"`
	Status   JobStatus `json:"status"`
	Phase    string    `json:"phase"`
	Filename string    `json:"filename"`
	Code     string    `json:"code"`
	Outputs  []string  `json:"outputs"`
	Progress Progress  `json:"progress"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	p := j.Progress
	p.Errors = append([]string{}, j.Progress.Errors...)
	p.Warnings = append([]string{}, j.Progress.Warnings...)
	return JobSnapshot{
		ID:       j.ID,
		DocID:    j.DocID,
		Status:   j.Status,
		Phase:    j.Phase,
		Filename: j.Filename,
		Code:     j.Code,
		Outputs:  append([]string{}, j.outputs...),
		Progress: p,
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
