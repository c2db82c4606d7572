package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/legichunk/internal/config"
	"github.com/dgallion1/legichunk/internal/enrich"
)

// ErrQueueFull is returned by Submit when no queue slot is free.
var ErrQueueFull = errors.New("job queue is full")

// Orchestrator manages the document ingestion pipeline.
type Orchestrator struct {
	jobs     *JobStore
	queue    chan *Job
	enricher *enrich.Enricher
	indexer  *Indexer
	log      *slog.Logger
	cfg      config.Config
	opts     WorkerOptions

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline. A nil indexer disables indexing.
func NewOrchestrator(cfg config.Config, enricher *enrich.Enricher, indexer *Indexer, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:     NewJobStore(cfg.JobTTL),
		queue:    make(chan *Job, cfg.MaxQueueSize),
		enricher: enricher,
		indexer:  indexer,
		log:      log,
		cfg:      cfg,
		opts: WorkerOptions{
			Chunking:      cfg.Chunking(),
			OutputDir:     cfg.OutputDir,
			WriteMarkdown: cfg.WriteMarkdown,
			PDFFallback:   cfg.PDFFallbackPdftotext,
		},
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.cfg.WorkerCount {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			w := NewWorker(o.enricher, o.indexer, o.log, o.opts)
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					w.Process(workerCtx, job)
				}
			}
		}()
	}

	// Start job store cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop gracefully shuts down the pipeline.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	o.wg.Wait()
}

// Submit queues a new job for processing. A document whose content was
// already processed successfully is marked duplicate_skipped unless the job
// is forced.
func (o *Orchestrator) Submit(job *Job) error {
	if !job.Force {
		if prev := o.jobs.FindCompleted(job.ContentHash); prev != nil {
			job.SetStatus(StatusDupSkipped, "dedup")
			job.AddWarnings("same content as job " + prev.ID)
			o.jobs.Put(job)
			return nil
		}
	}
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		return nil
	default:
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("%w (%d)", ErrQueueFull, o.cfg.MaxQueueSize)
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// Enricher returns the enricher shared by the workers.
func (o *Orchestrator) Enricher() *enrich.Enricher {
	return o.enricher
}

// IndexingEnabled reports whether jobs are embedded and indexed.
func (o *Orchestrator) IndexingEnabled() bool {
	return o.indexer != nil
}
