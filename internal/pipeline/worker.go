package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dgallion1/legichunk/internal/chunker"
	"github.com/dgallion1/legichunk/internal/doctree"
	"github.com/dgallion1/legichunk/internal/enrich"
	"github.com/dgallion1/legichunk/internal/output"
	"github.com/dgallion1/legichunk/internal/parser"
	"github.com/dgallion1/legichunk/internal/registry"
	"github.com/dgallion1/legichunk/internal/validate"
)

// WorkerOptions configures document processing.
type WorkerOptions struct {
	Chunking      chunker.Config
	OutputDir     string // JSONL (and Markdown) are written here; empty keeps chunks in memory only
	WriteMarkdown bool
	PDFFallback   bool
}

// Worker processes a single document job.
type Worker struct {
	enricher *enrich.Enricher
	indexer  *Indexer
	log      *slog.Logger
	opts     WorkerOptions
}

// NewWorker creates a worker. A nil indexer skips the indexing phase.
func NewWorker(enricher *enrich.Enricher, indexer *Indexer, log *slog.Logger, opts WorkerOptions) *Worker {
	return &Worker{
		enricher: enricher,
		indexer:  indexer,
		log:      log,
		opts:     opts,
	}
}

// Process runs the full ingest pipeline for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "doc_id", job.DocID, "filename", job.Filename)

	// Phase 1: Parse
	job.SetStatus(StatusParsing, "parsing")
	p, err := parser.ForFile(job.Filename)
	if err != nil {
		log.Error("unsupported format", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "parsing")
		return
	}
	if pdf, ok := p.(*parser.PDFParser); ok {
		pdf.FallbackPdftotext = w.opts.PDFFallback
	}

	doc, err := p.Parse(bytes.NewReader(job.FileData()), job.Filename)
	job.releaseFileData()
	if err != nil {
		log.Error("parse failed", "error", err)
		job.AddError(fmt.Sprintf("parse: %s", err))
		job.SetStatus(StatusFailed, "parsing")
		return
	}

	// Phase 2: Enrich, page by page in extractor order.
	job.SetStatus(StatusEnriching, "enriching")
	chunks, run, err := w.enricher.Walk(ctx, doc)
	if err != nil {
		log.Error("enrich failed", "error", err)
		job.AddError(fmt.Sprintf("enrich: %s", err))
		job.SetStatus(StatusFailed, "enriching")
		return
	}
	articles := 0
	for _, c := range chunks {
		if c.ArticleID != "" {
			articles++
		}
	}
	job.SetEnriched(run.Code().DisplayName, run.Pages(), articles)

	pages := make([]int, len(doc.Pages))
	for i, pg := range doc.Pages {
		pages[i] = pg.Number
	}
	warnings := append(validate.CheckPageOrder(pages), run.Warnings()...)
	job.AddWarnings(warnings...)
	log.Info("enriched document", "code", run.Code().DisplayName, "pages", run.Pages(), "chunks", len(chunks), "warnings", len(warnings))

	if len(chunks) == 0 {
		log.Warn("no chunks produced")
		job.AddError("no extractable content")
		job.SetStatus(StatusFailed, "enriching")
		return
	}

	// Phase 3: Split
	job.SetStatus(StatusSplitting, "splitting")
	chunks = chunker.SplitAll(chunks, job.chunkConfig(w.opts.Chunking))
	job.SetChunks(chunks)

	// Phase 4: Validate and write
	job.SetStatus(StatusWriting, "writing")
	stem := registry.Stem(doc.Filename)
	report := validate.NewReport()
	for i, c := range chunks {
		report.Add(stem+".jsonl", i+1, c)
	}
	for _, msg := range warnings {
		report.Warn(stem+".jsonl", msg)
	}
	job.SetIssues(len(report.Issues))
	if len(report.Issues) > 0 {
		log.Warn("data-quality issues", "count", len(report.Issues), "first", report.Issues[0].String())
	}

	if w.opts.OutputDir != "" {
		if err := w.write(stem, run.Code(), chunks, job); err != nil {
			log.Error("write failed", "error", err)
			job.AddError(fmt.Sprintf("write: %s", err))
			job.SetStatus(StatusFailed, "writing")
			return
		}
	}

	// Phase 5: Embed and index
	if w.indexer == nil {
		job.SetStatus(StatusCompleted, "done")
		return
	}
	job.SetStatus(StatusIndexing, "indexing")
	stored, errs := w.indexer.Index(ctx, chunks, job.AddIndexed)
	for _, e := range errs {
		job.AddError(e.Error())
	}
	log.Info("indexing complete", "stored", stored, "total", len(chunks), "failed_batches", len(errs))

	switch {
	case len(errs) == 0:
		job.SetStatus(StatusCompleted, "done")
	case stored > 0:
		job.SetStatus(StatusPartial, "done")
	default:
		job.SetStatus(StatusFailed, "indexing")
	}
}

func (w *Worker) write(stem string, code registry.CodeEntry, chunks []doctree.Chunk, job *Job) error {
	if err := os.MkdirAll(w.opts.OutputDir, 0o755); err != nil {
		return err
	}
	jsonlPath := filepath.Join(w.opts.OutputDir, stem+".jsonl")
	if err := output.WriteJSONLFile(jsonlPath, chunks); err != nil {
		return err
	}
	job.AddOutput(jsonlPath)

	if !w.opts.WriteMarkdown {
		return nil
	}
	mdPath := filepath.Join(w.opts.OutputDir, stem+".md")
	h := output.Header{Name: code.DisplayName, URL: code.CanonicalURL, Key: code.Key}
	err := output.WriteFile(mdPath, func(wr io.Writer) error {
		return output.WriteMarkdown(wr, h, chunks)
	})
	if err != nil {
		return err
	}
	job.AddOutput(mdPath)
	return nil
}
