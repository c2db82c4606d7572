package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/legichunk/internal/app"
	"github.com/dgallion1/legichunk/internal/config"
	"github.com/dgallion1/legichunk/internal/output"
	"github.com/dgallion1/legichunk/internal/parser"
	"github.com/dgallion1/legichunk/internal/pipeline"
	"github.com/dgallion1/legichunk/internal/retrieve"
	"github.com/dgallion1/legichunk/internal/validate"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "legichunk",
		Short: "Enrich French legal codes into retrieval chunks",
		Long: `legichunk turns French legal code documents into article-level chunks
carrying the code name, the Partie/Livre/Titre/Chapitre/Section path and
Légifrance links, ready for embedding.

Configuration is read from the environment and an optional .env file.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug output")

	rootCmd.AddCommand(enrichCmd())
	rootCmd.AddCommand(injectCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(validateCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the environment and builds the shared components.
func setup(cmd *cobra.Command) (config.Config, *app.Components, *slog.Logger, error) {
	level := slog.LevelInfo
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn("could not read .env", "error", err)
	}
	cfg := config.Load()
	if registry, _ := cmd.Flags().GetString("registry"); registry != "" {
		cfg.RegistryFile = registry
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	comps, err := app.Build(cfg, log)
	if err != nil {
		return cfg, nil, nil, err
	}
	return cfg, comps, log, nil
}

func enrichCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enrich <input-dir>",
		Short: "Enrich every document in a directory into JSONL chunk files",
		Long: `Enrich every supported document (PDF, DOCX, Markdown, HTML, text) found
directly in the input directory. One <stem>.jsonl file, and optionally a
<stem>.md rendering, is written per document.

Example:
  legichunk enrich codes/ --out output/
  legichunk enrich codes/ --index --jobs 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, comps, log, err := setup(cmd)
			if err != nil {
				return err
			}
			defer comps.Close()

			outDir, _ := cmd.Flags().GetString("out")
			jobs, _ := cmd.Flags().GetInt("jobs")
			index, _ := cmd.Flags().GetBool("index")
			markdown, _ := cmd.Flags().GetBool("markdown")
			if outDir == "" {
				outDir = cfg.OutputDir
			}
			chunking := cfg.Chunking()
			if cmd.Flags().Changed("chunk-size") {
				chunking.ChunkSize, _ = cmd.Flags().GetInt("chunk-size")
			}
			if cmd.Flags().Changed("overlap") {
				chunking.ChunkOverlap, _ = cmd.Flags().GetInt("overlap")
			}
			if err := chunking.Validate(); err != nil {
				return err
			}

			var indexer *pipeline.Indexer
			if index {
				if comps.Indexer == nil {
					return fmt.Errorf("--index needs EMBED_URL and QDRANT_ADDR")
				}
				indexer = comps.Indexer
			}

			files, err := documentFiles(args[0])
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no supported documents in %s", args[0])
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}

			worker := pipeline.NewWorker(comps.Enricher, indexer, log, pipeline.WorkerOptions{
				Chunking:      chunking,
				OutputDir:     outDir,
				WriteMarkdown: markdown,
				PDFFallback:   cfg.PDFFallbackPdftotext,
			})

			snaps := make([]pipeline.JobSnapshot, len(files))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(max(jobs, 1))
			for i, path := range files {
				g.Go(func() error {
					data, err := os.ReadFile(path)
					if err != nil {
						return fmt.Errorf("read %s: %w", path, err)
					}
					job := pipeline.NewJob(filepath.Base(path), data)
					worker.Process(ctx, job)
					snaps[i] = job.Snapshot()
					return ctx.Err()
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			failed := 0
			for _, s := range snaps {
				fmt.Printf("%-40s %-10s code=%q pages=%d articles=%d chunks=%d indexed=%d\n",
					s.Filename, s.Status, s.Code, s.Progress.Pages, s.Progress.Articles, s.Progress.TotalChunks, s.Progress.Indexed)
				for _, e := range s.Progress.Errors {
					fmt.Printf("  error: %s\n", e)
				}
				if s.Status == pipeline.StatusFailed {
					failed++
				}
			}

			report, err := validate.Dir(outDir)
			if err != nil {
				return err
			}
			fmt.Println()
			report.Summary(os.Stdout)
			if failed > 0 {
				return fmt.Errorf("%d of %d documents failed", failed, len(files))
			}
			return nil
		},
	}
	cmd.Flags().StringP("out", "o", "", "Output directory (defaults to OUTPUT_DIR)")
	cmd.Flags().IntP("jobs", "j", 4, "Documents processed concurrently")
	cmd.Flags().Bool("index", false, "Embed and index chunks after writing them")
	cmd.Flags().Bool("markdown", true, "Also write a Markdown rendering per document")
	cmd.Flags().Int("chunk-size", 0, "Maximum window size in characters (defaults to CHUNK_SIZE)")
	cmd.Flags().Int("overlap", 0, "Characters shared by consecutive windows (defaults to CHUNK_OVERLAP)")
	cmd.Flags().String("registry", "", "Code registry file (defaults to REGISTRY_FILE)")
	return cmd
}

// documentFiles lists supported documents directly under dir, sorted.
func documentFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !parser.IsSupportedExtension(e.Name()) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// chunkFiles resolves a JSONL file or every JSONL file in a directory.
func chunkFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	matches, err := filepath.Glob(filepath.Join(path, "*.jsonl"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

func injectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inject <jsonl-file-or-dir>",
		Short: "Embed and index previously written chunk files",
		Long: `Read JSONL chunk files and upsert them into the vector index. Point IDs
are derived from chunk identity, so re-injecting the same files replaces
points instead of duplicating them.

Example:
  legichunk inject output/`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, comps, _, err := setup(cmd)
			if err != nil {
				return err
			}
			defer comps.Close()
			if comps.Indexer == nil {
				return fmt.Errorf("inject needs EMBED_URL and QDRANT_ADDR")
			}

			files, err := chunkFiles(args[0])
			if err != nil {
				return err
			}
			total, failures := 0, 0
			for _, f := range files {
				chunks, err := output.ReadJSONLFile(f)
				if err != nil {
					return err
				}
				n, errs := comps.Indexer.Index(cmd.Context(), chunks, nil)
				total += n
				failures += len(errs)
				fmt.Printf("%-40s %d/%d chunks indexed\n", filepath.Base(f), n, len(chunks))
			}
			fmt.Printf("\n%d chunks indexed into %s\n", total, comps.Store.Collection())
			if failures > 0 {
				return fmt.Errorf("%d batches failed", failures)
			}
			return nil
		},
	}
	cmd.Flags().String("registry", "", "Code registry file (defaults to REGISTRY_FILE)")
	return cmd
}

func searchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index and print cited results",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, comps, _, err := setup(cmd)
			if err != nil {
				return err
			}
			defer comps.Close()
			if comps.Retriever == nil {
				return fmt.Errorf("search needs EMBED_URL and QDRANT_ADDR")
			}

			k, _ := cmd.Flags().GetInt("top")
			codes, _ := cmd.Flags().GetStringSlice("code")
			threshold, _ := cmd.Flags().GetFloat32("threshold")
			showContext, _ := cmd.Flags().GetBool("context")

			results, err := comps.Retriever.Search(cmd.Context(), retrieve.Query{
				Text:           strings.Join(args, " "),
				K:              k,
				Codes:          codes,
				ScoreThreshold: threshold,
			})
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Println("No results.")
				return nil
			}
			if showContext {
				fmt.Println(retrieve.ContextBlock(results))
				return nil
			}
			for i, r := range results {
				fmt.Printf("%d. [%.3f] %s\n", i+1, r.Score, r.Citation())
				if len(r.Chunk.HierarchyPath) > 0 {
					fmt.Printf("   %s\n", strings.Join(r.Chunk.HierarchyPath, " > "))
				}
				fmt.Printf("   %s\n\n", excerpt(r.Chunk.RawContent, 200))
			}
			return nil
		},
	}
	cmd.Flags().IntP("top", "k", 0, "Number of results (defaults to RAG_TOP_K)")
	cmd.Flags().StringSlice("code", nil, "Restrict to these codes by display name")
	cmd.Flags().Float32("threshold", 0, "Minimum similarity score")
	cmd.Flags().Bool("context", false, "Print the joined model context instead of a result list")
	cmd.Flags().String("registry", "", "Code registry file (defaults to REGISTRY_FILE)")
	return cmd
}

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <dir>",
		Short: "Report coverage and data-quality issues in chunk files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			strict, _ := cmd.Flags().GetBool("strict")

			report, err := validate.Dir(args[0])
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				enc.SetEscapeHTML(false)
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else {
				report.Summary(os.Stdout)
			}
			if strict && len(report.Issues) > 0 {
				return fmt.Errorf("%d issues found", len(report.Issues))
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "Print the report as JSON")
	cmd.Flags().Bool("strict", false, "Exit non-zero when any issue is reported")
	return cmd
}

func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
