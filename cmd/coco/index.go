package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/VioletCranberry/coco-search/internal/indexer"
)

var (
	flagIndexName  string
	flagForce      bool
	flagLanguages  []string
	flagNoEmbed    bool
	flagNoProgress bool
)

var indexCmd = &cobra.Command{
	Use:   "index <path>",
	Short: "Index a source tree for search",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}

		p, err := openPipeline()
		if err != nil {
			return err
		}
		defer p.Close()

		opts := indexer.SubmitOptions{
			IndexName:     flagIndexName,
			Root:          root,
			Languages:     flagLanguages,
			Force:         flagForce,
			SkipEmbedding: flagNoEmbed,
		}
		bar := newProgressBar(flagNoProgress)
		if bar != nil {
			opts.Progress = func(done, total int) {
				bar.ChangeMax(total)
				_ = bar.Set(done)
			}
		}

		fmt.Printf("Indexing %s into %q...\n", root, flagIndexName)
		report, err := p.indexer.Submit(cmd.Context(), opts)
		if bar != nil {
			_ = bar.Finish()
		}
		if report != nil {
			printReport(report)
		}
		return err
	},
}

func newProgressBar(disabled bool) *progressbar.ProgressBar {
	if disabled || !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}
	return progressbar.NewOptions(0,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("indexing"),
		progressbar.OptionSetWidth(32),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func printReport(r *indexer.Report) {
	fmt.Printf("\nDone in %s\n", r.Duration.Round(time.Millisecond))
	fmt.Printf("  Files:   %d seen, %d indexed, %d skipped, %d failed, %d purged\n",
		r.FilesSeen, r.FilesIndexed, r.FilesSkipped, r.FilesFailed, r.FilesPurged)
	fmt.Printf("  Symbols: %d\n", r.SymbolsFound)
	fmt.Printf("  Chunks:  %d created, %d embedded\n", r.ChunksCreated, r.ChunksEmbedded)
	if r.EmbedFailures > 0 {
		fmt.Printf("  Embedding failed for %d files; run 'coco retry' to backfill\n", r.EmbedFailures)
	}
	for _, msg := range r.Errors {
		fmt.Fprintf(os.Stderr, "  error: %s\n", msg)
	}
}

func init() {
	indexCmd.Flags().StringVar(&flagIndexName, "index", "default", "index name")
	indexCmd.Flags().BoolVar(&flagForce, "force", false, "reindex files even when unchanged")
	indexCmd.Flags().StringSliceVar(&flagLanguages, "languages", nil, "restrict to these languages (e.g. go,python)")
	indexCmd.Flags().BoolVar(&flagNoEmbed, "no-embed", false, "skip embedding, index lexically only")
	indexCmd.Flags().BoolVar(&flagNoProgress, "no-progress", false, "disable the progress bar")
	rootCmd.AddCommand(indexCmd)
}
