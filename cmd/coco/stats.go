package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	flagStatsIndex   string
	flagShowFailures bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index health and coverage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openPipeline()
		if err != nil {
			return err
		}
		defer p.Close()

		report, err := p.indexer.Stats(cmd.Context(), flagStatsIndex, flagShowFailures)
		if err != nil {
			return err
		}

		fmt.Printf("Index %q (%s)\n", report.IndexName, report.RootPath)
		fmt.Printf("  Embeddings: %s/%s (%d dimensions)\n",
			report.Provider, report.Model, report.Dimension)
		fmt.Printf("  Files:      %d\n", report.FileCount)
		fmt.Printf("  Symbols:    %d\n", report.SymbolCount)
		fmt.Printf("  Chunks:     %d (%d embedded)\n", report.ChunkCount, report.EmbeddingCount)
		fmt.Printf("  Parse health:   %.1f%%\n", report.ParseHealthRatio*100)
		fmt.Printf("  Embed coverage: %.1f%%\n", report.EmbedCoverage*100)
		if !report.LastIndexedAt.IsZero() {
			fmt.Printf("  Last indexed:   %s (oldest file %s ago)\n",
				report.LastIndexedAt.Format(time.RFC3339),
				report.StalenessAge.Round(time.Second))
		}
		if len(report.Languages) > 0 {
			fmt.Println("  Languages:")
			for _, l := range report.Languages {
				fmt.Printf("    %-12s %4d files, %5d chunks\n", l.Language, l.FileCount, l.ChunkCount)
			}
		}
		if flagShowFailures {
			if len(report.Failures) == 0 {
				fmt.Println("  No degraded files")
			} else {
				fmt.Printf("  Degraded files (%d):\n", len(report.Failures))
				for _, f := range report.Failures {
					state := "embed pending"
					if f.ParseError != "" {
						state = f.ParseError
					}
					fmt.Printf("    %s (%s): %s\n", f.Path, f.Language, state)
				}
			}
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().StringVar(&flagStatsIndex, "index", "default", "index name")
	statsCmd.Flags().BoolVar(&flagShowFailures, "failures", false, "list degraded files")
	rootCmd.AddCommand(statsCmd)
}
