package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/VioletCranberry/coco-search/internal/indexer"
)

var (
	flagWatchIndex string
	flagWatchLangs []string
)

var watchCmd = &cobra.Command{
	Use:   "watch <path>",
	Short: "Watch a tree and keep its index current",
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

		// Bring the index up to date before watching.
		report, err := p.indexer.Submit(cmd.Context(), indexer.SubmitOptions{
			IndexName: flagWatchIndex,
			Root:      root,
			Languages: flagWatchLangs,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Indexed %d files, watching %s (ctrl-c to stop)\n", report.FilesIndexed, root)

		return p.indexer.Watch(cmd.Context(), indexer.WatchOptions{
			Submit: indexer.SubmitOptions{
				IndexName: flagWatchIndex,
				Root:      root,
				Languages: flagWatchLangs,
			},
			Debounce: p.cfg.Indexing.WatchDebounce,
		})
	},
}

func init() {
	watchCmd.Flags().StringVar(&flagWatchIndex, "index", "default", "index name")
	watchCmd.Flags().StringSliceVar(&flagWatchLangs, "languages", nil, "restrict to these languages")
	rootCmd.AddCommand(watchCmd)
}
