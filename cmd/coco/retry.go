package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var flagRetryIndex string

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Backfill embeddings for chunks that failed to embed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openPipeline()
		if err != nil {
			return err
		}
		defer p.Close()

		embedded, err := p.indexer.RetryPending(cmd.Context(), flagRetryIndex)
		if err != nil {
			return err
		}
		if embedded == 0 {
			fmt.Println("No pending embeddings")
		} else {
			fmt.Printf("Embedded %d pending chunks\n", embedded)
		}
		return nil
	},
}

func init() {
	retryCmd.Flags().StringVar(&flagRetryIndex, "index", "default", "index name")
	rootCmd.AddCommand(retryCmd)
}
