package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var indexesCmd = &cobra.Command{
	Use:   "indexes",
	Short: "List all indexes in the database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openPipeline()
		if err != nil {
			return err
		}
		defer p.Close()

		indexes, err := p.store.ListIndexes(cmd.Context())
		if err != nil {
			return err
		}
		if len(indexes) == 0 {
			fmt.Println("No indexes")
			return nil
		}
		for _, idx := range indexes {
			fmt.Printf("%-20s %s (%s/%s, %dd)", idx.Name, idx.RootPath, idx.Provider, idx.Model, idx.Dimension)
			if !idx.LastIndexedAt.IsZero() {
				fmt.Printf("  last indexed %s", idx.LastIndexedAt.Format(time.RFC3339))
			}
			fmt.Println()
		}
		return nil
	},
}

var dropCmd = &cobra.Command{
	Use:   "drop <index>",
	Short: "Delete an index and all of its files, chunks, and embeddings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openPipeline()
		if err != nil {
			return err
		}
		defer p.Close()

		if err := p.store.DeleteIndex(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Dropped index %q\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(indexesCmd)
	rootCmd.AddCommand(dropCmd)
}
