package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/VioletCranberry/coco-search/internal/storage"
)

var flagMigrateDown bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations, or roll back the newest one",
	Long: "Opening the database applies pending migrations. With --down the\n" +
		"most recent migration is rolled back afterwards, for downgrading\n" +
		"the database before running an older binary.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return fmt.Errorf("create database directory: %w", err)
		}
		store, err := storage.NewSQLiteStorage(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer func() { _ = store.Close() }()

		if flagMigrateDown {
			if err := store.RollbackSchema(cmd.Context()); err != nil {
				return err
			}
		}
		version, err := store.SchemaVersion(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Schema version %s\n", version)
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&flagMigrateDown, "down", false, "roll back the most recent migration")
	rootCmd.AddCommand(migrateCmd)
}
