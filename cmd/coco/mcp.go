package main

import (
	"github.com/spf13/cobra"

	"github.com/VioletCranberry/coco-search/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve indexing and search tools over MCP on stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := newLogger(cfg)

		// Logs go to stderr; stdout carries the MCP protocol.
		log.Info().
			Str("version", version).
			Str("db", cfg.DBPath).
			Msg("starting MCP server on stdio")

		srv, err := mcpserver.NewServer(cfg, log)
		if err != nil {
			return err
		}
		return srv.Serve(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
