// Package mcpserver exposes indexing and search over the Model
// Context Protocol on stdio, so editor agents can index a tree and
// query it without a separate daemon.
package mcpserver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/VioletCranberry/coco-search/internal/chunker"
	"github.com/VioletCranberry/coco-search/internal/config"
	"github.com/VioletCranberry/coco-search/internal/embedder"
	"github.com/VioletCranberry/coco-search/internal/expander"
	"github.com/VioletCranberry/coco-search/internal/indexer"
	"github.com/VioletCranberry/coco-search/internal/lang"
	"github.com/VioletCranberry/coco-search/internal/searcher"
	"github.com/VioletCranberry/coco-search/internal/storage"
)

const (
	// ServerName is the MCP server identity.
	ServerName = "coco-search"
	// ServerVersion is the protocol-visible version.
	ServerVersion = "1.0.0"
)

// Server wires the pipeline behind MCP tool handlers.
type Server struct {
	mcp      *server.MCPServer
	cfg      *config.Config
	store    storage.Storage
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
	log      zerolog.Logger
}

// NewServer builds the full pipeline from configuration.
func NewServer(cfg *config.Config, log zerolog.Logger) (*Server, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	store, err := storage.NewSQLiteStorage(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("initialize storage: %w", err)
	}

	emb, err := embedder.New(embedder.Config{
		Provider:  cfg.Embedding.Provider,
		APIKey:    cfg.Embedding.APIKey,
		CacheSize: cfg.Embedding.CacheSize,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("initialize embedder: %w", err)
	}

	registry := lang.Default()
	idx := indexer.New(registry, emb, store, indexer.Config{
		Workers: cfg.Indexing.Workers,
		ChunkConfig: chunker.Config{
			MaxLines:     cfg.Chunking.MaxLines,
			WindowLines:  cfg.Chunking.WindowLines,
			OverlapLines: cfg.Chunking.OverlapLines,
			Depth:        cfg.Chunking.Depth,
		},
		ErrThreshold: cfg.Indexing.ErrorThreshold,
	}, log)
	exp := expander.New(registry, log)
	srch := searcher.New(store, emb, registry, exp, log)

	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion),
		cfg:      cfg,
		store:    store,
		indexer:  idx,
		searcher: srch,
		log:      log.With().Str("component", "mcp").Logger(),
	}
	s.registerTools()
	return s, nil
}

// Serve runs the server on stdio until the client disconnects.
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.store.Close() }()
	s.log.Info().Str("db", s.cfg.DBPath).Msg("serving MCP on stdio")
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(indexTreeTool(), s.handleIndexTree)
	s.mcp.AddTool(searchCodeTool(), s.handleSearchCode)
	s.mcp.AddTool(indexStatsTool(), s.handleIndexStats)
}
