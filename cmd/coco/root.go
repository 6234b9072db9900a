package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/VioletCranberry/coco-search/internal/chunker"
	"github.com/VioletCranberry/coco-search/internal/config"
	"github.com/VioletCranberry/coco-search/internal/embedder"
	"github.com/VioletCranberry/coco-search/internal/expander"
	"github.com/VioletCranberry/coco-search/internal/indexer"
	"github.com/VioletCranberry/coco-search/internal/lang"
	"github.com/VioletCranberry/coco-search/internal/searcher"
	"github.com/VioletCranberry/coco-search/internal/storage"
)

var (
	flagConfig   string
	flagDB       string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:           "coco",
	Short:         "Code indexing and hybrid retrieval over a local SQLite index",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default ~/.coco/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default ~/.coco/coco.db)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"coco %s (built %s, %s driver %s)\n",
		version, buildTime, storage.BuildMode, storage.DriverName,
	))
}

// loadConfig resolves configuration with flags taking precedence over
// environment variables and the config file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagDB != "" {
		cfg.DBPath = flagDB
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger writes human-readable logs to stderr so stdout stays free
// for command output and the MCP protocol.
func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

// pipeline bundles the components every subcommand needs.
type pipeline struct {
	cfg      *config.Config
	log      zerolog.Logger
	store    storage.Storage
	embedder embedder.Embedder
	registry *lang.Registry
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
}

func openPipeline() (*pipeline, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := newLogger(cfg)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	store, err := storage.NewSQLiteStorage(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	emb, err := embedder.New(embedder.Config{
		Provider:  cfg.Embedding.Provider,
		APIKey:    cfg.Embedding.APIKey,
		CacheSize: cfg.Embedding.CacheSize,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	registry := lang.Default()
	idx := indexer.New(registry, emb, store, indexer.Config{
		Workers:      cfg.Indexing.Workers,
		ChunkConfig:  chunkConfig(cfg),
		ErrThreshold: cfg.Indexing.ErrorThreshold,
	}, log)
	exp := expander.New(registry, log)
	srch := searcher.New(store, emb, registry, exp, log)

	return &pipeline{
		cfg:      cfg,
		log:      log,
		store:    store,
		embedder: emb,
		registry: registry,
		indexer:  idx,
		searcher: srch,
	}, nil
}

func chunkConfig(cfg *config.Config) chunker.Config {
	return chunker.Config{
		MaxLines:     cfg.Chunking.MaxLines,
		WindowLines:  cfg.Chunking.WindowLines,
		OverlapLines: cfg.Chunking.OverlapLines,
		Depth:        cfg.Chunking.Depth,
	}
}

func (p *pipeline) Close() {
	p.embedder.Close()
	if err := p.store.Close(); err != nil {
		p.log.Warn().Err(err).Msg("closing database")
	}
}
