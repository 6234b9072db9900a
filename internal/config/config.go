// Package config loads settings from defaults, an optional YAML file,
// and COCO_-prefixed environment variables, in that order of
// precedence (environment wins).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g.
// COCO_DB_PATH, COCO_EMBEDDING_PROVIDER.
const EnvPrefix = "coco"

// Config is the full runtime configuration.
type Config struct {
	// DBPath locates the SQLite database file.
	DBPath string `yaml:"db_path" envconfig:"DB_PATH"`

	// LogLevel is a zerolog level name (trace, debug, info, warn,
	// error).
	LogLevel string `yaml:"log_level" envconfig:"LOG_LEVEL"`

	Indexing  IndexingConfig  `yaml:"indexing"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Search    SearchConfig    `yaml:"search"`
}

// IndexingConfig tunes the submit pipeline.
type IndexingConfig struct {
	Workers        int           `yaml:"workers" envconfig:"INDEXING_WORKERS"`
	ErrorThreshold float64       `yaml:"error_threshold" envconfig:"INDEXING_ERROR_THRESHOLD"`
	WatchDebounce  time.Duration `yaml:"watch_debounce" envconfig:"INDEXING_WATCH_DEBOUNCE"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider" envconfig:"EMBEDDING_PROVIDER"`
	APIKey    string `yaml:"api_key" envconfig:"EMBEDDING_API_KEY"`
	CacheSize int    `yaml:"cache_size" envconfig:"EMBEDDING_CACHE_SIZE"`
}

// ChunkingConfig tunes chunk boundaries.
type ChunkingConfig struct {
	MaxLines     int `yaml:"max_lines" envconfig:"CHUNKING_MAX_LINES"`
	WindowLines  int `yaml:"window_lines" envconfig:"CHUNKING_WINDOW_LINES"`
	OverlapLines int `yaml:"overlap_lines" envconfig:"CHUNKING_OVERLAP_LINES"`
	Depth        int `yaml:"depth" envconfig:"CHUNKING_DEPTH"`
}

// SearchConfig tunes retrieval.
type SearchConfig struct {
	RRFConstant    float64       `yaml:"rrf_constant" envconfig:"SEARCH_RRF_CONSTANT"`
	WideningFactor int           `yaml:"widening_factor" envconfig:"SEARCH_WIDENING_FACTOR"`
	Timeout        time.Duration `yaml:"timeout" envconfig:"SEARCH_TIMEOUT"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		DBPath:   DefaultDBPath(),
		LogLevel: "info",
		Indexing: IndexingConfig{
			Workers:        runtime.NumCPU(),
			ErrorThreshold: 0.5,
			WatchDebounce:  500 * time.Millisecond,
		},
		Embedding: EmbeddingConfig{
			Provider:  "local",
			CacheSize: 10000,
		},
		Chunking: ChunkingConfig{
			MaxLines:     120,
			WindowLines:  40,
			OverlapLines: 10,
			Depth:        0,
		},
		Search: SearchConfig{
			RRFConstant:    60,
			WideningFactor: 4,
			Timeout:        10 * time.Second,
		},
	}
}

// DefaultDBPath is where the database lives unless configured
// otherwise.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "coco.db"
	}
	return filepath.Join(home, ".coco", "coco.db")
}

// DefaultConfigPath is the config file consulted when none is given.
func DefaultConfigPath() string {
	return filepath.Join(filepath.Dir(DefaultDBPath()), "config.yaml")
}

// Load assembles configuration. path may be empty; a missing explicit
// file is an error, a missing default file is not.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if path == "" {
		path = DefaultConfigPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// No config file is fine; defaults and env apply.
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath()
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Chunking.OverlapLines >= c.Chunking.WindowLines {
		return fmt.Errorf("chunking overlap (%d) must be smaller than window (%d)",
			c.Chunking.OverlapLines, c.Chunking.WindowLines)
	}
	if c.Indexing.ErrorThreshold < 0 || c.Indexing.ErrorThreshold > 1 {
		return fmt.Errorf("error threshold %.2f outside [0, 1]", c.Indexing.ErrorThreshold)
	}
	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("rrf constant must be positive")
	}
	if c.Search.WideningFactor <= 0 {
		return fmt.Errorf("widening factor must be positive")
	}
	return nil
}
