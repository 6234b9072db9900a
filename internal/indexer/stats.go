package indexer

import (
	"context"
	"time"

	"github.com/VioletCranberry/coco-search/internal/storage"
)

// FileFailure describes one ledger row in a degraded state.
type FileFailure struct {
	Path         string
	Language     string
	ParseError   string
	EmbedPending bool
	IndexedAt    time.Time
}

// StatsReport is the answer to a stats request: aggregate counts, a
// per-language breakdown, and health signals derived from the ledger.
type StatsReport struct {
	IndexName      string
	RootPath       string
	Provider       string
	Model          string
	Dimension      int
	FileCount      int
	SymbolCount    int
	ChunkCount     int
	EmbeddingCount int
	Languages      []storage.LanguageStats

	// ParseHealthRatio is the fraction of files whose symbols were
	// extracted normally rather than through the fallback.
	ParseHealthRatio float64

	// EmbedCoverage is the fraction of chunks that have vectors.
	EmbedCoverage float64

	// StalenessAge is the age of the least recently indexed file.
	StalenessAge time.Duration

	LastIndexedAt time.Time

	// Failures lists degraded files; populated only when requested.
	Failures []FileFailure
}

// Stats summarizes the named index.
func (idx *Indexer) Stats(ctx context.Context, indexName string, includeFailures bool) (*StatsReport, error) {
	index, err := idx.store.GetIndex(ctx, indexName)
	if err != nil {
		return nil, err
	}
	stats, err := idx.store.Stats(ctx, index.ID)
	if err != nil {
		return nil, err
	}

	report := &StatsReport{
		IndexName:      index.Name,
		RootPath:       index.RootPath,
		Provider:       index.Provider,
		Model:          index.Model,
		Dimension:      index.Dimension,
		FileCount:      stats.FileCount,
		SymbolCount:    stats.SymbolCount,
		ChunkCount:     stats.ChunkCount,
		EmbeddingCount: stats.EmbeddingCount,
		Languages:      stats.Languages,
		LastIndexedAt:  index.LastIndexedAt,
	}
	if stats.FileCount > 0 {
		report.ParseHealthRatio = float64(stats.FileCount-stats.ParseFailures) / float64(stats.FileCount)
	}
	if stats.ChunkCount > 0 {
		report.EmbedCoverage = float64(stats.EmbeddingCount) / float64(stats.ChunkCount)
	}
	if !stats.OldestIndexedAt.IsZero() {
		report.StalenessAge = time.Since(stats.OldestIndexedAt)
	}

	if includeFailures {
		files, err := idx.store.ListFiles(ctx, index.ID)
		if err != nil {
			return nil, err
		}
		for _, file := range files {
			if !file.ParseFailed && !file.EmbedPending {
				continue
			}
			report.Failures = append(report.Failures, FileFailure{
				Path:         file.Path,
				Language:     file.Language,
				ParseError:   file.ParseError,
				EmbedPending: file.EmbedPending,
				IndexedAt:    file.IndexedAt,
			})
		}
	}
	return report, nil
}
