// Package storage persists indexes, the per-file ledger, chunks, and
// embeddings in SQLite, and serves the vector and lexical retrieval
// legs. All per-file mutation goes through ReplaceFileChunks so a
// file's chunks are always replaced atomically.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/VioletCranberry/coco-search/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned on duplicate creation.
	ErrAlreadyExists = errors.New("already exists")
	// ErrDimensionMismatch is returned when a vector's length differs
	// from the index's recorded embedding dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Storage is the persistence interface for indexed code.
type Storage interface {
	// Index operations.
	CreateIndex(ctx context.Context, idx *Index) error
	GetIndex(ctx context.Context, name string) (*Index, error)
	GetIndexByID(ctx context.Context, indexID int64) (*Index, error)
	UpdateIndex(ctx context.Context, idx *Index) error
	ListIndexes(ctx context.Context) ([]*Index, error)
	DeleteIndex(ctx context.Context, name string) error

	// Ledger operations. The files table doubles as the staleness
	// ledger: every submitted file has a row recording its content
	// hash, timestamps, and failure state.
	GetFile(ctx context.Context, indexID int64, path string) (*FileRecord, error)
	GetFileByID(ctx context.Context, fileID int64) (*FileRecord, error)
	ListFiles(ctx context.Context, indexID int64) ([]*FileRecord, error)
	ListFilePaths(ctx context.Context, indexID int64) ([]string, error)
	DeleteFile(ctx context.Context, indexID int64, path string) error

	// ReplaceFileChunks atomically upserts the ledger row, deletes the
	// file's previous chunks, and inserts the new chunks with their
	// embeddings. embeddings is positional with chunks; nil entries
	// mean the chunk has no vector yet.
	ReplaceFileChunks(ctx context.Context, file *FileRecord, chunks []*ChunkRecord, embeddings []*EmbeddingRecord) error

	// Chunk operations.
	GetChunk(ctx context.Context, chunkID int64) (*ChunkRecord, error)
	GetChunks(ctx context.Context, chunkIDs []int64) (map[int64]*ChunkRecord, error)
	ListChunksByFile(ctx context.Context, fileID int64) ([]*ChunkRecord, error)

	// Embedding operations.
	UpsertEmbedding(ctx context.Context, emb *EmbeddingRecord) error
	ListChunksMissingEmbeddings(ctx context.Context, indexID int64, limit int) ([]*ChunkRecord, error)
	MarkEmbedPending(ctx context.Context, fileID int64, pending bool) error

	// Retrieval legs.
	SearchVector(ctx context.Context, indexID int64, vector []float32, limit int, filters *SearchFilters) ([]VectorResult, error)
	SearchText(ctx context.Context, indexID int64, query string, limit int, filters *SearchFilters) ([]TextResult, error)

	// Stats reports aggregate counts for an index.
	Stats(ctx context.Context, indexID int64) (*IndexStats, error)

	Close() error
}

// Index is a named corpus of files sharing one embedding space. The
// dimension is fixed at creation; vectors of any other length are
// rejected rather than silently mixed.
type Index struct {
	ID            int64
	Name          string
	RootPath      string
	Provider      string
	Model         string
	Dimension     int
	LastIndexedAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// FileRecord is one ledger row: a tracked file and its index status.
type FileRecord struct {
	ID          int64
	IndexID     int64
	Path        string
	Language    string
	ContentHash [32]byte
	SizeBytes   int64
	ModTime     time.Time
	SymbolCount int
	ChunkCount  int

	// ParseFailed marks files indexed through the line-window fallback
	// because symbol extraction failed; ParseError keeps the reason.
	ParseFailed bool
	ParseError  string

	// EmbedPending marks files whose chunks are searchable lexically
	// but still waiting for vectors after an embedding failure.
	EmbedPending bool

	IndexedAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChunkRecord is a persisted chunk with denormalized symbol metadata.
type ChunkRecord struct {
	ID          int64
	FileID      int64
	Content     string
	ContentHash [32]byte
	Language    string

	StartLine int
	EndLine   int
	StartByte int
	EndByte   int

	// Symbol metadata, empty for unsymboled chunks. SymbolStartLine
	// and SymbolEndLine carry the parent symbol's full extent for
	// sub-chunks of oversized symbols.
	SymbolName      string
	SymbolKind      string
	SymbolSignature string
	HierarchyPath   string
	SymbolStartLine int
	SymbolEndLine   int

	CreatedAt time.Time
}

// Span returns the chunk's position as a types.Span.
func (c *ChunkRecord) Span() types.Span {
	return types.Span{
		StartLine: c.StartLine,
		EndLine:   c.EndLine,
		StartByte: c.StartByte,
		EndByte:   c.EndByte,
	}
}

// SymbolSpan returns the owning symbol's line extent, or the chunk's
// own span when the chunk is not symbol-aligned.
func (c *ChunkRecord) SymbolSpan() types.Span {
	if c.SymbolName == "" || c.SymbolStartLine == 0 {
		return c.Span()
	}
	return types.Span{StartLine: c.SymbolStartLine, EndLine: c.SymbolEndLine}
}

// EmbeddingRecord is a persisted vector for one chunk.
type EmbeddingRecord struct {
	ID        int64
	ChunkID   int64
	Vector    []byte
	Dimension int
	Provider  string
	Model     string
	CreatedAt time.Time
}

// SearchFilters narrow both retrieval legs. They are applied in SQL
// before ranking, so filtered-out chunks never consume rank positions.
type SearchFilters struct {
	Languages   []string
	SymbolKinds []string
	PathGlob    string
	SymbolGlob  string
}

// Empty reports whether no filter is set.
func (f *SearchFilters) Empty() bool {
	return f == nil ||
		(len(f.Languages) == 0 && len(f.SymbolKinds) == 0 &&
			f.PathGlob == "" && f.SymbolGlob == "")
}

// VectorResult is one hit from the vector leg.
type VectorResult struct {
	ChunkID         int64
	SimilarityScore float64
}

// TextResult is one hit from the lexical leg.
type TextResult struct {
	ChunkID   int64
	BM25Score float64
}

// LanguageStats is the per-language slice of an index's stats.
type LanguageStats struct {
	Language   string
	FileCount  int
	ChunkCount int
}

// IndexStats aggregates ledger and chunk counts for one index.
type IndexStats struct {
	FileCount       int
	SymbolCount     int
	ChunkCount      int
	EmbeddingCount  int
	ParseFailures   int
	EmbedPending    int
	Languages       []LanguageStats
	OldestIndexedAt time.Time
	NewestIndexedAt time.Time
}
