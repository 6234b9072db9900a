// Package indexer coordinates the indexing pipeline: discover files,
// parse them into symbols, chunk, embed, and persist. Each file is
// committed atomically through storage.ReplaceFileChunks; a crash
// mid-run leaves every file either fully indexed or untouched.
package indexer

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/VioletCranberry/coco-search/internal/chunker"
	"github.com/VioletCranberry/coco-search/internal/embedder"
	"github.com/VioletCranberry/coco-search/internal/lang"
	"github.com/VioletCranberry/coco-search/internal/parser"
	"github.com/VioletCranberry/coco-search/internal/storage"
	"github.com/VioletCranberry/coco-search/pkg/types"
)

// ErrEmbedderMismatch is returned when an existing index was built
// with a different embedding space than the configured embedder. The
// index must be dropped and rebuilt explicitly; vectors from different
// spaces are never mixed.
var ErrEmbedderMismatch = errors.New("index embedding space differs from configured embedder")

// Indexer runs the submit pipeline against one storage backend.
type Indexer struct {
	registry *lang.Registry
	parser   *parser.Parser
	chunker  *chunker.Chunker
	embedder embedder.Embedder
	store    storage.Storage
	log      zerolog.Logger
	workers  int
}

// Config tunes the indexer.
type Config struct {
	Workers      int
	ChunkConfig  chunker.Config
	ErrThreshold float64
}

// New creates an Indexer.
func New(registry *lang.Registry, emb embedder.Embedder, store storage.Storage, cfg Config, log zerolog.Logger) *Indexer {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	var parserOpts []parser.Option
	if cfg.ErrThreshold > 0 {
		parserOpts = append(parserOpts, parser.WithErrorRatioThreshold(cfg.ErrThreshold))
	}
	return &Indexer{
		registry: registry,
		parser:   parser.New(registry, parserOpts...),
		chunker:  chunker.New(cfg.ChunkConfig),
		embedder: emb,
		store:    store,
		log:      log.With().Str("component", "indexer").Logger(),
		workers:  cfg.Workers,
	}
}

// SubmitOptions controls one submit run.
type SubmitOptions struct {
	// IndexName names the target index; created on first submit.
	IndexName string

	// Root is the tree to index.
	Root string

	// Paths restricts the run to specific files relative to Root.
	// Empty means walk the whole tree; absent-file purging only runs
	// on full walks.
	Paths []string

	// Languages restricts discovery to these language ids.
	Languages []string

	// Force reindexes files even when their content hash is unchanged.
	Force bool

	// SkipEmbedding indexes lexically only, leaving files marked
	// embed-pending.
	SkipEmbedding bool

	// Progress, when set, is called after each file completes.
	Progress func(done, total int)
}

// Report summarizes one submit run.
type Report struct {
	FilesSeen      int
	FilesIndexed   int
	FilesSkipped   int
	FilesFailed    int
	FilesPurged    int
	SymbolsFound   int
	ChunksCreated  int
	ChunksEmbedded int
	EmbedFailures  int
	Duration       time.Duration
	Errors         []string
}

// Submit indexes the tree (or the given paths) into the named index.
// Per-file failures are recorded and skipped; only infrastructure
// failures abort the run.
func (idx *Indexer) Submit(ctx context.Context, opts SubmitOptions) (*Report, error) {
	start := time.Now()
	if opts.IndexName == "" {
		return nil, errors.New("index name is required")
	}

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	index, err := idx.getOrCreateIndex(ctx, opts.IndexName, root)
	if err != nil {
		return nil, err
	}

	fullWalk := len(opts.Paths) == 0
	files := opts.Paths
	if fullWalk {
		files, err = DiscoverFiles(root, idx.registry, DiscoverOptions{Languages: opts.Languages})
		if err != nil {
			return nil, err
		}
	}

	report := &Report{FilesSeen: len(files)}
	var indexed, skipped, failed int64
	var symbols, chunks, embedded int64
	var embedFailures, done int64
	var mu sync.Mutex
	addError := func(msg string) {
		mu.Lock()
		report.Errors = append(report.Errors, msg)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.workers)
	for _, relPath := range files {
		g.Go(func() error {
			result, err := idx.indexFile(gctx, index, root, relPath, opts)
			switch {
			case err != nil:
				atomic.AddInt64(&failed, 1)
				addError(fmt.Sprintf("%s: %v", relPath, err))
				idx.log.Warn().Err(err).Str("file", relPath).Msg("index file failed")
			case result.skipped:
				atomic.AddInt64(&skipped, 1)
			default:
				atomic.AddInt64(&indexed, 1)
				atomic.AddInt64(&symbols, int64(result.symbols))
				atomic.AddInt64(&chunks, int64(result.chunks))
				atomic.AddInt64(&embedded, int64(result.embedded))
				if result.embedFailed {
					atomic.AddInt64(&embedFailures, 1)
				}
			}
			if opts.Progress != nil {
				opts.Progress(int(atomic.AddInt64(&done, 1)), len(files))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if fullWalk {
		purged, err := idx.purgeAbsent(ctx, index.ID, files)
		if err != nil {
			return nil, err
		}
		report.FilesPurged = purged
	}

	index.LastIndexedAt = time.Now()
	if err := idx.store.UpdateIndex(ctx, index); err != nil {
		return nil, err
	}

	report.FilesIndexed = int(indexed)
	report.FilesSkipped = int(skipped)
	report.FilesFailed = int(failed)
	report.SymbolsFound = int(symbols)
	report.ChunksCreated = int(chunks)
	report.ChunksEmbedded = int(embedded)
	report.EmbedFailures = int(embedFailures)
	report.Duration = time.Since(start)

	idx.log.Info().
		Int("indexed", report.FilesIndexed).
		Int("skipped", report.FilesSkipped).
		Int("failed", report.FilesFailed).
		Int("purged", report.FilesPurged).
		Dur("duration", report.Duration).
		Msg("submit complete")
	return report, nil
}

// getOrCreateIndex loads the named index or creates it bound to the
// configured embedder's space. An existing index with a different
// provider, model, or dimension is rejected.
func (idx *Indexer) getOrCreateIndex(ctx context.Context, name, root string) (*storage.Index, error) {
	index, err := idx.store.GetIndex(ctx, name)
	if err == nil {
		if index.Dimension != idx.embedder.Dimension() ||
			index.Provider != idx.embedder.Provider() ||
			index.Model != idx.embedder.Model() {
			return nil, fmt.Errorf("%w: index has %s/%s dim %d, embedder is %s/%s dim %d",
				ErrEmbedderMismatch,
				index.Provider, index.Model, index.Dimension,
				idx.embedder.Provider(), idx.embedder.Model(), idx.embedder.Dimension())
		}
		return index, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	index = &storage.Index{
		Name:      name,
		RootPath:  root,
		Provider:  idx.embedder.Provider(),
		Model:     idx.embedder.Model(),
		Dimension: idx.embedder.Dimension(),
	}
	if err := idx.store.CreateIndex(ctx, index); err != nil {
		return nil, err
	}
	return index, nil
}

type fileResult struct {
	skipped     bool
	symbols     int
	chunks      int
	embedded    int
	embedFailed bool
}

// indexFile runs the parse-chunk-embed-store pipeline for one file.
func (idx *Indexer) indexFile(ctx context.Context, index *storage.Index, root, relPath string, opts SubmitOptions) (*fileResult, error) {
	absPath := filepath.Join(root, filepath.FromSlash(relPath))
	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}
	hash := sha256.Sum256(content)

	prev, err := idx.store.GetFile(ctx, index.ID, relPath)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if prev != nil && prev.ContentHash == hash && !prev.EmbedPending && !opts.Force {
		return &fileResult{skipped: true}, nil
	}

	spec := idx.registry.LookupPath(relPath)
	if spec == nil {
		return nil, lang.ErrUnknownLanguage
	}

	var symbols []types.Symbol
	parseFailed := false
	parseError := ""
	parsed, err := idx.parser.Parse(ctx, spec.ID, content)
	switch {
	case errors.Is(err, parser.ErrUnparsable):
		parseFailed = true
		parseError = fmt.Sprintf("error ratio %.2f exceeds threshold", parsed.ErrorRatio)
	case err != nil:
		parseFailed = true
		parseError = err.Error()
	default:
		symbols = parsed.Symbols
	}

	fileChunks := idx.chunker.Chunk(content, spec.ID, symbols)

	records := make([]*storage.ChunkRecord, len(fileChunks))
	for i := range fileChunks {
		records[i] = chunkToRecord(&fileChunks[i], spec.Separator)
	}

	embeddings, embedFailed, embedErr := idx.embedChunks(ctx, index, relPath, fileChunks, opts.SkipEmbedding)

	file := &storage.FileRecord{
		IndexID:      index.ID,
		Path:         relPath,
		Language:     spec.ID,
		ContentHash:  hash,
		SizeBytes:    info.Size(),
		ModTime:      info.ModTime(),
		SymbolCount:  len(symbols),
		ChunkCount:   len(records),
		ParseFailed:  parseFailed,
		ParseError:   parseError,
		EmbedPending: embedFailed,
	}
	if err := idx.store.ReplaceFileChunks(ctx, file, records, embeddings); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	embedded := 0
	for _, emb := range embeddings {
		if emb != nil {
			embedded++
		}
	}
	if embedFailed {
		idx.log.Warn().Err(embedErr).Str("file", relPath).
			Msg("embedding failed, file indexed lexically only")
	}
	return &fileResult{
		symbols:     len(symbols),
		chunks:      len(records),
		embedded:    embedded,
		embedFailed: embedFailed,
	}, nil
}

// embedText prefixes chunk text with the file path and symbol
// signature so the vector carries placement context. The header is
// part of the text the embedder hashes and caches.
func embedText(path, signature, text string) string {
	header := path
	if signature != "" {
		header += "\n" + signature
	}
	return header + "\n" + text
}

// embedChunks embeds chunk texts in batches. Failure is non-fatal: the
// file stays searchable through the lexical leg and is marked
// embed-pending for a later retry.
func (idx *Indexer) embedChunks(ctx context.Context, index *storage.Index, relPath string, chunks []types.Chunk, skip bool) ([]*storage.EmbeddingRecord, bool, error) {
	embeddings := make([]*storage.EmbeddingRecord, len(chunks))
	if skip || len(chunks) == 0 {
		return embeddings, skip && len(chunks) > 0, nil
	}

	for start := 0; start < len(chunks); start += embedder.DefaultBatchSize {
		end := start + embedder.DefaultBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, end-start)
		for i := start; i < end; i++ {
			signature := ""
			if chunks[i].Symbol != nil {
				signature = chunks[i].Symbol.Signature
			}
			texts[i-start] = embedText(relPath, signature, chunks[i].Text)
		}

		batch, err := idx.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return make([]*storage.EmbeddingRecord, len(chunks)), true, err
		}
		for i, emb := range batch {
			if emb.Dimension != index.Dimension {
				return make([]*storage.EmbeddingRecord, len(chunks)), true,
					fmt.Errorf("%w: got dimension %d, index has %d",
						storage.ErrDimensionMismatch, emb.Dimension, index.Dimension)
			}
			embeddings[start+i] = &storage.EmbeddingRecord{
				Vector:    storage.SerializeVector(emb.Vector),
				Dimension: emb.Dimension,
				Provider:  emb.Provider,
				Model:     emb.Model,
			}
		}
	}
	return embeddings, false, nil
}

// purgeAbsent deletes ledger rows for files no longer present in the
// walked tree.
func (idx *Indexer) purgeAbsent(ctx context.Context, indexID int64, seen []string) (int, error) {
	present := make(map[string]bool, len(seen))
	for _, path := range seen {
		present[path] = true
	}

	paths, err := idx.store.ListFilePaths(ctx, indexID)
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, path := range paths {
		if present[path] {
			continue
		}
		if err := idx.store.DeleteFile(ctx, indexID, path); err != nil {
			return purged, fmt.Errorf("purge %s: %w", path, err)
		}
		purged++
		idx.log.Debug().Str("file", path).Msg("purged absent file")
	}
	return purged, nil
}

// RetryPending embeds chunks that are still missing vectors and clears
// the embed-pending flags of files that are now fully embedded.
func (idx *Indexer) RetryPending(ctx context.Context, indexName string) (int, error) {
	index, err := idx.store.GetIndex(ctx, indexName)
	if err != nil {
		return 0, err
	}

	total := 0
	touched := make(map[int64]bool)
	paths := make(map[int64]string)
	for {
		chunks, err := idx.store.ListChunksMissingEmbeddings(ctx, index.ID, embedder.DefaultBatchSize)
		if err != nil {
			return total, err
		}
		if len(chunks) == 0 {
			break
		}

		texts := make([]string, len(chunks))
		for i, chunk := range chunks {
			path, ok := paths[chunk.FileID]
			if !ok {
				file, err := idx.store.GetFileByID(ctx, chunk.FileID)
				if err != nil {
					return total, err
				}
				path = file.Path
				paths[chunk.FileID] = path
			}
			texts[i] = embedText(path, chunk.SymbolSignature, chunk.Content)
		}
		batch, err := idx.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return total, fmt.Errorf("retry embedding: %w", err)
		}

		for i, emb := range batch {
			if emb.Dimension != index.Dimension {
				return total, fmt.Errorf("%w: got dimension %d, index has %d",
					storage.ErrDimensionMismatch, emb.Dimension, index.Dimension)
			}
			err := idx.store.UpsertEmbedding(ctx, &storage.EmbeddingRecord{
				ChunkID:   chunks[i].ID,
				Vector:    storage.SerializeVector(emb.Vector),
				Dimension: emb.Dimension,
				Provider:  emb.Provider,
				Model:     emb.Model,
			})
			if err != nil {
				return total, err
			}
			touched[chunks[i].FileID] = true
			total++
		}
	}

	// The drain loop only exits once no chunk lacks a vector, so every
	// touched file is now fully embedded.
	for fileID := range touched {
		if err := idx.store.MarkEmbedPending(ctx, fileID, false); err != nil {
			return total, err
		}
	}
	return total, nil
}

// chunkToRecord flattens a chunk and its symbol metadata into a
// storage row.
func chunkToRecord(chunk *types.Chunk, separator string) *storage.ChunkRecord {
	record := &storage.ChunkRecord{
		Content:     chunk.Text,
		ContentHash: chunk.ContentHash,
		Language:    chunk.Language,
		StartLine:   chunk.Span.StartLine,
		EndLine:     chunk.Span.EndLine,
		StartByte:   chunk.Span.StartByte,
		EndByte:     chunk.Span.EndByte,
	}
	if chunk.Symbol != nil {
		record.SymbolName = chunk.Symbol.Name
		record.SymbolKind = string(chunk.Symbol.Kind)
		record.SymbolSignature = chunk.Symbol.Signature
		record.HierarchyPath = types.QualifyName(chunk.Symbol.Hierarchy, separator)
		record.SymbolStartLine = chunk.Symbol.Span.StartLine
		record.SymbolEndLine = chunk.Symbol.Span.EndLine
		if chunk.SymbolSpan != nil {
			record.SymbolStartLine = chunk.SymbolSpan.StartLine
			record.SymbolEndLine = chunk.SymbolSpan.EndLine
		}
	}
	return record
}
