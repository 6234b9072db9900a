package storage

import (
	"context"
	"crypto/sha256"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func createTestIndex(t *testing.T, store *SQLiteStorage) *Index {
	t.Helper()
	idx := &Index{
		Name:      "test",
		RootPath:  "/src/project",
		Provider:  "local",
		Model:     "local-deterministic",
		Dimension: 4,
	}
	require.NoError(t, store.CreateIndex(context.Background(), idx))
	return idx
}

func testFile(indexID int64, path string) *FileRecord {
	return &FileRecord{
		IndexID:     indexID,
		Path:        path,
		Language:    "go",
		ContentHash: sha256.Sum256([]byte(path)),
		SizeBytes:   100,
		ModTime:     time.Now(),
	}
}

func testChunk(content string, startLine, endLine int) *ChunkRecord {
	return &ChunkRecord{
		Content:     content,
		ContentHash: sha256.Sum256([]byte(content)),
		Language:    "go",
		StartLine:   startLine,
		EndLine:     endLine,
	}
}

func testEmbedding(vector []float32) *EmbeddingRecord {
	return &EmbeddingRecord{
		Vector:    SerializeVector(vector),
		Dimension: len(vector),
		Provider:  "local",
		Model:     "local-deterministic",
	}
}

func TestSchemaVersionAndRollback(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)

	require.NoError(t, store.RollbackSchema(ctx))
	version, err = store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0", version)

	// Nothing left to roll back.
	assert.Error(t, store.RollbackSchema(ctx))
}

func TestCreateIndex(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	idx := createTestIndex(t, store)
	assert.Greater(t, idx.ID, int64(0))

	// Names are unique.
	dup := &Index{Name: "test", RootPath: "/other", Provider: "local", Model: "m", Dimension: 4}
	assert.Error(t, store.CreateIndex(ctx, dup))
}

func TestGetIndex(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	idx := createTestIndex(t, store)

	got, err := store.GetIndex(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, idx.ID, got.ID)
	assert.Equal(t, "local", got.Provider)
	assert.Equal(t, 4, got.Dimension)

	_, err = store.GetIndex(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	byID, err := store.GetIndexByID(ctx, idx.ID)
	require.NoError(t, err)
	assert.Equal(t, "test", byID.Name)
}

func TestListAndDeleteIndexes(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	createTestIndex(t, store)

	other := &Index{Name: "other", RootPath: "/b", Provider: "local", Model: "m", Dimension: 4}
	require.NoError(t, store.CreateIndex(ctx, other))

	indexes, err := store.ListIndexes(ctx)
	require.NoError(t, err)
	assert.Len(t, indexes, 2)

	require.NoError(t, store.DeleteIndex(ctx, "other"))
	indexes, err = store.ListIndexes(ctx)
	require.NoError(t, err)
	assert.Len(t, indexes, 1)

	assert.ErrorIs(t, store.DeleteIndex(ctx, "other"), ErrNotFound)
}

func TestReplaceFileChunks(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	idx := createTestIndex(t, store)

	file := testFile(idx.ID, "main.go")
	chunks := []*ChunkRecord{
		testChunk("func main() {}", 1, 3),
		testChunk("func helper() {}", 5, 8),
	}
	embeddings := []*EmbeddingRecord{
		testEmbedding([]float32{1, 0, 0, 0}),
		testEmbedding([]float32{0, 1, 0, 0}),
	}

	require.NoError(t, store.ReplaceFileChunks(ctx, file, chunks, embeddings))
	assert.Greater(t, file.ID, int64(0))
	assert.Greater(t, chunks[0].ID, int64(0))

	stored, err := store.ListChunksByFile(ctx, file.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "func main() {}", stored[0].Content)
	assert.Equal(t, 1, stored[0].StartLine)
}

func TestReplaceFileChunksRollsBackOnFailure(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	idx := createTestIndex(t, store)

	file := testFile(idx.ID, "svc.go")
	old := []*ChunkRecord{
		testChunk("original alpha", 1, 2),
		testChunk("original beta", 4, 5),
	}
	require.NoError(t, store.ReplaceFileChunks(ctx, file, old, []*EmbeddingRecord{
		testEmbedding([]float32{1, 0, 0, 0}),
		testEmbedding([]float32{0, 1, 0, 0}),
	}))

	// The second embedding's blob disagrees with its dimension, so the
	// swap fails after the old rows were already deleted inside the
	// transaction.
	replacement := []*ChunkRecord{
		testChunk("replacement alpha", 1, 2),
		testChunk("replacement beta", 4, 5),
	}
	bad := []*EmbeddingRecord{
		testEmbedding([]float32{0, 0, 1, 0}),
		{Vector: SerializeVector([]float32{1, 0}), Dimension: 4, Provider: "local", Model: "local-deterministic"},
	}
	err := store.ReplaceFileChunks(ctx, testFile(idx.ID, "svc.go"), replacement, bad)
	require.ErrorIs(t, err, ErrDimensionMismatch)

	// The failed swap rolled back; the prior chunk set survives.
	stored, err := store.ListChunksByFile(ctx, file.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "original alpha", stored[0].Content)
	assert.Equal(t, "original beta", stored[1].Content)
}

func TestReplaceFileChunksIsAtomicSwap(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	idx := createTestIndex(t, store)

	file := testFile(idx.ID, "main.go")
	old := []*ChunkRecord{testChunk("old content", 1, 2)}
	require.NoError(t, store.ReplaceFileChunks(ctx, file, old, nil))
	oldID := old[0].ID

	// Re-submitting the same path replaces, never accumulates.
	replacement := []*ChunkRecord{
		testChunk("new content a", 1, 2),
		testChunk("new content b", 4, 6),
	}
	require.NoError(t, store.ReplaceFileChunks(ctx, testFile(idx.ID, "main.go"), replacement, nil))

	stored, err := store.ListChunksByFile(ctx, file.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "new content a", stored[0].Content)

	_, err = store.GetChunk(ctx, oldID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReplaceFileChunksNilEmbeddingSlots(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	idx := createTestIndex(t, store)

	file := testFile(idx.ID, "partial.go")
	file.EmbedPending = true
	chunks := []*ChunkRecord{
		testChunk("embedded chunk", 1, 2),
		testChunk("pending chunk", 4, 5),
	}
	embeddings := []*EmbeddingRecord{testEmbedding([]float32{1, 0, 0, 0}), nil}

	require.NoError(t, store.ReplaceFileChunks(ctx, file, chunks, embeddings))

	missing, err := store.ListChunksMissingEmbeddings(ctx, idx.ID, 10)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, "pending chunk", missing[0].Content)
}

func TestReplaceFileChunksLengthMismatch(t *testing.T) {
	store := setupTestDB(t)
	idx := createTestIndex(t, store)

	file := testFile(idx.ID, "bad.go")
	chunks := []*ChunkRecord{testChunk("a", 1, 1)}
	embeddings := []*EmbeddingRecord{nil, nil}

	err := store.ReplaceFileChunks(context.Background(), file, chunks, embeddings)
	assert.Error(t, err)
}

func TestDeleteFileCascades(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	idx := createTestIndex(t, store)

	file := testFile(idx.ID, "gone.go")
	chunks := []*ChunkRecord{testChunk("doomed", 1, 1)}
	embeddings := []*EmbeddingRecord{testEmbedding([]float32{1, 0, 0, 0})}
	require.NoError(t, store.ReplaceFileChunks(ctx, file, chunks, embeddings))

	require.NoError(t, store.DeleteFile(ctx, idx.ID, "gone.go"))

	_, err := store.GetFile(ctx, idx.ID, "gone.go")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetChunk(ctx, chunks[0].ID)
	assert.ErrorIs(t, err, ErrNotFound)

	stats, err := store.Stats(ctx, idx.ID)
	require.NoError(t, err)
	assert.Zero(t, stats.EmbeddingCount)
}

func TestGetFileRoundTrip(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	idx := createTestIndex(t, store)

	file := testFile(idx.ID, "pkg/util.go")
	file.SymbolCount = 3
	file.ChunkCount = 2
	file.ParseFailed = true
	file.ParseError = "error ratio 0.80 exceeds threshold"
	require.NoError(t, store.ReplaceFileChunks(ctx, file, nil, nil))

	got, err := store.GetFile(ctx, idx.ID, "pkg/util.go")
	require.NoError(t, err)
	assert.Equal(t, file.ContentHash, got.ContentHash)
	assert.Equal(t, 3, got.SymbolCount)
	assert.True(t, got.ParseFailed)
	assert.Equal(t, "error ratio 0.80 exceeds threshold", got.ParseError)
	assert.False(t, got.EmbedPending)

	byID, err := store.GetFileByID(ctx, got.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Path, byID.Path)
}

func TestListFilePaths(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	idx := createTestIndex(t, store)

	for _, path := range []string{"b.go", "a.go", "c.go"} {
		require.NoError(t, store.ReplaceFileChunks(ctx, testFile(idx.ID, path), nil, nil))
	}

	paths, err := store.ListFilePaths(ctx, idx.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go", "b.go", "c.go"}, paths)
}

func TestMarkEmbedPending(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	idx := createTestIndex(t, store)

	file := testFile(idx.ID, "f.go")
	file.EmbedPending = true
	require.NoError(t, store.ReplaceFileChunks(ctx, file, nil, nil))

	require.NoError(t, store.MarkEmbedPending(ctx, file.ID, false))
	got, err := store.GetFileByID(ctx, file.ID)
	require.NoError(t, err)
	assert.False(t, got.EmbedPending)

	assert.ErrorIs(t, store.MarkEmbedPending(ctx, 9999, true), ErrNotFound)
}

func TestGetChunksBatch(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	idx := createTestIndex(t, store)

	file := testFile(idx.ID, "batch.go")
	chunks := []*ChunkRecord{
		testChunk("one", 1, 1),
		testChunk("two", 3, 3),
		testChunk("three", 5, 5),
	}
	require.NoError(t, store.ReplaceFileChunks(ctx, file, chunks, nil))

	got, err := store.GetChunks(ctx, []int64{chunks[0].ID, chunks[2].ID})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "one", got[chunks[0].ID].Content)
	assert.Equal(t, "three", got[chunks[2].ID].Content)

	empty, err := store.GetChunks(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestChunkSymbolMetadata(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	idx := createTestIndex(t, store)

	file := testFile(idx.ID, "sym.go")
	chunk := testChunk("func (s *Server) Run() error {", 10, 49)
	chunk.SymbolName = "Run"
	chunk.SymbolKind = "method"
	chunk.SymbolSignature = "func (s *Server) Run() error {"
	chunk.HierarchyPath = "Server.Run"
	chunk.SymbolStartLine = 10
	chunk.SymbolEndLine = 140
	require.NoError(t, store.ReplaceFileChunks(ctx, file, []*ChunkRecord{chunk}, nil))

	got, err := store.GetChunk(ctx, chunk.ID)
	require.NoError(t, err)
	assert.Equal(t, "Run", got.SymbolName)
	assert.Equal(t, "Server.Run", got.HierarchyPath)

	span := got.SymbolSpan()
	assert.Equal(t, 10, span.StartLine)
	assert.Equal(t, 140, span.EndLine)

	// Unsymboled chunks fall back to their own span.
	plain := testChunk("package main", 1, 1)
	require.NoError(t, store.ReplaceFileChunks(ctx, testFile(idx.ID, "plain.go"), []*ChunkRecord{plain}, nil))
	got, err = store.GetChunk(ctx, plain.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SymbolSpan().StartLine)
	assert.Equal(t, 1, got.SymbolSpan().EndLine)
}

func TestStats(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	idx := createTestIndex(t, store)

	goFile := testFile(idx.ID, "a.go")
	goFile.SymbolCount = 2
	goFile.ChunkCount = 2
	require.NoError(t, store.ReplaceFileChunks(ctx, goFile, []*ChunkRecord{
		testChunk("alpha", 1, 1),
		testChunk("beta", 3, 3),
	}, []*EmbeddingRecord{testEmbedding([]float32{1, 0, 0, 0}), nil}))

	pyFile := testFile(idx.ID, "b.py")
	pyFile.Language = "python"
	pyFile.ChunkCount = 1
	pyFile.ParseFailed = true
	require.NoError(t, store.ReplaceFileChunks(ctx, pyFile, []*ChunkRecord{
		testChunk("gamma", 1, 1),
	}, nil))

	stats, err := store.Stats(ctx, idx.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FileCount)
	assert.Equal(t, 2, stats.SymbolCount)
	assert.Equal(t, 3, stats.ChunkCount)
	assert.Equal(t, 1, stats.EmbeddingCount)
	assert.Equal(t, 1, stats.ParseFailures)
	require.Len(t, stats.Languages, 2)
	assert.Equal(t, "go", stats.Languages[0].Language)
	assert.Equal(t, "python", stats.Languages[1].Language)
}

func TestUpsertEmbeddingValidation(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	idx := createTestIndex(t, store)

	file := testFile(idx.ID, "v.go")
	chunks := []*ChunkRecord{testChunk("content", 1, 1)}
	require.NoError(t, store.ReplaceFileChunks(ctx, file, chunks, nil))

	bad := &EmbeddingRecord{ChunkID: chunks[0].ID, Vector: []byte{1, 2}, Dimension: 4}
	assert.ErrorIs(t, store.UpsertEmbedding(ctx, bad), ErrDimensionMismatch)

	good := testEmbedding([]float32{0, 0, 1, 0})
	good.ChunkID = chunks[0].ID
	require.NoError(t, store.UpsertEmbedding(ctx, good))

	// Upsert replaces in place.
	updated := testEmbedding([]float32{0, 1, 0, 0})
	updated.ChunkID = chunks[0].ID
	require.NoError(t, store.UpsertEmbedding(ctx, updated))

	missing, err := store.ListChunksMissingEmbeddings(ctx, idx.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestUpdateIndex(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	idx := createTestIndex(t, store)

	idx.LastIndexedAt = time.Now()
	require.NoError(t, store.UpdateIndex(ctx, idx))

	got, err := store.GetIndex(ctx, "test")
	require.NoError(t, err)
	assert.False(t, got.LastIndexedAt.IsZero())
}

func TestManyFilesRoundTrip(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	idx := createTestIndex(t, store)

	for i := 0; i < 20; i++ {
		path := fmt.Sprintf("pkg/file%02d.go", i)
		chunks := []*ChunkRecord{testChunk("content of "+path, 1, 2)}
		require.NoError(t, store.ReplaceFileChunks(ctx, testFile(idx.ID, path), chunks, nil))
	}

	files, err := store.ListFiles(ctx, idx.ID)
	require.NoError(t, err)
	assert.Len(t, files, 20)
}
