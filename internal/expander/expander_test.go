package expander

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VioletCranberry/coco-search/internal/lang"
	"github.com/VioletCranberry/coco-search/internal/storage"
)

const source = `package main

func bigFunction() {
	first()
	second()
	third()
	fourth()
}

func small() {}
`

func writeSource(t *testing.T, content string) (root string, file *storage.FileRecord) {
	t.Helper()
	root = t.TempDir()
	path := filepath.Join(root, "main.go")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return root, &storage.FileRecord{
		Path:        "main.go",
		Language:    "go",
		ContentHash: sha256.Sum256([]byte(content)),
	}
}

func newExpander() *Expander {
	return New(lang.Default(), zerolog.Nop())
}

func TestExpandUnsymboledChunkToEnclosingSymbol(t *testing.T) {
	root, file := writeSource(t, source)

	// A fallback chunk covering two lines inside bigFunction.
	chunk := &storage.ChunkRecord{
		Content:   "\tfirst()\n\tsecond()\n",
		Language:  "go",
		StartLine: 4,
		EndLine:   5,
	}

	got := newExpander().Expand(context.Background(), root, file, chunk)
	assert.True(t, got.Expanded)
	assert.Equal(t, 3, got.Span.StartLine)
	assert.Equal(t, 8, got.Span.EndLine)
	assert.Contains(t, got.Text, "func bigFunction()")
	assert.Contains(t, got.Text, "fourth()")
}

func TestExpandSubChunkUsesSymbolSpan(t *testing.T) {
	root, file := writeSource(t, source)

	// A window of an oversized symbol carries its parent's extent.
	chunk := &storage.ChunkRecord{
		Content:         "\tsecond()\n\tthird()\n",
		Language:        "go",
		StartLine:       5,
		EndLine:         6,
		SymbolName:      "bigFunction",
		SymbolKind:      "function",
		SymbolStartLine: 3,
		SymbolEndLine:   8,
	}

	got := newExpander().Expand(context.Background(), root, file, chunk)
	assert.True(t, got.Expanded)
	assert.Equal(t, 3, got.Span.StartLine)
	assert.Equal(t, 8, got.Span.EndLine)
}

func TestExpandAlreadyFullSymbolUnchanged(t *testing.T) {
	root, file := writeSource(t, source)

	chunk := &storage.ChunkRecord{
		Content:         "func small() {}\n",
		Language:        "go",
		StartLine:       10,
		EndLine:         10,
		SymbolName:      "small",
		SymbolKind:      "function",
		SymbolStartLine: 10,
		SymbolEndLine:   10,
	}

	got := newExpander().Expand(context.Background(), root, file, chunk)
	assert.False(t, got.Expanded)
	assert.Equal(t, chunk.Content, got.Text)
}

func TestExpandHashMismatchFallsBack(t *testing.T) {
	root, file := writeSource(t, source)
	file.ContentHash = sha256.Sum256([]byte("something else entirely"))

	chunk := &storage.ChunkRecord{
		Content:   "\tfirst()\n",
		Language:  "go",
		StartLine: 4,
		EndLine:   4,
	}

	got := newExpander().Expand(context.Background(), root, file, chunk)
	assert.False(t, got.Expanded)
	assert.Equal(t, "\tfirst()\n", got.Text)
	assert.Equal(t, 4, got.Span.StartLine)
}

func TestExpandMissingFileFallsBack(t *testing.T) {
	root := t.TempDir()
	file := &storage.FileRecord{Path: "gone.go", Language: "go"}
	chunk := &storage.ChunkRecord{Content: "text", StartLine: 1, EndLine: 1}

	got := newExpander().Expand(context.Background(), root, file, chunk)
	assert.False(t, got.Expanded)
	assert.Equal(t, "text", got.Text)
}

func TestExpandChunkOutsideAnySymbol(t *testing.T) {
	root, file := writeSource(t, source)

	// The package clause sits outside every symbol.
	chunk := &storage.ChunkRecord{
		Content:   "package main\n",
		Language:  "go",
		StartLine: 1,
		EndLine:   1,
	}

	got := newExpander().Expand(context.Background(), root, file, chunk)
	assert.False(t, got.Expanded)
	assert.Equal(t, "package main\n", got.Text)
}
