// Package expander widens search hits to their smallest enclosing
// symbol for presentation. Expansion is best effort and read-only: it
// never touches the index, and any failure (file moved, content
// changed since indexing, parse error) falls back to the stored chunk
// text.
package expander

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/VioletCranberry/coco-search/internal/lang"
	"github.com/VioletCranberry/coco-search/internal/parser"
	"github.com/VioletCranberry/coco-search/internal/storage"
	"github.com/VioletCranberry/coco-search/pkg/types"
)

// Expander resolves chunks to enclosing symbols.
type Expander struct {
	registry *lang.Registry
	parser   *parser.Parser
	log      zerolog.Logger
}

// New creates an Expander.
func New(registry *lang.Registry, log zerolog.Logger) *Expander {
	return &Expander{
		registry: registry,
		parser:   parser.New(registry),
		log:      log.With().Str("component", "expander").Logger(),
	}
}

// Expansion is the outcome of one expansion attempt.
type Expansion struct {
	Text     string
	Span     types.Span
	Expanded bool
}

// Expand returns the full text of the smallest symbol enclosing the
// chunk. The file is re-read and verified against the ledger hash; if
// anything disagrees with the indexed state the chunk text is returned
// unchanged.
func (e *Expander) Expand(ctx context.Context, root string, file *storage.FileRecord, chunk *storage.ChunkRecord) Expansion {
	unexpanded := Expansion{Text: chunk.Content, Span: chunk.Span()}

	content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(file.Path)))
	if err != nil {
		e.log.Debug().Err(err).Str("file", file.Path).Msg("expansion read failed")
		return unexpanded
	}
	if sha256.Sum256(content) != file.ContentHash {
		e.log.Debug().Str("file", file.Path).Msg("file changed since indexing, skipping expansion")
		return unexpanded
	}

	target := e.enclosingSpan(ctx, file, chunk, content)
	if target.StartLine == 0 ||
		(target.StartLine == chunk.StartLine && target.EndLine == chunk.EndLine) {
		return unexpanded
	}

	text, span, ok := sliceLines(content, target.StartLine, target.EndLine)
	if !ok {
		return unexpanded
	}
	return Expansion{Text: text, Span: span, Expanded: true}
}

// enclosingSpan picks the line range to expand to. Sub-chunks of an
// oversized symbol already carry their parent's extent; unsymboled
// chunks need a re-parse to locate the smallest enclosing symbol.
func (e *Expander) enclosingSpan(ctx context.Context, file *storage.FileRecord, chunk *storage.ChunkRecord, content []byte) types.Span {
	if chunk.SymbolName != "" {
		return chunk.SymbolSpan()
	}

	parsed, err := e.parser.Parse(ctx, file.Language, content)
	if err != nil {
		return types.Span{}
	}

	chunkSpan := chunk.Span()
	var best types.Span
	for _, symbol := range parsed.Symbols {
		if symbol.Span.StartLine > chunkSpan.StartLine || symbol.Span.EndLine < chunkSpan.EndLine {
			continue
		}
		if best.StartLine == 0 || best.Contains(symbol.Span) {
			best = symbol.Span
		}
	}
	return best
}

// sliceLines extracts an inclusive 1-based line range from content.
func sliceLines(content []byte, startLine, endLine int) (string, types.Span, bool) {
	lines := strings.SplitAfter(string(content), "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if startLine < 1 || endLine > len(lines) || startLine > endLine {
		return "", types.Span{}, false
	}
	text := strings.Join(lines[startLine-1:endLine], "")
	return text, types.Span{StartLine: startLine, EndLine: endLine}, true
}
