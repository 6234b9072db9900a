// Package chunker splits file content into retrievable chunks aligned
// to symbol boundaries. Oversized symbols are split into overlapping
// windows that share the parent symbol's metadata, and files without
// usable symbols fall back to plain line windows.
package chunker

import (
	"strings"

	"github.com/VioletCranberry/coco-search/pkg/types"
)

const (
	// DefaultMaxLines is the per-chunk line budget before a symbol is
	// split into windows.
	DefaultMaxLines = 120

	// DefaultWindowLines is the window size used both for oversize
	// splits and for the symbol-free fallback.
	DefaultWindowLines = 40

	// DefaultOverlapLines is how many lines consecutive windows share.
	DefaultOverlapLines = 10

	// DefaultDepth selects which nesting level of symbols becomes a
	// chunk boundary. 0 chunks at top-level symbols only.
	DefaultDepth = 0
)

// Config tunes chunking behavior. The zero value is replaced with
// defaults by New.
type Config struct {
	MaxLines     int
	WindowLines  int
	OverlapLines int
	Depth        int
}

// Chunker splits file content into chunks.
type Chunker struct {
	cfg Config
}

// New creates a Chunker, filling unset config fields with defaults.
func New(cfg Config) *Chunker {
	if cfg.MaxLines <= 0 {
		cfg.MaxLines = DefaultMaxLines
	}
	if cfg.WindowLines <= 0 {
		cfg.WindowLines = DefaultWindowLines
	}
	if cfg.OverlapLines < 0 || cfg.OverlapLines >= cfg.WindowLines {
		cfg.OverlapLines = DefaultOverlapLines
	}
	return &Chunker{cfg: cfg}
}

// Chunk splits content into chunks. Symbols come from the parser; pass
// nil to force the line-window fallback. Returned chunks are ordered by
// start position and every chunk has its content hash computed.
func (c *Chunker) Chunk(content []byte, languageID string, symbols []types.Symbol) []types.Chunk {
	lines := newLineIndex(content)
	if lines.count == 0 {
		return nil
	}

	boundaries := c.selectBoundaries(symbols)
	if len(boundaries) == 0 {
		return c.finish(c.windowChunks(lines, 1, lines.count, languageID))
	}

	var chunks []types.Chunk
	cursor := 1
	for i := range boundaries {
		sym := &boundaries[i]
		if sym.Span.StartLine > cursor {
			chunks = append(chunks, c.gapChunks(lines, cursor, sym.Span.StartLine-1, languageID)...)
		}
		chunks = append(chunks, c.symbolChunks(lines, sym, languageID)...)
		if sym.Span.EndLine+1 > cursor {
			cursor = sym.Span.EndLine + 1
		}
	}
	if cursor <= lines.count {
		chunks = append(chunks, c.gapChunks(lines, cursor, lines.count, languageID)...)
	}
	return c.finish(chunks)
}

// selectBoundaries picks the symbols that become chunk boundaries:
// those at or above the configured depth, keeping the innermost when
// one eligible symbol contains another.
func (c *Chunker) selectBoundaries(symbols []types.Symbol) []types.Symbol {
	var eligible []types.Symbol
	for _, s := range symbols {
		if len(s.Hierarchy)-1 <= c.cfg.Depth {
			eligible = append(eligible, s)
		}
	}
	var out []types.Symbol
	for i, s := range eligible {
		containsOther := false
		for j, other := range eligible {
			if i != j && s.Span.Contains(other.Span) && s.Span != other.Span {
				containsOther = true
				break
			}
		}
		if !containsOther {
			out = append(out, s)
		}
	}
	return out
}

// symbolChunks emits one chunk for a symbol within budget, or a series
// of overlapping windows sharing the symbol's metadata when oversized.
func (c *Chunker) symbolChunks(lines *lineIndex, sym *types.Symbol, languageID string) []types.Chunk {
	span := sym.Span
	if span.EndLine-span.StartLine+1 <= c.cfg.MaxLines {
		chunk := lines.chunk(span.StartLine, span.EndLine, languageID)
		chunk.Symbol = sym
		return []types.Chunk{chunk}
	}

	symSpan := span
	windows := c.windowChunks(lines, span.StartLine, span.EndLine, languageID)
	for i := range windows {
		windows[i].Symbol = sym
		windows[i].SymbolSpan = &symSpan
	}
	return windows
}

// gapChunks emits chunks for an unsymboled line range, skipping ranges
// that are entirely blank.
func (c *Chunker) gapChunks(lines *lineIndex, startLine, endLine int, languageID string) []types.Chunk {
	if startLine > endLine {
		return nil
	}
	if lines.blank(startLine, endLine) {
		return nil
	}
	if endLine-startLine+1 <= c.cfg.MaxLines {
		return []types.Chunk{lines.chunk(startLine, endLine, languageID)}
	}
	return c.windowChunks(lines, startLine, endLine, languageID)
}

// windowChunks splits a line range into overlapping fixed-size windows.
func (c *Chunker) windowChunks(lines *lineIndex, startLine, endLine int, languageID string) []types.Chunk {
	step := c.cfg.WindowLines - c.cfg.OverlapLines
	var chunks []types.Chunk
	for start := startLine; start <= endLine; start += step {
		end := start + c.cfg.WindowLines - 1
		if end > endLine {
			end = endLine
		}
		if !lines.blank(start, end) {
			chunks = append(chunks, lines.chunk(start, end, languageID))
		}
		if end == endLine {
			break
		}
	}
	return chunks
}

// finish computes hashes and drops empty chunks.
func (c *Chunker) finish(chunks []types.Chunk) []types.Chunk {
	out := chunks[:0]
	for i := range chunks {
		if strings.TrimSpace(chunks[i].Text) == "" {
			continue
		}
		chunks[i].ComputeContentHash()
		out = append(out, chunks[i])
	}
	return out
}

// lineIndex maps 1-based line numbers to byte offsets for slicing
// chunk text out of the original content.
type lineIndex struct {
	content []byte
	starts  []int
	count   int
}

func newLineIndex(content []byte) *lineIndex {
	idx := &lineIndex{content: content}
	if len(content) == 0 {
		return idx
	}
	idx.starts = append(idx.starts, 0)
	for i, b := range content {
		if b == '\n' && i+1 < len(content) {
			idx.starts = append(idx.starts, i+1)
		}
	}
	idx.count = len(idx.starts)
	return idx
}

// lineEnd returns the byte offset one past the end of a line,
// including its trailing newline.
func (l *lineIndex) lineEnd(line int) int {
	if line >= l.count {
		return len(l.content)
	}
	return l.starts[line]
}

func (l *lineIndex) chunk(startLine, endLine int, languageID string) types.Chunk {
	startByte := l.starts[startLine-1]
	endByte := l.lineEnd(endLine)
	return types.Chunk{
		Span: types.Span{
			StartLine: startLine,
			EndLine:   endLine,
			StartByte: startByte,
			EndByte:   endByte,
		},
		Text:     string(l.content[startByte:endByte]),
		Language: languageID,
	}
}

func (l *lineIndex) blank(startLine, endLine int) bool {
	startByte := l.starts[startLine-1]
	endByte := l.lineEnd(endLine)
	return strings.TrimSpace(string(l.content[startByte:endByte])) == ""
}
