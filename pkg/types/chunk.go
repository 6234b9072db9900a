package types

import (
	"crypto/sha256"
	"errors"
)

// Chunk is one retrievable unit of file text. A chunk either covers a
// symbol (or a window of an oversized symbol body), or an unsymboled
// stretch of the file. Chunks are replaced wholesale whenever their file
// is re-indexed, never patched in place.
type Chunk struct {
	Span     Span
	Text     string
	Language string

	// Symbol metadata. Nil for unsymboled chunks. Sub-chunks of an
	// oversized symbol all carry the parent symbol's metadata, and
	// SymbolSpan records the parent's full span so the context
	// expander can rejoin them.
	Symbol     *Symbol
	SymbolSpan *Span

	ContentHash [32]byte
}

// ComputeContentHash fills ContentHash from the chunk text.
func (c *Chunk) ComputeContentHash() {
	c.ContentHash = sha256.Sum256([]byte(c.Text))
}

// Validate performs basic integrity checks on the chunk.
func (c *Chunk) Validate() error {
	if c.Text == "" {
		return errors.New("chunk text cannot be empty")
	}
	if c.Span.StartLine <= 0 || c.Span.EndLine < c.Span.StartLine {
		return errors.New("invalid chunk span")
	}
	if c.Symbol == nil && c.SymbolSpan != nil {
		return errors.New("symbol span requires symbol metadata")
	}
	var zero [32]byte
	if c.ContentHash == zero {
		return errors.New("content hash must be computed")
	}
	return nil
}
