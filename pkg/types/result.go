package types

// SearchResult is a single ranked hit returned to a caller. Results are
// transient; they are never persisted.
type SearchResult struct {
	File string
	Span Span

	// Score is the RRF fusion score in hybrid mode, or the leg's
	// native cosine/BM25 score in single-leg modes.
	Score float64

	// Rank positions within each retrieval leg, 1-based; 0 means the
	// entry did not appear in that leg.
	VectorRank int
	TextRank   int

	// Symbol metadata, nil for unsymboled chunks.
	SymbolKind      SymbolKind
	SymbolName      string
	SymbolSignature string
	HierarchyPath   string

	Language string
	Text     string

	// Expanded reports whether Text was widened to the full enclosing
	// symbol by the context expander.
	Expanded bool
}
