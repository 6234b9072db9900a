package types

// ParseResult is the output of parsing a single source file.
type ParseResult struct {
	Language string
	Symbols  []Symbol

	// ErrorRatio is the fraction of source bytes covered by syntax
	// error nodes. Small values are normal for editors-in-flight code;
	// parsers reject files above their configured threshold.
	ErrorRatio float64
}

// HasSymbols reports whether any symbols were extracted.
func (pr *ParseResult) HasSymbols() bool {
	return len(pr.Symbols) > 0
}
