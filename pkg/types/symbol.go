package types

import (
	"errors"
	"strings"
)

// SymbolKind represents the kind of code construct a symbol describes.
type SymbolKind string

const (
	KindFunction  SymbolKind = "function"
	KindMethod    SymbolKind = "method"
	KindClass     SymbolKind = "class"
	KindInterface SymbolKind = "interface"
	KindEnum      SymbolKind = "enum"
	KindStruct    SymbolKind = "struct"
	KindTrait     SymbolKind = "trait"
	KindModule    SymbolKind = "module"
	KindVariable  SymbolKind = "variable"
)

// ValidKind reports whether k is one of the recognized symbol kinds.
func ValidKind(k SymbolKind) bool {
	switch k {
	case KindFunction, KindMethod, KindClass, KindInterface,
		KindEnum, KindStruct, KindTrait, KindModule, KindVariable:
		return true
	}
	return false
}

// Span is a contiguous region of a source file, tracked both in lines
// (1-based, inclusive) and bytes (0-based, end exclusive).
type Span struct {
	StartLine int
	EndLine   int
	StartByte int
	EndByte   int
}

// Contains reports whether s fully contains other.
func (s Span) Contains(other Span) bool {
	return s.StartByte <= other.StartByte && s.EndByte >= other.EndByte
}

// Symbol is a named code construct extracted from a syntax tree.
// Symbols are regenerated wholesale on every re-parse of their file;
// nothing outside the parse result may hold one across index runs.
type Symbol struct {
	Name      string
	Kind      SymbolKind
	Signature string

	// Hierarchy lists the enclosing container names outermost first,
	// ending with the symbol's own name. QualifiedName joins it with
	// the language's qualifier separator.
	Hierarchy     []string
	QualifiedName string

	Span Span
}

// Validate performs basic integrity checks on the symbol.
func (s *Symbol) Validate() error {
	if s.Name == "" {
		return errors.New("symbol name is required")
	}
	if !ValidKind(s.Kind) {
		return errors.New("invalid symbol kind")
	}
	if s.Span.StartLine <= 0 || s.Span.EndLine < s.Span.StartLine {
		return errors.New("invalid symbol span")
	}
	return nil
}

// QualifyName joins hierarchy components with the given separator.
func QualifyName(hierarchy []string, separator string) string {
	return strings.Join(hierarchy, separator)
}
