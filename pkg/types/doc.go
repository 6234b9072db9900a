// Package types provides shared domain types for coco-search: symbols,
// spans, chunks, parse results, and search results. These types carry no
// behavior beyond validation and are safe to pass across component
// boundaries.
package types
