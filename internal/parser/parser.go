// Package parser turns source files into symbol lists using
// tree-sitter grammars driven by the language registry. All
// language-specific knowledge lives in the registry specs; the parser
// itself only executes queries and assembles qualified names.
package parser

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/VioletCranberry/coco-search/internal/lang"
	"github.com/VioletCranberry/coco-search/pkg/types"
)

// ErrUnparsable is returned when a file's syntax tree exceeds the
// error-ratio threshold and cannot be trusted for symbol extraction.
var ErrUnparsable = fmt.Errorf("source is unparsable")

const (
	// DefaultErrorRatioThreshold is the fraction of source bytes that
	// may sit under ERROR nodes before extraction is abandoned.
	DefaultErrorRatioThreshold = 0.5

	// definitionCapturePrefix marks captures naming a definition node.
	definitionCapturePrefix = "definition."

	maxSignatureLen = 200
)

// Parser extracts symbols from source files.
type Parser struct {
	registry       *lang.Registry
	errorThreshold float64
}

// Option configures a Parser.
type Option func(*Parser)

// WithErrorRatioThreshold overrides the error-ratio threshold.
func WithErrorRatioThreshold(t float64) Option {
	return func(p *Parser) { p.errorThreshold = t }
}

// New creates a Parser over the given registry.
func New(registry *lang.Registry, opts ...Option) *Parser {
	p := &Parser{
		registry:       registry,
		errorThreshold: DefaultErrorRatioThreshold,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse extracts symbols from content according to the spec registered
// for languageID. It returns ErrUnparsable when the tree's error ratio
// exceeds the threshold; callers treat that as "fall back to line
// windows", not as a fatal condition.
func (p *Parser) Parse(ctx context.Context, languageID string, content []byte) (*types.ParseResult, error) {
	spec, err := p.registry.Lookup(languageID)
	if err != nil {
		return nil, err
	}

	tsp := sitter.NewParser()
	defer tsp.Close()
	tsp.SetLanguage(spec.Grammar)

	tree, err := tsp.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", languageID, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	ratio := errorRatio(root, len(content))
	result := &types.ParseResult{
		Language:   languageID,
		ErrorRatio: ratio,
	}
	if ratio > p.errorThreshold {
		return result, ErrUnparsable
	}

	symbols, err := p.extract(spec, root, content)
	if err != nil {
		return nil, err
	}
	result.Symbols = symbols
	return result, nil
}

// extract runs the spec's query and assembles symbols with qualified
// names derived from container ancestors.
func (p *Parser) extract(spec *lang.Spec, root *sitter.Node, content []byte) ([]types.Symbol, error) {
	query, err := sitter.NewQuery([]byte(spec.Patterns), spec.Grammar)
	if err != nil {
		return nil, fmt.Errorf("compile %s patterns: %w", spec.ID, err)
	}
	defer query.Close()

	cursor := sitter.NewQueryCursor()
	defer cursor.Close()
	cursor.Exec(query, root)

	seen := make(map[spanKey]bool)
	var symbols []types.Symbol
	for {
		match, ok := cursor.NextMatch()
		if !ok {
			break
		}
		match = cursor.FilterPredicates(match, content)

		var defNode, nameNode *sitter.Node
		var kindSuffix string
		for _, capture := range match.Captures {
			captureName := query.CaptureNameForId(capture.Index)
			switch {
			case strings.HasPrefix(captureName, definitionCapturePrefix):
				defNode = capture.Node
				kindSuffix = strings.TrimPrefix(captureName, definitionCapturePrefix)
			case captureName == "name":
				nameNode = capture.Node
			}
		}
		if defNode == nil || nameNode == nil {
			continue
		}

		kind, ok := spec.Kinds[kindSuffix]
		if !ok {
			continue
		}

		key := spanKey{start: defNode.StartByte(), end: defNode.EndByte()}
		if seen[key] {
			continue
		}
		seen[key] = true

		name := nameNode.Content(content)
		containers, nearest := containerPath(spec, defNode, content)
		if kind == types.KindFunction && spec.MethodContainers[nearest] {
			kind = types.KindMethod
		}

		hierarchy := append(containers, name)
		symbols = append(symbols, types.Symbol{
			Name:          name,
			Kind:          kind,
			Signature:     signature(defNode, content),
			Hierarchy:     hierarchy,
			QualifiedName: types.QualifyName(hierarchy, spec.Separator),
			Span:          nodeSpan(defNode),
		})
	}

	sort.Slice(symbols, func(i, j int) bool {
		if symbols[i].Span.StartByte != symbols[j].Span.StartByte {
			return symbols[i].Span.StartByte < symbols[j].Span.StartByte
		}
		return symbols[i].Span.EndByte > symbols[j].Span.EndByte
	})
	return symbols, nil
}

type spanKey struct {
	start, end uint32
}

// containerPath walks ancestors of node and collects names of container
// nodes, outermost first. It also returns the node type of the nearest
// container, which drives function-to-method reclassification.
func containerPath(spec *lang.Spec, node *sitter.Node, content []byte) ([]string, string) {
	var names []string
	nearest := ""
	for anc := node.Parent(); anc != nil; anc = anc.Parent() {
		if !spec.Containers[anc.Type()] {
			continue
		}
		if nearest == "" {
			nearest = anc.Type()
		}
		if name := containerName(anc, content); name != "" {
			names = append(names, name)
		}
	}
	// Collected innermost first; reverse to outermost first.
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return names, nearest
}

// containerName extracts the display name of a container node. Impl
// blocks carry the name under the "type" field rather than "name".
func containerName(node *sitter.Node, content []byte) string {
	if n := node.ChildByFieldName("name"); n != nil {
		return n.Content(content)
	}
	if n := node.ChildByFieldName("type"); n != nil {
		return n.Content(content)
	}
	return ""
}

// signature is the first source line of the definition, trimmed.
func signature(node *sitter.Node, content []byte) string {
	text := node.Content(content)
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	text = strings.TrimSpace(text)
	if len(text) > maxSignatureLen {
		text = text[:maxSignatureLen]
	}
	return text
}

// nodeSpan converts tree-sitter coordinates to a Span. Rows are
// 0-based in tree-sitter and 1-based in spans.
func nodeSpan(node *sitter.Node) types.Span {
	return types.Span{
		StartLine: int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
		StartByte: int(node.StartByte()),
		EndByte:   int(node.EndByte()),
	}
}

// errorRatio is the fraction of source bytes covered by ERROR nodes.
func errorRatio(root *sitter.Node, totalBytes int) float64 {
	if totalBytes == 0 {
		return 0
	}
	errored := errorBytes(root)
	return float64(errored) / float64(totalBytes)
}

func errorBytes(node *sitter.Node) int {
	if node.IsError() {
		return int(node.EndByte() - node.StartByte())
	}
	total := 0
	for i := 0; i < int(node.ChildCount()); i++ {
		total += errorBytes(node.Child(i))
	}
	return total
}
