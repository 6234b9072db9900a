package lang

import (
	"github.com/smacker/go-tree-sitter/python"

	"github.com/VioletCranberry/coco-search/pkg/types"
)

const pythonPatterns = `
(function_definition
  name: (identifier) @name
  body: (block)) @definition.function

(class_definition
  name: (identifier) @name
  body: (block)) @definition.class
`

// RegisterPython adds the Python spec. Decorated definitions are
// covered by the inner function_definition and class_definition nodes.
// Functions nested under a class are reclassified as methods by the
// extractor.
func RegisterPython(r *Registry) {
	r.Register(&Spec{
		ID:       "python",
		Grammar:  python.GetLanguage(),
		Patterns: pythonPatterns,
		Kinds: map[string]types.SymbolKind{
			"function": types.KindFunction,
			"class":    types.KindClass,
		},
		Containers: map[string]bool{
			"class_definition":    true,
			"function_definition": true,
		},
		MethodContainers: map[string]bool{
			"class_definition": true,
		},
		Extensions: []string{"py"},
	})
}
