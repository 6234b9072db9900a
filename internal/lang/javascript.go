package lang

import (
	"github.com/smacker/go-tree-sitter/javascript"

	"github.com/VioletCranberry/coco-search/pkg/types"
)

const javascriptPatterns = `
(function_declaration
  name: (identifier) @name
  body: (statement_block)) @definition.function

(class_declaration
  name: (identifier) @name
  body: (class_body)) @definition.class

(method_definition
  name: (property_identifier) @name
  body: (statement_block)) @definition.method

(lexical_declaration
  (variable_declarator
    name: (identifier) @name
    value: (arrow_function))) @definition.function

(variable_declaration
  (variable_declarator
    name: (identifier) @name
    value: (arrow_function))) @definition.function
`

// RegisterJavaScript adds the JavaScript spec, covering declared and
// arrow-assigned functions, classes, and class methods.
func RegisterJavaScript(r *Registry) {
	r.Register(&Spec{
		ID:       "javascript",
		Grammar:  javascript.GetLanguage(),
		Patterns: javascriptPatterns,
		Kinds: map[string]types.SymbolKind{
			"function": types.KindFunction,
			"class":    types.KindClass,
			"method":   types.KindMethod,
		},
		Containers: map[string]bool{
			"class_declaration":    true,
			"function_declaration": true,
		},
		Extensions: []string{"js", "jsx", "mjs"},
	})
}
