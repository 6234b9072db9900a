package lang

import (
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/VioletCranberry/coco-search/pkg/types"
)

const typescriptPatterns = `
(function_declaration
  name: (identifier) @name
  body: (statement_block)) @definition.function

(class_declaration
  name: (type_identifier) @name
  body: (class_body)) @definition.class

(method_definition
  name: (property_identifier) @name
  body: (statement_block)) @definition.method

(interface_declaration
  name: (type_identifier) @name
  body: (interface_body)) @definition.interface

(enum_declaration
  name: (identifier) @name
  body: (enum_body)) @definition.enum

(lexical_declaration
  (variable_declarator
    name: (identifier) @name
    value: (arrow_function))) @definition.function
`

// RegisterTypeScript adds the TypeScript spec. Method patterns require
// a statement_block body so that ambient and abstract signatures do not
// produce symbols.
func RegisterTypeScript(r *Registry) {
	r.Register(&Spec{
		ID:       "typescript",
		Grammar:  typescript.GetLanguage(),
		Patterns: typescriptPatterns,
		Kinds: map[string]types.SymbolKind{
			"function":  types.KindFunction,
			"class":     types.KindClass,
			"method":    types.KindMethod,
			"interface": types.KindInterface,
			"enum":      types.KindEnum,
		},
		Containers: map[string]bool{
			"class_declaration":    true,
			"function_declaration": true,
		},
		Extensions: []string{"ts", "tsx"},
	})
}
