package lang

import (
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/VioletCranberry/coco-search/pkg/types"
)

const goPatterns = `
(function_declaration
  name: (identifier) @name
  body: (block)) @definition.function

(method_declaration
  name: (field_identifier) @name
  body: (block)) @definition.method

(type_declaration
  (type_spec
    name: (type_identifier) @name
    type: (struct_type))) @definition.struct

(type_declaration
  (type_spec
    name: (type_identifier) @name
    type: (interface_type))) @definition.interface
`

// RegisterGo adds the Go spec. Function and method patterns require a
// block body, which drops forward declarations of assembly funcs.
func RegisterGo(r *Registry) {
	r.Register(&Spec{
		ID:       "go",
		Grammar:  golang.GetLanguage(),
		Patterns: goPatterns,
		Kinds: map[string]types.SymbolKind{
			"function":  types.KindFunction,
			"method":    types.KindMethod,
			"struct":    types.KindStruct,
			"interface": types.KindInterface,
		},
		Containers: map[string]bool{},
		Extensions: []string{"go"},
	})
}
