package lang

import (
	"github.com/smacker/go-tree-sitter/rust"

	"github.com/VioletCranberry/coco-search/pkg/types"
)

const rustPatterns = `
(function_item
  name: (identifier) @name
  body: (block)) @definition.function

(struct_item
  name: (type_identifier) @name
  body: (field_declaration_list)) @definition.struct

(enum_item
  name: (type_identifier) @name
  body: (enum_variant_list)) @definition.enum

(trait_item
  name: (type_identifier) @name
  body: (declaration_list)) @definition.trait

(mod_item
  name: (identifier) @name
  body: (declaration_list)) @definition.module
`

// RegisterRust adds the Rust spec. Functions inside an impl block are
// reclassified as methods by the extractor, and the impl's type name
// joins the qualified name with "::".
func RegisterRust(r *Registry) {
	r.Register(&Spec{
		ID:        "rust",
		Grammar:   rust.GetLanguage(),
		Patterns:  rustPatterns,
		Separator: "::",
		Kinds: map[string]types.SymbolKind{
			"function": types.KindFunction,
			"struct":   types.KindStruct,
			"enum":     types.KindEnum,
			"trait":    types.KindTrait,
			"module":   types.KindModule,
		},
		Containers: map[string]bool{
			"mod_item":   true,
			"impl_item":  true,
			"trait_item": true,
		},
		MethodContainers: map[string]bool{
			"impl_item":  true,
			"trait_item": true,
		},
		Extensions: []string{"rs"},
	})
}
