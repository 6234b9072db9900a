package lang

import (
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/VioletCranberry/coco-search/pkg/types"
)

// ErrUnknownLanguage is returned when no spec is registered for a
// language id or file extension.
var ErrUnknownLanguage = errors.New("unknown language")

// DefaultSeparator joins qualified-name components when a language does
// not declare its own separator.
const DefaultSeparator = "."

// Spec declares how symbols are extracted for one language: the
// tree-sitter grammar, a declarative pattern set, and naming policy.
// Adding a language is a registry entry, never a parser change.
type Spec struct {
	// ID is the canonical language id ("go", "python", ...).
	ID string

	// Grammar is the tree-sitter language.
	Grammar *sitter.Language

	// Patterns is a tree-sitter S-expression query. Each pattern
	// captures the definition node as @definition.<kind> and its
	// identifier as @name. Patterns must require a body field so that
	// bare declarations and prototypes never match.
	Patterns string

	// Separator joins qualified-name components ("." or "::").
	Separator string

	// Kinds maps the @definition capture suffix to a symbol kind.
	Kinds map[string]types.SymbolKind

	// Containers is the set of node types that contribute a component
	// to the qualified name of symbols nested inside them.
	Containers map[string]bool

	// MethodContainers is the subset of container node types under
	// which a function symbol is reclassified as a method.
	MethodContainers map[string]bool

	// Extensions lists file extensions (without dot) for this language.
	Extensions []string
}

// Registry maps language ids and file extensions to specs. It is safe
// for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]*Spec
	byExt map[string]*Spec
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:  make(map[string]*Spec),
		byExt: make(map[string]*Spec),
	}
}

// Default returns a registry with all built-in languages registered.
func Default() *Registry {
	r := NewRegistry()
	RegisterGo(r)
	RegisterPython(r)
	RegisterJavaScript(r)
	RegisterTypeScript(r)
	RegisterRust(r)
	return r
}

// Register adds a language spec. The spec's Separator defaults to
// DefaultSeparator when empty.
func (r *Registry) Register(spec *Spec) {
	if spec.Separator == "" {
		spec.Separator = DefaultSeparator
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[spec.ID] = spec
	for _, ext := range spec.Extensions {
		r.byExt[ext] = spec
	}
}

// Lookup returns the spec for a language id.
func (r *Registry) Lookup(id string) (*Spec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.byID[id]
	if !ok {
		return nil, ErrUnknownLanguage
	}
	return spec, nil
}

// LookupPath returns the spec for a file path based on its extension,
// or nil when the extension is not registered.
func (r *Registry) LookupPath(path string) *Spec {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byExt[ext]
}

// Languages returns the registered language ids, sorted.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Extensions returns the set of all registered file extensions.
func (r *Registry) Extensions() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make(map[string]bool, len(r.byExt))
	for ext := range r.byExt {
		exts[ext] = true
	}
	return exts
}
