package lang

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VioletCranberry/coco-search/pkg/types"
)

func TestDefaultRegistry(t *testing.T) {
	r := Default()
	assert.Equal(t, []string{"go", "javascript", "python", "rust", "typescript"}, r.Languages())
}

func TestLookup(t *testing.T) {
	r := Default()

	spec, err := r.Lookup("go")
	require.NoError(t, err)
	assert.Equal(t, "go", spec.ID)
	assert.Equal(t, DefaultSeparator, spec.Separator)
	assert.NotNil(t, spec.Grammar)

	_, err = r.Lookup("cobol")
	assert.ErrorIs(t, err, ErrUnknownLanguage)
}

func TestLookupPath(t *testing.T) {
	r := Default()

	tests := []struct {
		path string
		want string
	}{
		{"cmd/main.go", "go"},
		{"src/app.py", "python"},
		{"web/index.js", "javascript"},
		{"web/App.jsx", "javascript"},
		{"web/util.mjs", "javascript"},
		{"web/api.ts", "typescript"},
		{"web/App.tsx", "typescript"},
		{"src/lib.rs", "rust"},
	}
	for _, tt := range tests {
		spec := r.LookupPath(tt.path)
		require.NotNil(t, spec, tt.path)
		assert.Equal(t, tt.want, spec.ID, tt.path)
	}

	assert.Nil(t, r.LookupPath("README.md"))
	assert.Nil(t, r.LookupPath("Makefile"))
}

func TestRustSeparator(t *testing.T) {
	r := Default()
	spec, err := r.Lookup("rust")
	require.NoError(t, err)
	assert.Equal(t, "::", spec.Separator)
}

func TestKindMappings(t *testing.T) {
	r := Default()

	goSpec, err := r.Lookup("go")
	require.NoError(t, err)
	assert.Equal(t, types.KindStruct, goSpec.Kinds["struct"])
	assert.Equal(t, types.KindInterface, goSpec.Kinds["interface"])

	rustSpec, err := r.Lookup("rust")
	require.NoError(t, err)
	assert.Equal(t, types.KindTrait, rustSpec.Kinds["trait"])
	assert.Equal(t, types.KindModule, rustSpec.Kinds["module"])
}

func TestMethodContainers(t *testing.T) {
	r := Default()

	py, err := r.Lookup("python")
	require.NoError(t, err)
	assert.True(t, py.MethodContainers["class_definition"])

	rust, err := r.Lookup("rust")
	require.NoError(t, err)
	assert.True(t, rust.MethodContainers["impl_item"])
	assert.True(t, rust.MethodContainers["trait_item"])
}

func TestRegisterCustomLanguage(t *testing.T) {
	r := NewRegistry()
	r.Register(&Spec{
		ID:         "toy",
		Extensions: []string{"toy"},
	})

	spec, err := r.Lookup("toy")
	require.NoError(t, err)
	assert.Equal(t, DefaultSeparator, spec.Separator)
	assert.Same(t, spec, r.LookupPath("thing.toy"))
}
