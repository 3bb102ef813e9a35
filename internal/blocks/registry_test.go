package blocks

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/pagesmith/internal/errors"
)

func TestLabelFor(t *testing.T) {
	assert.Equal(t, "Image Gallery", LabelFor("image-gallery"))
	assert.Equal(t, "Hero", LabelFor("hero"))
	assert.Equal(t, "Call To Action", LabelFor("call_to.action"))
}

func TestRegisterType(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.RegisterType(TypeDescriptor{ID: "two-column"}))
	d, ok := r.Type("two-column")
	require.True(t, ok)
	assert.Equal(t, "Two Column", d.Label)
	assert.NotNil(t, d.Render)

	err := r.RegisterType(TypeDescriptor{ID: "two-column"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeValidationFailed))

	assert.Error(t, r.RegisterType(TypeDescriptor{ID: "  "}))
	assert.Len(t, r.Types(), 1)
}

func TestLoadCatalog(t *testing.T) {
	r := NewRegistry()
	catalog := `
types:
  - id: callout
    label: Call-out box
    container: true
    config:
      tone: info
    styles:
      border: 1px solid
  - id: banner
    render: custom
`
	renderers := map[string]RenderFunc{"custom": Fallback}

	ids, err := r.LoadCatalog(strings.NewReader(catalog), renderers)
	require.NoError(t, err)
	assert.Equal(t, []string{"banner", "callout"}, ids)

	callout, ok := r.Type("callout")
	require.True(t, ok)
	assert.Equal(t, "Call-out box", callout.Label)
	assert.True(t, callout.IsContainer)
	assert.Equal(t, "info", callout.DefaultConfig["tone"])
	assert.Equal(t, "1px solid", callout.DefaultStyles["border"])

	tree := NewTree(r)
	_, err = tree.CreateInstance("callout", Overrides{ID: "c"})
	require.NoError(t, err)
	_, err = tree.CreateInstance("banner", Overrides{ID: "b"})
	require.NoError(t, err)
	require.NoError(t, tree.AddChild("c", "b"))
	require.NoError(t, tree.AddRoot("c"))

	out, err := tree.Render(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `<div data-block="callout"><div data-block="banner"></div></div>`, out)
}

func TestLoadCatalogValidatesBeforeRegistering(t *testing.T) {
	r := NewRegistry()
	catalog := `
types:
  - id: fine
  - label: missing id
`
	_, err := r.LoadCatalog(strings.NewReader(catalog), nil)
	require.Error(t, err)
	assert.Empty(t, r.Types())

	_, err = r.LoadCatalog(strings.NewReader("types: [oops"), nil)
	assert.Error(t, err)
}

func TestDeepCopy(t *testing.T) {
	original := map[string]interface{}{
		"nested": map[string]interface{}{"list": []interface{}{1, map[string]interface{}{"k": "v"}}},
		"yaml":   map[interface{}]interface{}{"a": 1, 2: "dropped"},
	}
	copied := copyMap(original)

	copied["nested"].(map[string]interface{})["list"].([]interface{})[1].(map[string]interface{})["k"] = "changed"
	assert.Equal(t, "v", original["nested"].(map[string]interface{})["list"].([]interface{})[1].(map[string]interface{})["k"])
	assert.Equal(t, map[string]interface{}{"a": 1}, copied["yaml"])
}

func TestInstanceString(t *testing.T) {
	inst := Instance{Config: map[string]interface{}{"title": "x", "n": 1}}
	assert.Equal(t, "x", inst.String("title", "d"))
	assert.Equal(t, "d", inst.String("n", "d"))
	assert.Equal(t, "d", inst.String("missing", "d"))
}
