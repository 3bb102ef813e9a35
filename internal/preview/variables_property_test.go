//go:build property

package preview

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestResolveProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(7)
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("content without braces is unchanged", prop.ForAll(
		func(content string, key string, value string) bool {
			if strings.Contains(content, "{{") {
				return true
			}
			return Resolve(content, Variables{key: value}) == content
		},
		gen.AnyString(),
		gen.Identifier(),
		gen.AlphaString(),
	))

	properties.Property("known placeholder is replaced", prop.ForAll(
		func(prefix, key, value string) bool {
			content := prefix + "{{ " + key + " }}"
			return Resolve(content, Variables{key: value}) == prefix+value
		},
		gen.AlphaString(),
		gen.Identifier(),
		gen.AlphaString(),
	))

	properties.Property("dotted key resolves flat and nested alike", prop.ForAll(
		func(outer, inner, value string) bool {
			flat := Variables{outer + "." + inner: value}
			nested := Variables{outer: map[string]interface{}{inner: value}}
			content := "{{" + outer + "." + inner + "}}"
			return Resolve(content, flat) == value && Resolve(content, nested) == value
		},
		gen.Identifier(),
		gen.Identifier(),
		gen.AlphaString(),
	))

	properties.Property("unknown placeholder is kept verbatim", prop.ForAll(
		func(key string) bool {
			content := "<p>{{" + key + "}}</p>"
			return Resolve(content, Variables{key + "x": "v"}) == content
		},
		gen.Identifier(),
	))

	properties.TestingRun(t)
}
