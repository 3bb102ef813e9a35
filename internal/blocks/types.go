// Package blocks holds block type descriptors and the block instance tree the
// editor builds from them.
//
// Instances live in an arena keyed by id; a parent refers to its children by
// an ordered list of ids. The tree never hands out pointers into the arena, so
// callers cannot mutate an instance behind the tree's lock.
package blocks

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// RenderFunc produces the markup for one block. children renders the block's
// children in order and is empty for leaf blocks.
type RenderFunc func(inst Instance, children templ.Component) templ.Component

// TypeDescriptor describes a block type.
type TypeDescriptor struct {
	ID            string
	Label         string
	DefaultConfig map[string]interface{}
	DefaultStyles map[string]interface{}
	IsContainer   bool
	Render        RenderFunc
}

// Instance is a snapshot of one block.
type Instance struct {
	ID       string                 `json:"id"`
	TypeID   string                 `json:"typeId"`
	Config   map[string]interface{} `json:"config"`
	Styles   map[string]interface{} `json:"styles"`
	Children []string               `json:"children"`
}

// String returns a config value as a string, or def when missing.
func (i Instance) String(key, def string) string {
	if v, ok := i.Config[key].(string); ok {
		return v
	}
	return def
}

// Overrides customizes a new instance.
type Overrides struct {
	// ID is used instead of a generated id when set
	ID     string
	Config map[string]interface{}
	Styles map[string]interface{}
}

// Node is the nested form of a block used for import and export.
type Node struct {
	ID       string                 `json:"id,omitempty" yaml:"id,omitempty"`
	TypeID   string                 `json:"typeId" yaml:"typeId"`
	Config   map[string]interface{} `json:"config,omitempty" yaml:"config,omitempty"`
	Styles   map[string]interface{} `json:"styles,omitempty" yaml:"styles,omitempty"`
	Children []Node                 `json:"children,omitempty" yaml:"children,omitempty"`
}

// Fallback renders a block type that has no render procedure as a plain
// wrapper element.
func Fallback(inst Instance, children templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<div data-block="`+templ.EscapeString(inst.TypeID)+`">`); err != nil {
			return err
		}
		if children != nil {
			if err := children.Render(ctx, w); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "</div>")
		return err
	})
}

// merge returns a deep copy of base with a deep copy of overrides on top.
func merge(base, overrides map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(overrides))
	for k, v := range base {
		out[k] = deepCopy(v)
	}
	for k, v := range overrides {
		out[k] = deepCopy(v)
	}
	return out
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = deepCopy(v)
	}
	return out
}

func deepCopy(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return copyMap(t)
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			if ks, ok := k.(string); ok {
				out[ks] = deepCopy(val)
			}
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
