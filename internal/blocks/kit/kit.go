// Package kit supplies markup for the stock block types.
package kit

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/a-h/templ"

	"github.com/conneroisu/pagesmith/internal/blocks"
)

// Renderers returns the render procedure for every stock type, keyed by the
// name a catalog refers to it by.
func Renderers() map[string]blocks.RenderFunc {
	return map[string]blocks.RenderFunc{
		"hero":    Hero,
		"text":    Text,
		"html":    HTML,
		"grid":    Grid,
		"section": Section,
		"image":   Image,
		"button":  Button,
	}
}

// Types returns the stock block types with their defaults.
func Types() []blocks.TypeDescriptor {
	return []blocks.TypeDescriptor{
		{
			ID: "hero",
			DefaultConfig: map[string]interface{}{
				"title":    "Welcome",
				"subtitle": "",
			},
			DefaultStyles: map[string]interface{}{"padding": "4rem 2rem", "text-align": "center"},
			Render:        Hero,
		},
		{
			ID:            "text",
			DefaultConfig: map[string]interface{}{"text": "", "tag": "p"},
			Render:        Text,
		},
		{
			ID:            "html",
			DefaultConfig: map[string]interface{}{"html": ""},
			Render:        HTML,
		},
		{
			ID:            "grid",
			DefaultConfig: map[string]interface{}{"columns": 3},
			DefaultStyles: map[string]interface{}{"gap": "1rem"},
			IsContainer:   true,
			Render:        Grid,
		},
		{
			ID:            "section",
			DefaultConfig: map[string]interface{}{"tag": "section"},
			IsContainer:   true,
			Render:        Section,
		},
		{
			ID:            "image",
			DefaultConfig: map[string]interface{}{"src": "", "alt": ""},
			DefaultStyles: map[string]interface{}{"max-width": "100%"},
			Render:        Image,
		},
		{
			ID:            "button",
			DefaultConfig: map[string]interface{}{"label": "Click me", "href": "#"},
			Render:        Button,
		},
	}
}

// Register adds every stock type to registry.
func Register(registry *blocks.Registry) error {
	for _, d := range Types() {
		if err := registry.RegisterType(d); err != nil {
			return err
		}
	}
	return nil
}

// Hero renders a heading with an optional subtitle.
func Hero(inst blocks.Instance, children templ.Component) templ.Component {
	return write(func(b *strings.Builder) {
		b.WriteString(`<header` + attrs(inst, "hero") + `>`)
		b.WriteString(`<h1>` + templ.EscapeString(inst.String("title", "")) + `</h1>`)
		if subtitle := inst.String("subtitle", ""); subtitle != "" {
			b.WriteString(`<p>` + templ.EscapeString(subtitle) + `</p>`)
		}
		b.WriteString(`</header>`)
	})
}

// Text renders escaped text inside a paragraph or heading tag. The text comes
// from config.text, or config.content when text is empty.
func Text(inst blocks.Instance, children templ.Component) templ.Component {
	tag := allowedTag(inst.String("tag", "p"), "p", "p", "span", "h1", "h2", "h3", "h4", "h5", "h6", "blockquote")
	text := inst.String("text", "")
	if text == "" {
		text = inst.String("content", "")
	}
	return write(func(b *strings.Builder) {
		b.WriteString(`<` + tag + attrs(inst, "text") + `>`)
		b.WriteString(templ.EscapeString(text))
		b.WriteString(`</` + tag + `>`)
	})
}

// HTML renders its html config value verbatim.
func HTML(inst blocks.Instance, children templ.Component) templ.Component {
	return templ.Raw(inst.String("html", ""))
}

// Grid lays its children out in equal columns.
func Grid(inst blocks.Instance, children templ.Component) templ.Component {
	columns := intValue(inst.Config["columns"], 3)
	if columns < 1 {
		columns = 1
	}
	styles := map[string]interface{}{
		"display":               "grid",
		"grid-template-columns": fmt.Sprintf("repeat(%d, minmax(0, 1fr))", columns),
	}
	for k, v := range inst.Styles {
		styles[k] = v
	}
	return container(`<div`+classAttr(inst, "grid")+styleAttr(styles)+dataAttr(inst)+`>`, `</div>`, children)
}

// Section wraps its children in a sectioning element.
func Section(inst blocks.Instance, children templ.Component) templ.Component {
	tag := allowedTag(inst.String("tag", "section"), "section", "section", "div", "article", "aside", "main", "footer", "nav")
	return container(`<`+tag+attrs(inst, "section")+`>`, `</`+tag+`>`, children)
}

// Image renders an img element.
func Image(inst blocks.Instance, children templ.Component) templ.Component {
	return write(func(b *strings.Builder) {
		b.WriteString(`<img src="` + templ.EscapeString(inst.String("src", "")) + `"`)
		b.WriteString(` alt="` + templ.EscapeString(inst.String("alt", "")) + `"`)
		b.WriteString(attrs(inst, "image") + `>`)
	})
}

// Button renders a link styled as a button.
func Button(inst blocks.Instance, children templ.Component) templ.Component {
	return write(func(b *strings.Builder) {
		b.WriteString(`<a href="` + templ.EscapeString(inst.String("href", "#")) + `"`)
		b.WriteString(attrs(inst, "button") + `>`)
		b.WriteString(templ.EscapeString(inst.String("label", "")))
		b.WriteString(`</a>`)
	})
}

func write(fn func(b *strings.Builder)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		fn(&b)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

func container(open, closing string, children templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, open); err != nil {
			return err
		}
		if children != nil {
			if err := children.Render(ctx, w); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, closing)
		return err
	})
}

func attrs(inst blocks.Instance, base string) string {
	return classAttr(inst, base) + styleAttr(inst.Styles) + dataAttr(inst)
}

func classAttr(inst blocks.Instance, base string) string {
	class := "block-" + base
	if extra := strings.TrimSpace(inst.String("class", "")); extra != "" {
		class += " " + extra
	}
	return ` class="` + templ.EscapeString(class) + `"`
}

func dataAttr(inst blocks.Instance) string {
	return ` data-block-id="` + templ.EscapeString(inst.ID) + `"`
}

// styleAttr renders styles with sorted keys so output is stable.
func styleAttr(styles map[string]interface{}) string {
	if len(styles) == 0 {
		return ""
	}
	keys := make([]string, 0, len(styles))
	for k := range styles {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v;", k, styles[k]))
	}
	return ` style="` + templ.EscapeString(strings.Join(parts, " ")) + `"`
}

func allowedTag(tag, def string, allowed ...string) string {
	for _, a := range allowed {
		if tag == a {
			return tag
		}
	}
	return def
}

func intValue(v interface{}, def int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case uint64:
		return int(n)
	default:
		return def
	}
}
