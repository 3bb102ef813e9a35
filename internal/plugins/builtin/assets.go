// Package builtin provides the plugins pagesmith ships with: CDN-hosted
// styling and behaviour libraries injected into the preview document, and a
// template engine for control flow inside content.
package builtin

import (
	"context"
	"fmt"

	"github.com/a-h/templ"

	"github.com/conneroisu/pagesmith/internal/plugins"
	"github.com/conneroisu/pagesmith/internal/validation"
)

// Default CDN locations. Each can be overridden with the plugin's "url"
// configuration key.
const (
	TailwindURL       = "https://cdn.tailwindcss.com"
	BootstrapURL      = "https://cdn.jsdelivr.net/npm/bootstrap@5.3.3/dist/css/bootstrap.min.css"
	BulmaURL          = "https://cdn.jsdelivr.net/npm/bulma@1.0.2/css/bulma.min.css"
	AlpineURL         = "https://cdn.jsdelivr.net/npm/alpinejs@3.14.1/dist/cdn.min.js"
	AlpineCollapseURL = "https://cdn.jsdelivr.net/npm/@alpinejs/collapse@3.14.1/dist/cdn.min.js"
)

// Stylesheet is the capability of a plugin that links a stylesheet.
type Stylesheet struct {
	URL string
}

// Fragment returns the link element for the stylesheet.
func (s *Stylesheet) Fragment() string {
	return fmt.Sprintf(`<link rel="stylesheet" href="%s">`, templ.EscapeString(s.URL))
}

// Script is the capability of a plugin that loads a script.
type Script struct {
	URL   string
	Defer bool
}

// Fragment returns the script element.
func (s *Script) Fragment() string {
	if s.Defer {
		return fmt.Sprintf(`<script defer src="%s"></script>`, templ.EscapeString(s.URL))
	}
	return fmt.Sprintf(`<script src="%s"></script>`, templ.EscapeString(s.URL))
}

type fragmenter interface {
	Fragment() string
}

type assetKind int

const (
	kindStylesheet assetKind = iota
	kindScript
	kindDeferredScript
)

// AssetPlugin injects one CDN asset into the preview document.
type AssetPlugin struct {
	name        string
	version     string
	description string
	deps        []string
	priority    int
	defaultURL  string
	kind        assetKind
	snippets    map[string]string
}

// NewTailwindPlugin creates the Tailwind CSS play CDN plugin.
func NewTailwindPlugin() *AssetPlugin {
	return &AssetPlugin{
		name:        "tailwind",
		version:     "3.4.0",
		description: "Tailwind CSS utility classes via the play CDN",
		priority:    100,
		defaultURL:  TailwindURL,
		kind:        kindScript,
		snippets: map[string]string{
			"tw-flex":   `<div class="flex items-center justify-between gap-4"></div>`,
			"tw-grid":   `<div class="grid grid-cols-1 md:grid-cols-3 gap-6"></div>`,
			"tw-button": `<button class="px-4 py-2 rounded bg-blue-600 text-white">Button</button>`,
		},
	}
}

// NewBootstrapPlugin creates the Bootstrap stylesheet plugin.
func NewBootstrapPlugin() *AssetPlugin {
	return &AssetPlugin{
		name:        "bootstrap",
		version:     "5.3.3",
		description: "Bootstrap stylesheet",
		priority:    90,
		defaultURL:  BootstrapURL,
		kind:        kindStylesheet,
		snippets: map[string]string{
			"bs-container": `<div class="container"></div>`,
			"bs-row":       `<div class="row"><div class="col"></div></div>`,
			"bs-button":    `<button type="button" class="btn btn-primary">Button</button>`,
		},
	}
}

// NewBulmaPlugin creates the Bulma stylesheet plugin.
func NewBulmaPlugin() *AssetPlugin {
	return &AssetPlugin{
		name:        "bulma",
		version:     "1.0.2",
		description: "Bulma stylesheet",
		priority:    80,
		defaultURL:  BulmaURL,
		kind:        kindStylesheet,
		snippets: map[string]string{
			"bulma-columns": `<div class="columns"><div class="column"></div></div>`,
			"bulma-button":  `<button class="button is-primary">Button</button>`,
			"bulma-hero":    `<section class="hero"><div class="hero-body"><p class="title"></p></div></section>`,
		},
	}
}

// NewAlpinePlugin creates the Alpine.js plugin.
func NewAlpinePlugin() *AssetPlugin {
	return &AssetPlugin{
		name:        "alpine",
		version:     "3.14.1",
		description: "Alpine.js reactive attributes",
		priority:    50,
		defaultURL:  AlpineURL,
		kind:        kindDeferredScript,
		snippets: map[string]string{
			"x-data":  `<div x-data="{ open: false }"></div>`,
			"x-click": `<button x-on:click="open = !open">Toggle</button>`,
			"x-show":  `<div x-show="open"></div>`,
		},
	}
}

// NewAlpineCollapsePlugin creates the Alpine collapse extension. Its script
// has to load before Alpine itself, hence the higher priority.
func NewAlpineCollapsePlugin() *AssetPlugin {
	return &AssetPlugin{
		name:        "alpine-collapse",
		version:     "3.14.1",
		description: "Alpine.js collapse transitions",
		deps:        []string{"alpine"},
		priority:    60,
		defaultURL:  AlpineCollapseURL,
		kind:        kindDeferredScript,
		snippets: map[string]string{
			"x-collapse": `<div x-show="open" x-collapse></div>`,
		},
	}
}

// Name returns the plugin name.
func (p *AssetPlugin) Name() string { return p.name }

// Version returns the plugin version.
func (p *AssetPlugin) Version() string { return p.version }

// Description returns the plugin description.
func (p *AssetPlugin) Description() string { return p.description }

// Dependencies returns the plugins this one needs.
func (p *AssetPlugin) Dependencies() []string { return p.deps }

// PreviewPriority returns the fragment ordering priority.
func (p *AssetPlugin) PreviewPriority() int { return p.priority }

// Init validates the configured URL and builds the asset capability.
func (p *AssetPlugin) Init(ctx context.Context, ic plugins.InitContext) (interface{}, error) {
	raw := ic.String("url", p.defaultURL)
	if err := validation.AssetURL(raw); err != nil {
		return nil, fmt.Errorf("%s: asset url %q: %w", p.name, raw, err)
	}

	if ic.Logger != nil {
		ic.Logger.Debug(ctx, "Asset configured", "url", raw)
	}

	switch p.kind {
	case kindStylesheet:
		return &Stylesheet{URL: raw}, nil
	case kindDeferredScript:
		return &Script{URL: raw, Defer: true}, nil
	default:
		return &Script{URL: raw}, nil
	}
}

// PreviewFragment renders the asset element for a capability built by Init.
func (p *AssetPlugin) PreviewFragment(capability interface{}) string {
	if f, ok := capability.(fragmenter); ok {
		return f.Fragment()
	}
	return ""
}

// Snippets returns completion snippets for the library.
func (p *AssetPlugin) Snippets() map[string]string {
	out := make(map[string]string, len(p.snippets))
	for k, v := range p.snippets {
		out[k] = v
	}
	return out
}

// All returns a fresh instance of every built-in plugin.
func All() []plugins.Plugin {
	return []plugins.Plugin{
		NewTailwindPlugin(),
		NewBootstrapPlugin(),
		NewBulmaPlugin(),
		NewAlpineCollapsePlugin(),
		NewAlpinePlugin(),
		NewGoTemplatePlugin(),
	}
}
