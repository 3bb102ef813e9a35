package builtin

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/pagesmith/internal/logging"
	"github.com/conneroisu/pagesmith/internal/plugins"
)

const (
	// DefaultLeftDelim and DefaultRightDelim keep template actions apart from
	// the {{ }} variable placeholders.
	DefaultLeftDelim  = "{%"
	DefaultRightDelim = "%}"

	maxCachedTemplates = 128
)

// TemplateEngine expands control flow (conditionals, loops) in content.
type TemplateEngine struct {
	left, right string
	funcs       template.FuncMap
	logger      logging.Logger

	cache map[[sha256.Size]byte]*template.Template
	mu    sync.Mutex
}

// NewTemplateEngine creates an engine using the given delimiters.
func NewTemplateEngine(left, right string) *TemplateEngine {
	return &TemplateEngine{
		left:  left,
		right: right,
		funcs: template.FuncMap{
			"upper": strings.ToUpper,
			"lower": strings.ToLower,
			"title": func(s string) string { return cases.Title(language.Und).String(s) },
			"join":  joinAny,
			"default": func(def, v interface{}) interface{} {
				if v == nil || v == "" {
					return def
				}
				return v
			},
		},
		logger: logging.Discard(),
		cache:  make(map[[sha256.Size]byte]*template.Template),
	}
}

// Expand executes content as a template against data.
func (e *TemplateEngine) Expand(ctx context.Context, content string, data map[string]interface{}) (string, error) {
	if !strings.Contains(content, e.left) {
		return content, nil
	}

	tmpl, err := e.parse(content)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return buf.String(), nil
}

func (e *TemplateEngine) parse(content string) (*template.Template, error) {
	key := sha256.Sum256([]byte(content))

	e.mu.Lock()
	defer e.mu.Unlock()

	if tmpl, ok := e.cache[key]; ok {
		return tmpl, nil
	}

	tmpl, err := template.New("content").
		Delims(e.left, e.right).
		Funcs(e.funcs).
		Parse(content)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}

	if len(e.cache) >= maxCachedTemplates {
		e.cache = make(map[[sha256.Size]byte]*template.Template)
	}
	e.cache[key] = tmpl
	return tmpl, nil
}

// Teardown drops cached templates.
func (e *TemplateEngine) Teardown(ctx context.Context) error {
	e.mu.Lock()
	e.cache = make(map[[sha256.Size]byte]*template.Template)
	e.mu.Unlock()
	return nil
}

func joinAny(sep string, items interface{}) string {
	switch v := items.(type) {
	case []string:
		return strings.Join(v, sep)
	case []interface{}:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = fmt.Sprint(item)
		}
		return strings.Join(parts, sep)
	default:
		return fmt.Sprint(items)
	}
}

// GoTemplatePlugin provides the TemplateEngine capability.
type GoTemplatePlugin struct{}

// NewGoTemplatePlugin creates the template engine plugin.
func NewGoTemplatePlugin() *GoTemplatePlugin {
	return &GoTemplatePlugin{}
}

// Name returns the plugin name.
func (p *GoTemplatePlugin) Name() string { return "gotemplate" }

// Version returns the plugin version.
func (p *GoTemplatePlugin) Version() string { return "1.0.0" }

// Description returns the plugin description.
func (p *GoTemplatePlugin) Description() string {
	return "Conditionals and loops in content using {% %} actions"
}

// Dependencies returns nothing; the engine stands alone.
func (p *GoTemplatePlugin) Dependencies() []string { return nil }

// PreviewPriority returns 0; the engine contributes no markup.
func (p *GoTemplatePlugin) PreviewPriority() int { return 0 }

// Init builds the engine, honouring left_delim and right_delim overrides.
func (p *GoTemplatePlugin) Init(ctx context.Context, ic plugins.InitContext) (interface{}, error) {
	left := ic.String("left_delim", DefaultLeftDelim)
	right := ic.String("right_delim", DefaultRightDelim)
	if left == "{{" || right == "}}" {
		return nil, fmt.Errorf("gotemplate: delimiters %s %s collide with variable placeholders", left, right)
	}

	engine := NewTemplateEngine(left, right)
	if ic.Logger != nil {
		engine.logger = ic.Logger
	}
	return engine, nil
}

// OnReady reports the active delimiters.
func (p *GoTemplatePlugin) OnReady(ctx context.Context, capability interface{}) error {
	engine, ok := capability.(*TemplateEngine)
	if !ok {
		return fmt.Errorf("gotemplate: unexpected capability %T", capability)
	}
	engine.logger.Info(ctx, "Template engine ready", "left_delim", engine.left, "right_delim", engine.right)
	return nil
}

// Snippets returns completion snippets for template actions.
func (p *GoTemplatePlugin) Snippets() map[string]string {
	return map[string]string{
		"if":    "{% if .cond %}{% end %}",
		"range": "{% range .items %}<li>{% . %}</li>{% end %}",
		"with":  "{% with .user %}{% .name %}{% end %}",
	}
}
