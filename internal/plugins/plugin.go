// Package plugins drives capability providers through registration,
// dependency-ordered initialization and ready notification.
package plugins

import (
	"context"
	"sort"

	"github.com/conneroisu/pagesmith/internal/logging"
)

// Plugin represents a pagesmith plugin.
type Plugin interface {
	// Name returns the unique name of the plugin
	Name() string

	// Version returns the version of the plugin
	Version() string

	// Description returns a description of what the plugin does
	Description() string

	// Dependencies names the plugins that must be ready before this one
	Dependencies() []string

	// PreviewPriority orders preview fragments; higher values come first
	PreviewPriority() int

	// Init builds the plugin's capability
	Init(ctx context.Context, ic InitContext) (interface{}, error)
}

// PreviewProvider is implemented by plugins that contribute markup to the
// preview document.
type PreviewProvider interface {
	PreviewFragment(capability interface{}) string
}

// SnippetProvider is implemented by plugins that offer code-completion
// snippets, keyed by trigger.
type SnippetProvider interface {
	Snippets() map[string]string
}

// ReadyHook is implemented by plugins that need a callback once every plugin
// has been initialized.
type ReadyHook interface {
	OnReady(ctx context.Context, capability interface{}) error
}

type (
	// InitFunc builds a capability.
	InitFunc func(ctx context.Context, ic InitContext) (interface{}, error)
	// PreviewFunc renders the preview fragment for a capability.
	PreviewFunc func(capability interface{}) string
	// SnippetFunc returns completion snippets.
	SnippetFunc func() map[string]string
	// ReadyFunc is called once the whole catalog has been initialized.
	ReadyFunc func(ctx context.Context, capability interface{}) error
)

// Descriptor is the registered, immutable view of a plugin. Optional hooks
// are nil when the plugin does not provide them.
type Descriptor struct {
	Name            string
	Version         string
	Description     string
	Dependencies    []string
	PreviewPriority int

	Init     InitFunc
	Preview  PreviewFunc
	Snippets SnippetFunc
	OnReady  ReadyFunc
}

// DescriptorFor resolves a plugin's optional hooks into a Descriptor.
func DescriptorFor(p Plugin) Descriptor {
	d := Descriptor{
		Name:            p.Name(),
		Version:         p.Version(),
		Description:     p.Description(),
		Dependencies:    append([]string(nil), p.Dependencies()...),
		PreviewPriority: p.PreviewPriority(),
		Init:            p.Init,
	}

	if pp, ok := p.(PreviewProvider); ok {
		d.Preview = pp.PreviewFragment
	}
	if sp, ok := p.(SnippetProvider); ok {
		d.Snippets = sp.Snippets
	}
	if rh, ok := p.(ReadyHook); ok {
		d.OnReady = rh.OnReady
	}

	return d
}

// Hooks lists the optional hooks the descriptor provides.
func (d Descriptor) Hooks() []string {
	var hooks []string
	if d.Preview != nil {
		hooks = append(hooks, "preview")
	}
	if d.Snippets != nil {
		hooks = append(hooks, "snippets")
	}
	if d.OnReady != nil {
		hooks = append(hooks, "ready")
	}
	return hooks
}

// InitContext is handed to a plugin's Init.
type InitContext struct {
	Name   string
	Config map[string]interface{}
	Logger logging.Logger

	deps map[string]interface{}
}

// Dependency returns the capability of a ready dependency.
func (ic InitContext) Dependency(name string) (interface{}, bool) {
	capability, ok := ic.deps[name]
	return capability, ok
}

// String returns a string config value or def when unset.
func (ic InitContext) String(key, def string) string {
	if v, ok := ic.Config[key].(string); ok && v != "" {
		return v
	}
	return def
}

// State represents the lifecycle state of a plugin.
type State string

const (
	StateUnknown      State = "unknown"
	StateRegistered   State = "registered"
	StateInitializing State = "initializing"
	StateReady        State = "ready"
	StateFailed       State = "failed"
	StateSkipped      State = "skipped"
	StateDisabled     State = "disabled"
)

// Info describes a registered plugin for listings.
type Info struct {
	Name            string   `json:"name" yaml:"name"`
	Version         string   `json:"version" yaml:"version"`
	Description     string   `json:"description" yaml:"description"`
	Dependencies    []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	PreviewPriority int      `json:"preview_priority" yaml:"preview_priority"`
	State           State    `json:"state" yaml:"state"`
	Reason          string   `json:"reason,omitempty" yaml:"reason,omitempty"`
	Hooks           []string `json:"hooks,omitempty" yaml:"hooks,omitempty"`
}

// ReadyPlugin is what ForEachReady hands to its visitor.
type ReadyPlugin struct {
	Name            string
	PreviewPriority int
	Capability      interface{}

	preview PreviewFunc
}

// HasPreview reports whether the plugin supplies a preview fragment.
func (r ReadyPlugin) HasPreview() bool {
	return r.preview != nil
}

// Fragment is one plugin's contribution to the preview document.
type Fragment struct {
	Plugin   string
	Priority int
	HTML     string
}

// Report summarizes one InitializeAll pass.
type Report struct {
	Order      []string            `json:"order" yaml:"order"`
	Ready      []string            `json:"ready" yaml:"ready"`
	Skipped    map[string]string   `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Blocked    map[string][]string `json:"blocked,omitempty" yaml:"blocked,omitempty"`
	Failed     map[string]error    `json:"-" yaml:"-"`
	HookErrors map[string]error    `json:"-" yaml:"-"`
}

func newReport(order []string) *Report {
	return &Report{
		Order:      order,
		Skipped:    make(map[string]string),
		Blocked:    make(map[string][]string),
		Failed:     make(map[string]error),
		HookErrors: make(map[string]error),
	}
}

// FailedNames returns the names of failed plugins, sorted.
func (r *Report) FailedNames() []string {
	names := make([]string, 0, len(r.Failed))
	for name := range r.Failed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
