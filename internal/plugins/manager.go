package plugins

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/conneroisu/pagesmith/internal/di"
	"github.com/conneroisu/pagesmith/internal/errors"
	"github.com/conneroisu/pagesmith/internal/logging"
	"github.com/conneroisu/pagesmith/internal/scheduler"
)

// Manager owns the plugin catalog and the lifecycle state of every entry.
// Capabilities themselves live in the di.Container.
type Manager struct {
	container    *di.Container
	logger       logging.Logger
	errorHandler *errors.ErrorHandler

	configs  map[string]map[string]interface{}
	enabled  map[string]bool
	disabled map[string]bool
	strict   bool

	entries map[string]*entry
	order   []string // registration order
	mu      sync.RWMutex

	// serializes InitializeAll and Shutdown
	lifecycle sync.Mutex
}

type entry struct {
	desc       Descriptor
	index      int
	state      State
	reason     string
	err        error
	readyFired bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithContainer sets the singleton registry capabilities are stored in.
func WithContainer(container *di.Container) Option {
	return func(m *Manager) {
		if container != nil {
			m.container = container
		}
	}
}

// WithLogger sets the manager logger.
func WithLogger(logger logging.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger.WithComponent("plugins")
		}
	}
}

// WithConfigurations sets per-plugin configuration maps.
func WithConfigurations(configs map[string]map[string]interface{}) Option {
	return func(m *Manager) {
		for name, cfg := range configs {
			m.configs[name] = cfg
		}
	}
}

// WithEnabled restricts the catalog to the named plugins. An empty list
// enables everything.
func WithEnabled(names ...string) Option {
	return func(m *Manager) {
		for _, name := range names {
			m.enabled[name] = true
		}
	}
}

// WithDisabled disables the named plugins. Disabled wins over enabled.
func WithDisabled(names ...string) Option {
	return func(m *Manager) {
		for _, name := range names {
			m.disabled[name] = true
		}
	}
}

// WithStrictDependencies makes a dependency missing from the catalog skip the
// dependent plugin instead of being ignored.
func WithStrictDependencies(strict bool) Option {
	return func(m *Manager) {
		m.strict = strict
	}
}

// NewManager creates a plugin manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		logger:   logging.Discard(),
		configs:  make(map[string]map[string]interface{}),
		enabled:  make(map[string]bool),
		disabled: make(map[string]bool),
		entries:  make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.container == nil {
		m.container = di.NewContainer(di.WithLogger(m.logger))
	}
	m.errorHandler = errors.NewErrorHandler(m.logger)
	return m
}

// Register adds a plugin to the catalog.
func (m *Manager) Register(p Plugin) error {
	if p == nil {
		return errors.NewValidationError(errors.ErrCodeValidationFailed, "plugin is nil")
	}
	return m.RegisterDescriptor(DescriptorFor(p))
}

// RegisterDescriptor adds a descriptor to the catalog. Registering a name a
// second time is a no-op.
func (m *Manager) RegisterDescriptor(d Descriptor) error {
	if d.Name == "" {
		return errors.NewValidationError(errors.ErrCodeValidationFailed, "plugin name is empty")
	}
	if d.Init == nil {
		return errors.NewValidationError(
			errors.ErrCodeValidationFailed,
			"plugin has no init function",
		).WithComponent(d.Name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[d.Name]; exists {
		m.logger.Debug(context.Background(), "Plugin already registered", "plugin", d.Name)
		return nil
	}

	d.Dependencies = append([]string(nil), d.Dependencies...)
	e := &entry{desc: d, index: len(m.order), state: StateRegistered}
	if m.isDisabled(d.Name) {
		e.state = StateDisabled
		e.reason = "disabled by configuration"
	}

	m.entries[d.Name] = e
	m.order = append(m.order, d.Name)

	return nil
}

func (m *Manager) isDisabled(name string) bool {
	if m.disabled[name] {
		return true
	}
	return len(m.enabled) > 0 && !m.enabled[name]
}

// InitializeAll initializes every registered plugin that is not ready yet, in
// dependency order. A dependency cycle aborts the call before any plugin is
// touched. Individual failures only affect the failed plugin and its
// dependents; they are reported, not returned.
func (m *Manager) InitializeAll(ctx context.Context) (*Report, error) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	perf := logging.StartOperation(m.logger, "initialize_plugins")

	tasks := m.tasks()
	names, err := scheduler.Names(tasks)
	if err != nil {
		m.logger.Error(ctx, err, "Plugin dependency graph is invalid")
		return nil, err
	}
	report := newReport(names)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("plugin initialization interrupted: %w", err)
		}
		m.initialize(ctx, name, report)
	}

	m.recordBlocked(ctx, tasks, report)
	m.fireReadyHooks(ctx, names, report)

	perf.End(ctx, "ready", len(report.Ready), "failed", len(report.Failed), "skipped", len(report.Skipped))

	return report, nil
}

func (m *Manager) tasks() []scheduler.Task {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tasks := make([]scheduler.Task, 0, len(m.order))
	for _, name := range m.order {
		e := m.entries[name]
		tasks = append(tasks, scheduler.Task{
			Name:         name,
			Dependencies: e.desc.Dependencies,
			Priority:     e.desc.PreviewPriority,
		})
	}
	return tasks
}

func (m *Manager) initialize(ctx context.Context, name string, report *Report) {
	m.mu.Lock()
	e := m.entries[name]
	switch e.state {
	case StateReady:
		m.mu.Unlock()
		report.Ready = append(report.Ready, name)
		return
	case StateDisabled:
		m.mu.Unlock()
		report.Skipped[name] = e.reason
		return
	}

	deps, blocked := m.resolveDependencies(e)
	if blocked != nil {
		e.state = StateSkipped
		e.reason = blocked.Message
		e.err = blocked
		m.mu.Unlock()

		report.Skipped[name] = blocked.Message
		m.logger.Warn(ctx, blocked, "Skipping plugin", "plugin", name)
		return
	}

	e.state = StateInitializing
	e.reason = ""
	e.err = nil
	desc := e.desc
	m.mu.Unlock()

	ic := InitContext{
		Name:   name,
		Config: m.configs[name],
		Logger: m.logger.WithComponent(name),
		deps:   deps,
	}
	_, err := m.container.GetInstance(ctx, name, func(ctx context.Context) (interface{}, error) {
		return desc.Init(ctx, ic)
	})

	m.mu.Lock()
	if err != nil {
		e.state = StateFailed
		e.reason = err.Error()
		e.err = err
	} else {
		e.state = StateReady
	}
	m.mu.Unlock()

	if err != nil {
		report.Failed[name] = err
		m.errorHandler.Handle(ctx, err)
		return
	}

	report.Ready = append(report.Ready, name)
	m.logger.Info(ctx, "Plugin ready", "plugin", name, "version", desc.Version)
}

// recordBlocked traces every failed plugin to the plugins it kept from
// starting, directly or through a chain of skipped dependents.
func (m *Manager) recordBlocked(ctx context.Context, tasks []scheduler.Task, report *Report) {
	for _, name := range report.FailedNames() {
		var blocked []string
		for _, dependent := range scheduler.Dependents(tasks, name) {
			if _, skipped := report.Skipped[dependent]; skipped {
				blocked = append(blocked, dependent)
			}
		}
		if len(blocked) == 0 {
			continue
		}
		report.Blocked[name] = blocked
		m.logger.Warn(ctx, report.Failed[name], "Plugin failure blocked dependents",
			"plugin", name, "dependents", blocked)
	}
}

// resolveDependencies collects the capabilities of e's dependencies, or the
// reason e cannot start. Callers hold m.mu.
func (m *Manager) resolveDependencies(e *entry) (map[string]interface{}, *errors.PagesmithError) {
	deps := make(map[string]interface{}, len(e.desc.Dependencies))

	for _, dep := range e.desc.Dependencies {
		de, exists := m.entries[dep]
		if !exists {
			if m.strict {
				return nil, errors.ErrDependencyFailed(e.desc.Name, dep, "is missing")
			}
			continue
		}

		if de.state != StateReady {
			return nil, errors.ErrDependencyFailed(e.desc.Name, dep, "is "+string(de.state))
		}

		capability, ok := m.container.Get(dep)
		if !ok {
			return nil, errors.ErrDependencyFailed(e.desc.Name, dep, "has no capability")
		}
		deps[dep] = capability
	}

	return deps, nil
}

// fireReadyHooks runs OnReady for plugins that became ready and have not been
// notified during their current lifetime.
func (m *Manager) fireReadyHooks(ctx context.Context, names []string, report *Report) {
	for _, name := range names {
		m.mu.Lock()
		e := m.entries[name]
		if e.state != StateReady || e.readyFired {
			m.mu.Unlock()
			continue
		}
		e.readyFired = true
		hook := e.desc.OnReady
		m.mu.Unlock()

		if hook == nil {
			continue
		}

		capability, _ := m.container.Get(name)
		if err := callReady(ctx, name, hook, capability); err != nil {
			report.HookErrors[name] = err
			m.logger.Error(ctx, err, "Plugin ready hook failed", "plugin", name)
		}
	}
}

func callReady(ctx context.Context, name string, hook ReadyFunc, capability interface{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.FromPanic(name, r)
		}
	}()
	return hook(ctx, capability)
}

// Get returns the capability of a ready plugin.
func (m *Manager) Get(name string) (interface{}, bool) {
	m.mu.RLock()
	e, exists := m.entries[name]
	ready := exists && e.state == StateReady
	m.mu.RUnlock()

	if !ready {
		return nil, false
	}
	return m.container.Get(name)
}

// State returns the lifecycle state of a plugin.
func (m *Manager) State(name string) State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if e, exists := m.entries[name]; exists {
		return e.state
	}
	return StateUnknown
}

// Err returns the error that made a plugin fail or be skipped.
func (m *Manager) Err(name string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if e, exists := m.entries[name]; exists {
		return e.err
	}
	return nil
}

// ForEachReady visits ready plugins by descending preview priority, then
// registration order. Returning false stops the walk.
func (m *Manager) ForEachReady(fn func(ReadyPlugin) bool) {
	m.mu.RLock()
	ready := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		if e.state == StateReady {
			ready = append(ready, e)
		}
	}
	m.mu.RUnlock()

	sort.Slice(ready, func(i, j int) bool {
		if ready[i].desc.PreviewPriority != ready[j].desc.PreviewPriority {
			return ready[i].desc.PreviewPriority > ready[j].desc.PreviewPriority
		}
		return ready[i].index < ready[j].index
	})

	for _, e := range ready {
		capability, ok := m.container.Get(e.desc.Name)
		if !ok {
			continue
		}
		rp := ReadyPlugin{
			Name:            e.desc.Name,
			PreviewPriority: e.desc.PreviewPriority,
			Capability:      capability,
			preview:         e.desc.Preview,
		}
		if !fn(rp) {
			return
		}
	}
}

// PreviewFragments collects the preview markup of every ready plugin in
// ForEachReady order. Empty fragments are left out.
func (m *Manager) PreviewFragments() []Fragment {
	var fragments []Fragment

	m.ForEachReady(func(rp ReadyPlugin) bool {
		if !rp.HasPreview() {
			return true
		}
		html, err := safePreview(rp)
		if err != nil {
			m.logger.Warn(context.Background(), err, "Preview fragment failed", "plugin", rp.Name)
			return true
		}
		if html != "" {
			fragments = append(fragments, Fragment{Plugin: rp.Name, Priority: rp.PreviewPriority, HTML: html})
		}
		return true
	})

	return fragments
}

func safePreview(rp ReadyPlugin) (html string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.FromPanic(rp.Name, r)
		}
	}()
	return rp.preview(rp.Capability), nil
}

// Snippets returns the completion snippets of every ready plugin, keyed by
// plugin name.
func (m *Manager) Snippets() map[string]map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snippets := make(map[string]map[string]string)
	for name, e := range m.entries {
		if e.state != StateReady || e.desc.Snippets == nil {
			continue
		}
		if s := e.desc.Snippets(); len(s) > 0 {
			snippets[name] = s
		}
	}
	return snippets
}

// List describes every registered plugin in registration order.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]Info, 0, len(m.order))
	for _, name := range m.order {
		e := m.entries[name]
		infos = append(infos, Info{
			Name:            name,
			Version:         e.desc.Version,
			Description:     e.desc.Description,
			Dependencies:    e.desc.Dependencies,
			PreviewPriority: e.desc.PreviewPriority,
			State:           e.state,
			Reason:          e.reason,
			Hooks:           e.desc.Hooks(),
		})
	}
	return infos
}

// Shutdown tears down every capability and returns ready plugins to the
// registered state. A later InitializeAll starts a new lifetime.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	err := m.container.Shutdown(ctx)

	m.mu.Lock()
	for _, e := range m.entries {
		if e.state == StateReady {
			e.state = StateRegistered
		}
		e.readyFired = false
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Error(ctx, err, "Plugin shutdown reported errors")
	}
	return err
}
