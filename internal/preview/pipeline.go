// Package preview turns raw editor content into a preview document.
//
// Updates are debounced: a burst of UpdatePreview calls inside the debounce
// window produces one render of the last content. Every render carries a
// sequence number and only the newest render started is delivered, so a slow
// render can never overwrite a fresher one.
package preview

import (
	"context"
	"sync"
	"time"

	"github.com/conneroisu/pagesmith/internal/errors"
	"github.com/conneroisu/pagesmith/internal/logging"
	"github.com/conneroisu/pagesmith/internal/plugins"
)

// DefaultDebounce is the quiet period before a render starts.
const DefaultDebounce = 500 * time.Millisecond

// DefaultTemplatePlugin names the plugin whose capability expands templates.
const DefaultTemplatePlugin = "gotemplate"

// Surface receives finished documents.
type Surface interface {
	Deliver(ctx context.Context, doc Document) error
}

// SurfaceFunc adapts a function to Surface.
type SurfaceFunc func(ctx context.Context, doc Document) error

// Deliver calls f.
func (f SurfaceFunc) Deliver(ctx context.Context, doc Document) error {
	return f(ctx, doc)
}

// Catalog is the read side of the plugin manager the pipeline needs.
type Catalog interface {
	Get(name string) (interface{}, bool)
	ForEachReady(fn func(plugins.ReadyPlugin) bool)
	PreviewFragments() []plugins.Fragment
}

// TemplateExpander is implemented by template capabilities.
type TemplateExpander interface {
	Expand(ctx context.Context, content string, data map[string]interface{}) (string, error)
}

// Document is one delivered render.
type Document struct {
	HTML       string    `json:"html"`
	Content    string    `json:"-"`
	Seq        uint64    `json:"seq"`
	RenderedAt time.Time `json:"renderedAt"`
}

// RenderContext is the immutable input of one render.
type RenderContext struct {
	Content   string
	Variables Variables
	Seq       uint64
	Timestamp time.Time
}

// State is the scheduling state of the pipeline.
type State int

const (
	StateIdle State = iota
	StateScheduled
	StateRendering
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScheduled:
		return "scheduled"
	case StateRendering:
		return "rendering"
	default:
		return "unknown"
	}
}

// Stats counts pipeline activity.
type Stats struct {
	Requested     uint64 `json:"requested"`
	Dropped       uint64 `json:"dropped"`
	Scheduled     uint64 `json:"scheduled"`
	Rendered      uint64 `json:"rendered"`
	Delivered     uint64 `json:"delivered"`
	Superseded    uint64 `json:"superseded"`
	StageFailures uint64 `json:"stageFailures"`
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithDebounce sets the debounce window. Non-positive values keep the default.
func WithDebounce(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.debounce = d
		}
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(logger logging.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger.WithComponent("preview")
		}
	}
}

// WithVariables sets where placeholder values come from.
func WithVariables(src VariableSource) Option {
	return func(p *Pipeline) {
		if src != nil {
			p.vars = src
		}
	}
}

// WithCatalog sets the plugin catalog used for templates and fragments.
func WithCatalog(c Catalog) Option {
	return func(p *Pipeline) {
		p.catalog = c
	}
}

// WithTemplatePlugin names the plugin whose capability expands templates.
func WithTemplatePlugin(name string) Option {
	return func(p *Pipeline) {
		p.templatePlugin = name
	}
}

// WithDocument sets the document shell options.
func WithDocument(opts DocumentOptions) Option {
	return func(p *Pipeline) {
		p.document = opts
	}
}

type stage struct {
	name string
	fn   func(ctx context.Context, rc RenderContext, in string) (string, error)
}

// Pipeline schedules and runs renders.
type Pipeline struct {
	surface        Surface
	catalog        Catalog
	vars           VariableSource
	templatePlugin string
	document       DocumentOptions
	debounce       time.Duration
	logger         logging.Logger
	errorHandler   *errors.ErrorHandler
	stages         []stage

	mu         sync.Mutex
	timer      *time.Timer
	gen        uint64 // bumped whenever the pending timer is replaced or canceled
	pending    string
	hasPending bool
	forced     bool // Refresh asked for a render that has not started yet
	last       string
	hasLast    bool
	seq        uint64 // sequence of the newest render started
	inflight   int
	stats      Stats
	closed     bool
	deliverMu  sync.Mutex
	wg         sync.WaitGroup
}

// NewPipeline creates a pipeline that delivers to surface.
func NewPipeline(surface Surface, opts ...Option) *Pipeline {
	p := &Pipeline{
		surface:        surface,
		vars:           StaticVariables(nil),
		templatePlugin: DefaultTemplatePlugin,
		debounce:       DefaultDebounce,
		logger:         logging.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.errorHandler = errors.NewErrorHandler(p.logger)
	p.stages = []stage{
		{name: "variables", fn: p.resolveVariables},
		{name: "template", fn: p.expandTemplate},
		{name: "assemble", fn: p.assemble},
	}
	return p
}

// UpdatePreview schedules a render of raw after the debounce window,
// replacing any render still waiting. Content identical to the last render
// started cancels the waiting render and is otherwise ignored, unless the
// render was asked for by Refresh; that render then goes ahead with raw.
func (p *Pipeline) UpdatePreview(raw string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.stats.Requested++

	if p.hasLast && raw == p.last {
		switch {
		case !p.forced:
			p.cancelPending()
		case p.pending != raw:
			p.schedule(raw)
			return
		}
		p.stats.Dropped++
		return
	}
	p.schedule(raw)
}

// Refresh re-renders the pending content, or the last rendered content when
// nothing is pending, for example after the variables changed.
func (p *Pipeline) Refresh() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	switch {
	case p.hasPending:
		p.schedule(p.pending)
	case p.hasLast:
		p.schedule(p.last)
	default:
		return
	}
	p.forced = true
}

// Flush starts the waiting render now instead of at the end of the window.
func (p *Pipeline) Flush() {
	p.mu.Lock()
	if !p.hasPending || p.closed {
		p.mu.Unlock()
		return
	}
	p.timer.Stop()
	p.gen++
	gen := p.gen
	p.mu.Unlock()

	p.fire(gen)
}

// schedule replaces the pending render. Callers hold p.mu.
func (p *Pipeline) schedule(content string) {
	if p.timer != nil {
		p.timer.Stop()
	}
	p.gen++
	gen := p.gen
	p.pending = content
	p.hasPending = true
	p.stats.Scheduled++
	p.timer = time.AfterFunc(p.debounce, func() { p.fire(gen) })
}

// cancelPending drops the waiting render. Callers hold p.mu.
func (p *Pipeline) cancelPending() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.gen++
	p.pending = ""
	p.hasPending = false
	p.forced = false
}

// fire starts the render scheduled under gen unless it has been replaced.
func (p *Pipeline) fire(gen uint64) {
	p.mu.Lock()
	if p.closed || !p.hasPending || gen != p.gen {
		p.mu.Unlock()
		return
	}
	content := p.pending
	p.pending = ""
	p.hasPending = false
	p.forced = false
	p.timer = nil
	p.seq++
	seq := p.seq
	p.last = content
	p.hasLast = true
	p.inflight++
	p.wg.Add(1)
	p.mu.Unlock()

	defer p.wg.Done()

	ctx := context.Background()
	doc := p.render(ctx, content, seq)

	p.mu.Lock()
	p.inflight--
	p.mu.Unlock()

	p.deliver(ctx, doc)
}

func (p *Pipeline) deliver(ctx context.Context, doc Document) {
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()

	p.mu.Lock()
	current := doc.Seq == p.seq && !p.closed
	if !current {
		p.stats.Superseded++
	}
	p.mu.Unlock()

	if !current {
		p.logger.Debug(ctx, "Discarding superseded render", "seq", doc.Seq)
		return
	}
	if p.surface == nil {
		return
	}

	if err := p.surface.Deliver(ctx, doc); err != nil {
		p.logger.Error(ctx, err, "Preview delivery failed", "seq", doc.Seq)
		return
	}

	p.mu.Lock()
	p.stats.Delivered++
	p.mu.Unlock()
}

// RenderNow renders raw synchronously without touching the schedule. The
// document is returned, not delivered.
func (p *Pipeline) RenderNow(ctx context.Context, raw string) (Document, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return Document{}, errors.NewValidationError(errors.ErrCodeValidationFailed, "preview pipeline is closed")
	}
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	return p.render(ctx, raw, 0), nil
}

func (p *Pipeline) render(ctx context.Context, content string, seq uint64) Document {
	perf := logging.StartOperation(p.logger, "preview_render")

	rc := RenderContext{
		Content:   content,
		Variables: p.vars.Variables(),
		Seq:       seq,
		Timestamp: time.Now(),
	}

	out := content
	for _, s := range p.stages {
		out = p.runStage(ctx, s, rc, out)
	}

	p.mu.Lock()
	p.stats.Rendered++
	p.mu.Unlock()

	perf.End(ctx, "seq", seq, "bytes", len(out))
	return Document{HTML: out, Content: content, Seq: seq, RenderedAt: time.Now()}
}

// runStage applies one stage. A failing or panicking stage is logged and its
// input passed through.
func (p *Pipeline) runStage(ctx context.Context, s stage, rc RenderContext, in string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			p.stageFailed(ctx, s.name, errors.FromPanic("preview."+s.name, r))
			out = in
		}
	}()

	result, err := s.fn(ctx, rc, in)
	if err != nil {
		p.stageFailed(ctx, s.name, err)
		return in
	}
	return result
}

func (p *Pipeline) stageFailed(ctx context.Context, name string, err error) {
	p.mu.Lock()
	p.stats.StageFailures++
	p.mu.Unlock()

	if pe, ok := err.(*errors.PagesmithError); ok && pe.Component == "" {
		pe.WithComponent("preview." + name)
	}
	p.errorHandler.Handle(ctx, err)
}

func (p *Pipeline) resolveVariables(_ context.Context, rc RenderContext, in string) (string, error) {
	return Resolve(in, rc.Variables), nil
}

func (p *Pipeline) expandTemplate(ctx context.Context, rc RenderContext, in string) (string, error) {
	expander := p.expander()
	if expander == nil {
		return in, nil
	}
	out, err := expander.Expand(ctx, in, rc.Variables.Nest())
	if err != nil {
		return "", errors.ErrTemplateStage(err)
	}
	return out, nil
}

// expander finds the template capability: the configured plugin first, then
// any ready plugin whose capability can expand templates.
func (p *Pipeline) expander() TemplateExpander {
	if p.catalog == nil {
		return nil
	}
	if p.templatePlugin != "" {
		if capability, ok := p.catalog.Get(p.templatePlugin); ok {
			if te, ok := capability.(TemplateExpander); ok {
				return te
			}
		}
	}

	var found TemplateExpander
	p.catalog.ForEachReady(func(rp plugins.ReadyPlugin) bool {
		if te, ok := rp.Capability.(TemplateExpander); ok {
			found = te
			return false
		}
		return true
	})
	return found
}

func (p *Pipeline) assemble(ctx context.Context, _ RenderContext, in string) (string, error) {
	var fragments []plugins.Fragment
	if p.catalog != nil {
		fragments = p.catalog.PreviewFragments()
	}
	return Assemble(ctx, in, fragments, p.document)
}

// State reports whether a render is waiting, running or neither.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.hasPending:
		return StateScheduled
	case p.inflight > 0:
		return StateRendering
	default:
		return StateIdle
	}
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Close cancels any waiting render and waits for running ones to finish.
// Renders finishing after Close are not delivered.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.cancelPending()
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}
