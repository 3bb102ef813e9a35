// Package di owns the shared capabilities built by plugin initializers.
//
// A Container creates each named capability at most once. Concurrent callers
// asking for a name that is still being built wait on the same in-flight
// attempt instead of starting their own, and every one of them receives the
// same capability or the same failure. Failures are never cached: the next
// caller after a failed or timed out attempt starts a fresh one.
package di

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/conneroisu/pagesmith/internal/errors"
	"github.com/conneroisu/pagesmith/internal/logging"
)

// DefaultTimeout bounds a single initialization attempt.
const DefaultTimeout = 10 * time.Second

var errRemoved = stderrors.New("removed while initializing")

// InitFunc builds a capability.
type InitFunc func(ctx context.Context) (interface{}, error)

// Teardowner is implemented by capabilities that hold resources.
type Teardowner interface {
	Teardown(ctx context.Context) error
}

// Container is a name-keyed singleton registry.
type Container struct {
	instances map[string]interface{}
	created   []string
	creating  map[string]*flight // attempts currently running
	mu        sync.RWMutex

	timeout time.Duration
	logger  logging.Logger
}

// flight is one initialization attempt shared by every caller that asked for
// the name while it was running.
type flight struct {
	done      chan struct{}
	value     interface{}
	err       error
	abandoned bool // Remove ran while the attempt was in flight
}

// Option configures a Container.
type Option func(*Container)

// WithTimeout sets the per-attempt initialization timeout. Non-positive values
// keep the default.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Container) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithLogger sets the logger used for teardown and late-result reports.
func WithLogger(logger logging.Logger) Option {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger.WithComponent("di")
		}
	}
}

// NewContainer creates an empty container.
func NewContainer(opts ...Option) *Container {
	c := &Container{
		instances: make(map[string]interface{}),
		creating:  make(map[string]*flight),
		timeout:   DefaultTimeout,
		logger:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timeout returns the per-attempt initialization timeout.
func (c *Container) Timeout() time.Duration {
	return c.timeout
}

// GetInstance returns the capability registered under name, running init to
// create it when it does not exist yet. While an attempt is in flight, other
// callers for the same name wait for it and share its outcome.
func (c *Container) GetInstance(ctx context.Context, name string, init InitFunc) (interface{}, error) {
	if name == "" {
		return nil, errors.NewValidationError(errors.ErrCodeValidationFailed, "capability name is empty")
	}

	// First check - read lock
	c.mu.RLock()
	if instance, exists := c.instances[name]; exists {
		c.mu.RUnlock()
		return instance, nil
	}
	c.mu.RUnlock()

	// Second check with write lock - join or reserve the attempt
	c.mu.Lock()
	if instance, exists := c.instances[name]; exists {
		c.mu.Unlock()
		return instance, nil
	}
	if f, creating := c.creating[name]; creating {
		c.mu.Unlock()
		return c.wait(ctx, name, f)
	}
	if init == nil {
		c.mu.Unlock()
		return nil, errors.NewValidationError(
			errors.ErrCodeValidationFailed,
			"no init function for capability "+name,
		).WithComponent(name)
	}

	f := &flight{done: make(chan struct{})}
	c.creating[name] = f
	c.mu.Unlock()

	// Build without holding any locks
	value, err := c.run(ctx, name, init)

	c.mu.Lock()
	late := err == nil && f.abandoned
	if late {
		err = errors.ErrInitFailed(name, errRemoved)
	} else if err == nil {
		c.instances[name] = value
		c.created = append(c.created, name)
	}
	if c.creating[name] == f {
		delete(c.creating, name)
	}
	f.value, f.err = value, err
	c.mu.Unlock()
	close(f.done)

	if late {
		c.logger.Warn(ctx, nil, "Discarding capability removed during initialization", "capability", name)
		_ = c.teardown(ctx, name, value)
		return nil, err
	}
	return value, err
}

// wait blocks until the in-flight attempt for name resolves, then re-reads the
// instance table so a capability stored by that attempt is always returned.
func (c *Container) wait(ctx context.Context, name string, f *flight) (interface{}, error) {
	select {
	case <-f.done:
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for %s: %w", name, ctx.Err())
	}

	c.mu.RLock()
	instance, exists := c.instances[name]
	c.mu.RUnlock()
	if exists {
		return instance, nil
	}
	if f.err != nil {
		return nil, f.err
	}
	// The attempt succeeded but the capability was removed before we looked.
	return f.value, nil
}

type result struct {
	value interface{}
	err   error
}

// run executes init under the container timeout. A result that arrives after
// the deadline is torn down and discarded.
func (c *Container) run(ctx context.Context, name string, init InitFunc) (interface{}, error) {
	initCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	results := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				results <- result{err: errors.FromPanic(name, r)}
			}
		}()
		value, err := init(initCtx)
		results <- result{value: value, err: err}
	}()

	select {
	case res := <-results:
		if res.err == nil {
			return res.value, nil
		}
		// init gave up because its context expired
		if initCtx.Err() != nil && ctx.Err() == nil {
			return nil, errors.ErrInitializationTimeout(name, c.timeout)
		}
		return nil, errors.ErrInitFailed(name, res.err)
	case <-initCtx.Done():
	}

	go c.discardLate(name, results)

	if ctx.Err() != nil {
		return nil, fmt.Errorf("initialization of %s canceled: %w", name, ctx.Err())
	}
	return nil, errors.ErrInitializationTimeout(name, c.timeout)
}

func (c *Container) discardLate(name string, results <-chan result) {
	res := <-results
	if res.err != nil || res.value == nil {
		return
	}
	c.logger.Warn(context.Background(), nil, "Discarding capability that finished after timeout",
		"capability", name)
	c.teardown(context.Background(), name, res.value)
}

// Has reports whether a capability exists for name.
func (c *Container) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.instances[name]
	return exists
}

// Get returns an existing capability without initializing anything.
func (c *Container) Get(name string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	instance, exists := c.instances[name]
	return instance, exists
}

// Names returns the names of existing capabilities in creation order.
func (c *Container) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.created))
	copy(names, c.created)
	return names
}

// Remove drops the capability for name, calling its teardown hook when it has
// one. Teardown errors are logged. An attempt still in flight is abandoned:
// its callers get an error and a capability it builds is torn down. Remove
// reports whether anything was removed.
func (c *Container) Remove(ctx context.Context, name string) bool {
	abandoned := c.abandon(name)
	instance, ok := c.detach(name)
	if ok {
		_ = c.teardown(ctx, name, instance)
	}
	return ok || abandoned
}

// abandon forgets the in-flight attempt for name so the next caller starts a
// fresh one.
func (c *Container) abandon(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.creating[name]
	if !ok {
		return false
	}
	f.abandoned = true
	delete(c.creating, name)
	return true
}

// Shutdown removes every capability in reverse creation order and returns
// the joined teardown errors.
func (c *Container) Shutdown(ctx context.Context) error {
	names := c.Names()

	var errs []error
	for i := len(names) - 1; i >= 0; i-- {
		instance, ok := c.detach(names[i])
		if !ok {
			continue
		}
		if err := c.teardown(ctx, names[i], instance); err != nil {
			errs = append(errs, err)
		}
	}

	return stderrors.Join(errs...)
}

func (c *Container) detach(name string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	instance, exists := c.instances[name]
	if !exists {
		return nil, false
	}
	delete(c.instances, name)
	for i, n := range c.created {
		if n == name {
			c.created = append(c.created[:i], c.created[i+1:]...)
			break
		}
	}
	return instance, true
}

func (c *Container) teardown(ctx context.Context, name string, instance interface{}) (err error) {
	t, ok := instance.(Teardowner)
	if !ok {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = errors.FromPanic(name, r)
		}
		if err != nil {
			c.logger.Error(ctx, err, "Capability teardown failed", "capability", name)
		}
	}()

	if err := t.Teardown(ctx); err != nil {
		return fmt.Errorf("teardown %s: %w", name, err)
	}
	return nil
}
