package blocks

import (
	"context"
	"io"
	"strings"

	"github.com/a-h/templ"

	"github.com/conneroisu/pagesmith/internal/errors"
)

// Render renders every root block depth first. The tree is read locked for
// the whole walk, so edits made concurrently land entirely before or after.
func (t *Tree) Render(ctx context.Context) (string, error) {
	var sb strings.Builder
	if err := t.Component().Render(ctx, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// RenderNode renders one block and its subtree.
func (t *Tree) RenderNode(ctx context.Context, id string) (string, error) {
	var sb strings.Builder
	err := t.locked(func(ctx context.Context, w io.Writer) error {
		if _, exists := t.instances[id]; !exists {
			return errors.ErrBlockNotFound(id)
		}
		return t.node(id).Render(ctx, w)
	}).Render(ctx, &sb)
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Component renders the roots of the tree when rendered.
func (t *Tree) Component() templ.Component {
	return t.locked(func(ctx context.Context, w io.Writer) error {
		for _, id := range t.roots {
			if err := t.node(id).Render(ctx, w); err != nil {
				return err
			}
		}
		return nil
	})
}

// locked wraps fn in a component that holds the read lock and turns render
// procedure panics into errors.
func (t *Tree) locked(fn func(ctx context.Context, w io.Writer) error) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) (err error) {
		t.mu.RLock()
		defer t.mu.RUnlock()

		defer func() {
			if r := recover(); r != nil {
				err = errors.FromPanic("blocks", r)
			}
		}()

		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(ctx, w)
	})
}

// node builds the component for id. Callers hold t.mu.
func (t *Tree) node(id string) templ.Component {
	inst, exists := t.instances[id]
	if !exists {
		return failed(errors.ErrBlockNotFound(id))
	}
	desc, ok := t.registry.Type(inst.TypeID)
	if !ok {
		return failed(errors.ErrUnknownBlockType(inst.TypeID))
	}

	children := make([]templ.Component, 0, len(inst.Children))
	for _, child := range inst.Children {
		children = append(children, t.node(child))
	}

	return desc.Render(snapshot(inst), templ.Join(children...))
}

func failed(err error) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return err
	})
}
