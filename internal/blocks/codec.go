package blocks

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/conneroisu/pagesmith/internal/errors"
)

// Export returns the attached blocks as nested nodes.
func (t *Tree) Export() []Node {
	t.mu.RLock()
	defer t.mu.RUnlock()

	nodes := make([]Node, 0, len(t.roots))
	for _, id := range t.roots {
		nodes = append(nodes, t.export(id))
	}
	return nodes
}

func (t *Tree) export(id string) Node {
	inst := t.instances[id]
	n := Node{
		ID:     inst.ID,
		TypeID: inst.TypeID,
		Config: copyMap(inst.Config),
		Styles: copyMap(inst.Styles),
	}
	for _, child := range inst.Children {
		n.Children = append(n.Children, t.export(child))
	}
	return n
}

// MarshalJSON encodes the attached blocks in the nested import format.
func (t *Tree) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Export())
}

// Decode builds a new tree from nested JSON: either an array of root nodes or
// a single root node. Any invalid node fails the whole decode.
func Decode(registry *Registry, data []byte, opts ...TreeOption) (*Tree, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return NewTree(registry, opts...), nil
	}

	var nodes []Node
	if trimmed[0] == '{' {
		var single Node
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeBlock, errors.ErrCodeInvalidTree, "invalid block tree json")
		}
		nodes = []Node{single}
	} else if err := json.Unmarshal(trimmed, &nodes); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeBlock, errors.ErrCodeInvalidTree, "invalid block tree json")
	}

	return FromNodes(registry, nodes, opts...)
}

// FromNodes builds a new tree from nested nodes.
func FromNodes(registry *Registry, nodes []Node, opts ...TreeOption) (*Tree, error) {
	t := NewTree(registry, opts...)
	for i, n := range nodes {
		id, err := t.build(n, fmt.Sprintf("[%d]", i))
		if err != nil {
			return nil, err
		}
		if err := t.AddRoot(id); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Tree) build(n Node, path string) (string, error) {
	if n.TypeID == "" {
		return "", errors.ErrInvalidTree("block at " + path + " has no typeId").WithContext("path", path)
	}

	inst, err := t.CreateInstance(n.TypeID, Overrides{ID: n.ID, Config: n.Config, Styles: n.Styles})
	if err != nil {
		return "", withPath(err, path)
	}

	for i, child := range n.Children {
		childPath := fmt.Sprintf("%s.children[%d]", path, i)
		childID, err := t.build(child, childPath)
		if err != nil {
			return "", err
		}
		if err := t.AddChild(inst.ID, childID); err != nil {
			return "", withPath(err, childPath)
		}
	}
	return inst.ID, nil
}

func withPath(err error, path string) error {
	if pe, ok := err.(*errors.PagesmithError); ok {
		return pe.WithContext("path", path)
	}
	return err
}
