package blocks

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/conneroisu/pagesmith/internal/errors"
)

// Tree is an arena of block instances. Roots and children are ordered id
// lists. Instances created but not yet attached are kept in the arena and
// are not rendered.
type Tree struct {
	registry  *Registry
	instances map[string]*Instance
	parents   map[string]string
	roots     []string
	mu        sync.RWMutex

	newID func() string
}

// TreeOption configures a Tree.
type TreeOption func(*Tree)

// WithIDGenerator replaces the uuid generator, mostly for tests.
func WithIDGenerator(gen func() string) TreeOption {
	return func(t *Tree) {
		if gen != nil {
			t.newID = gen
		}
	}
}

// NewTree creates an empty tree whose instances resolve types in registry.
func NewTree(registry *Registry, opts ...TreeOption) *Tree {
	t := &Tree{
		registry:  registry,
		instances: make(map[string]*Instance),
		parents:   make(map[string]string),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Registry returns the registry the tree resolves types in.
func (t *Tree) Registry() *Registry {
	return t.registry
}

// CreateInstance adds a detached instance of typeID to the arena. Config and
// styles are the type defaults with the overrides merged on top.
func (t *Tree) CreateInstance(typeID string, ov Overrides) (Instance, error) {
	desc, ok := t.registry.Type(typeID)
	if !ok {
		return Instance{}, errors.ErrUnknownBlockType(typeID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	id := ov.ID
	if id == "" {
		id = t.newID()
	}
	if _, exists := t.instances[id]; exists {
		return Instance{}, errors.ErrInvalidTree("duplicate block id: " + id).WithContext("block_id", id)
	}

	inst := &Instance{
		ID:     id,
		TypeID: typeID,
		Config: merge(desc.DefaultConfig, ov.Config),
		Styles: merge(desc.DefaultStyles, ov.Styles),
	}
	t.instances[id] = inst

	return snapshot(inst), nil
}

// AddRoot appends a detached instance to the top level.
func (t *Tree) AddRoot(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.instances[id]; !exists {
		return errors.ErrBlockNotFound(id)
	}
	if err := t.checkDetached(id); err != nil {
		return err
	}
	t.roots = append(t.roots, id)
	return nil
}

// AddChild appends childID to parentID's children.
func (t *Tree) AddChild(parentID, childID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	parent, err := t.attachable(parentID, childID)
	if err != nil {
		return err
	}
	parent.Children = append(parent.Children, childID)
	t.parents[childID] = parentID
	return nil
}

// InsertChild places childID at index among parentID's children.
func (t *Tree) InsertChild(parentID, childID string, index int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	parent, err := t.attachable(parentID, childID)
	if err != nil {
		return err
	}
	if index < 0 || index > len(parent.Children) {
		return errors.ErrInvalidTree(fmt.Sprintf("index %d out of range for block %s", index, parentID))
	}

	children := make([]string, 0, len(parent.Children)+1)
	children = append(children, parent.Children[:index]...)
	children = append(children, childID)
	children = append(children, parent.Children[index:]...)
	parent.Children = children
	t.parents[childID] = parentID
	return nil
}

// attachable validates attaching childID under parentID. Callers hold t.mu.
func (t *Tree) attachable(parentID, childID string) (*Instance, error) {
	parent, exists := t.instances[parentID]
	if !exists {
		return nil, errors.ErrBlockNotFound(parentID)
	}
	if _, exists := t.instances[childID]; !exists {
		return nil, errors.ErrBlockNotFound(childID)
	}

	desc, ok := t.registry.Type(parent.TypeID)
	if !ok {
		return nil, errors.ErrUnknownBlockType(parent.TypeID)
	}
	if !desc.IsContainer {
		return nil, errors.ErrNotAContainer(parentID, parent.TypeID)
	}

	if err := t.checkDetached(childID); err != nil {
		return nil, err
	}
	for ancestor, ok := parentID, true; ok; ancestor, ok = t.parents[ancestor] {
		if ancestor == childID {
			return nil, errors.ErrInvalidTree(
				fmt.Sprintf("block %s cannot be nested inside its own subtree", childID),
			).WithContext("block_id", childID)
		}
	}
	return parent, nil
}

func (t *Tree) checkDetached(id string) error {
	if p, attached := t.parents[id]; attached {
		return errors.ErrInvalidTree(fmt.Sprintf("block %s already belongs to %s", id, p)).
			WithContext("block_id", id)
	}
	for _, root := range t.roots {
		if root == id {
			return errors.ErrInvalidTree(fmt.Sprintf("block %s is already a root", id)).
				WithContext("block_id", id)
		}
	}
	return nil
}

// RemoveChild detaches childID from parentID and destroys its subtree.
func (t *Tree) RemoveChild(parentID, childID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	parent, exists := t.instances[parentID]
	if !exists {
		return errors.ErrBlockNotFound(parentID)
	}

	index := indexOf(parent.Children, childID)
	if index < 0 {
		return errors.ErrBlockNotFound(childID).WithContext("parent_id", parentID)
	}

	parent.Children = append(parent.Children[:index:index], parent.Children[index+1:]...)
	t.destroy(childID)
	return nil
}

// RemoveRoot removes a top-level block and destroys its subtree.
func (t *Tree) RemoveRoot(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	index := indexOf(t.roots, id)
	if index < 0 {
		return errors.ErrBlockNotFound(id)
	}

	t.roots = append(t.roots[:index:index], t.roots[index+1:]...)
	t.destroy(id)
	return nil
}

func (t *Tree) destroy(id string) {
	inst, exists := t.instances[id]
	if !exists {
		return
	}
	for _, child := range inst.Children {
		t.destroy(child)
	}
	delete(t.instances, id)
	delete(t.parents, id)
}

// UpdateConfig merges patch into a block's config. A nil value deletes the
// key.
func (t *Tree) UpdateConfig(id string, patch map[string]interface{}) error {
	return t.update(id, patch, func(inst *Instance) map[string]interface{} { return inst.Config })
}

// UpdateStyles merges patch into a block's styles. A nil value deletes the
// key.
func (t *Tree) UpdateStyles(id string, patch map[string]interface{}) error {
	return t.update(id, patch, func(inst *Instance) map[string]interface{} { return inst.Styles })
}

func (t *Tree) update(id string, patch map[string]interface{}, field func(*Instance) map[string]interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	inst, exists := t.instances[id]
	if !exists {
		return errors.ErrBlockNotFound(id)
	}

	target := field(inst)
	for k, v := range patch {
		if v == nil {
			delete(target, k)
			continue
		}
		target[k] = deepCopy(v)
	}
	return nil
}

// Get returns a snapshot of a block.
func (t *Tree) Get(id string) (Instance, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	inst, exists := t.instances[id]
	if !exists {
		return Instance{}, false
	}
	return snapshot(inst), true
}

// Parent returns the id of the block's parent.
func (t *Tree) Parent(id string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.parents[id]
	return p, ok
}

// Roots returns the top-level block ids in order.
func (t *Tree) Roots() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.roots...)
}

// Len returns the number of instances in the arena, attached or not.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.instances)
}

func snapshot(inst *Instance) Instance {
	return Instance{
		ID:       inst.ID,
		TypeID:   inst.TypeID,
		Config:   copyMap(inst.Config),
		Styles:   copyMap(inst.Styles),
		Children: append([]string(nil), inst.Children...),
	}
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
