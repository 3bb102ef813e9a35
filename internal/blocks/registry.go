package blocks

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/pagesmith/internal/errors"
)

// Registry holds the registered block types.
type Registry struct {
	types map[string]TypeDescriptor
	order []string
	mu    sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]TypeDescriptor)}
}

// RegisterType adds a block type. Ids are unique; a type without a render
// procedure uses Fallback and a type without a label gets one derived from
// its id.
func (r *Registry) RegisterType(d TypeDescriptor) error {
	d.ID = strings.TrimSpace(d.ID)
	if d.ID == "" {
		return errors.NewValidationError(errors.ErrCodeValidationFailed, "block type id is empty")
	}
	if d.Label == "" {
		d.Label = LabelFor(d.ID)
	}
	if d.Render == nil {
		d.Render = Fallback
	}
	d.DefaultConfig = copyMap(d.DefaultConfig)
	d.DefaultStyles = copyMap(d.DefaultStyles)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.types[d.ID]; exists {
		return errors.NewValidationError(
			errors.ErrCodeValidationFailed,
			"block type already registered: "+d.ID,
		).WithContext("type_id", d.ID)
	}
	r.types[d.ID] = d
	r.order = append(r.order, d.ID)
	return nil
}

// Type returns the descriptor registered under id.
func (r *Registry) Type(id string) (TypeDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.types[id]
	return d, ok
}

// Types returns every descriptor in registration order.
func (r *Registry) Types() []TypeDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]TypeDescriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.types[id])
	}
	return out
}

// LabelFor derives a human readable label from a type id, so "image-gallery"
// becomes "Image Gallery".
func LabelFor(id string) string {
	words := strings.FieldsFunc(id, func(r rune) bool {
		return r == '-' || r == '_' || r == '.'
	})
	return cases.Title(language.English).String(strings.Join(words, " "))
}

// catalogFile is the YAML layout read by LoadCatalog.
type catalogFile struct {
	Types []struct {
		ID        string                 `yaml:"id"`
		Label     string                 `yaml:"label"`
		Container bool                   `yaml:"container"`
		Render    string                 `yaml:"render"`
		Config    map[string]interface{} `yaml:"config"`
		Styles    map[string]interface{} `yaml:"styles"`
	} `yaml:"types"`
}

// LoadCatalog registers the types described by a YAML catalog. Each type is
// bound to renderers[render], where render defaults to the type id; types
// with no matching renderer use Fallback. The catalog is validated before
// anything is registered.
func (r *Registry) LoadCatalog(reader io.Reader, renderers map[string]RenderFunc) ([]string, error) {
	var file catalogFile
	if err := yaml.NewDecoder(reader).Decode(&file); err != nil && err != io.EOF {
		return nil, errors.WrapValidation(err, errors.ErrCodeValidationFailed, "invalid block catalog")
	}

	seen := make(map[string]bool, len(file.Types))
	for i, t := range file.Types {
		if t.ID == "" {
			return nil, errors.NewValidationError(
				errors.ErrCodeValidationFailed,
				fmt.Sprintf("catalog entry %d has no id", i),
			)
		}
		if _, exists := r.Type(t.ID); exists || seen[t.ID] {
			return nil, errors.NewValidationError(
				errors.ErrCodeValidationFailed,
				"block type already registered: "+t.ID,
			).WithContext("type_id", t.ID)
		}
		seen[t.ID] = true
	}

	ids := make([]string, 0, len(file.Types))
	for _, t := range file.Types {
		name := t.Render
		if name == "" {
			name = t.ID
		}
		if err := r.RegisterType(TypeDescriptor{
			ID:            t.ID,
			Label:         t.Label,
			DefaultConfig: t.Config,
			DefaultStyles: t.Styles,
			IsContainer:   t.Container,
			Render:        renderers[name],
		}); err != nil {
			return ids, err
		}
		ids = append(ids, t.ID)
	}

	sort.Strings(ids)
	return ids, nil
}
