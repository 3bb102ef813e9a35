package preview

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/conneroisu/pagesmith/internal/errors"
)

// placeholderPattern matches {{ path.to.value }}. Anything else inside
// braces, such as template actions, is left alone.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_\-]+(?:\.[A-Za-z0-9_\-]+)*)\s*\}\}`)

// Variables maps dotted keys (or nested maps) to placeholder values.
type Variables map[string]interface{}

// Lookup resolves a dotted path. A flat key wins over a nested walk, and the
// two forms can be mixed: {"user": {"address.city": "Oslo"}} resolves
// "user.address.city".
func (v Variables) Lookup(path string) (interface{}, bool) {
	return lookup(v, path)
}

func lookup(m map[string]interface{}, path string) (interface{}, bool) {
	if val, ok := m[path]; ok {
		return val, true
	}

	for i := strings.IndexByte(path, '.'); i >= 0; {
		if inner, ok := asMap(m[path[:i]]); ok {
			if val, found := lookup(inner, path[i+1:]); found {
				return val, true
			}
		}
		next := strings.IndexByte(path[i+1:], '.')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return nil, false
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case Variables:
		return m, true
	default:
		return nil, false
	}
}

// Resolve replaces every known placeholder in content. Unknown placeholders
// stay verbatim.
func Resolve(content string, vars Variables) string {
	if len(vars) == 0 || !strings.Contains(content, "{{") {
		return content
	}
	return placeholderPattern.ReplaceAllStringFunc(content, func(match string) string {
		path := placeholderPattern.FindStringSubmatch(match)[1]
		if val, ok := vars.Lookup(path); ok {
			return format(val)
		}
		return match
	})
}

// Placeholders lists the distinct placeholder paths in content, sorted.
func Placeholders(content string) []string {
	seen := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(content, -1) {
		seen[m[1]] = true
	}
	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Unresolved lists the placeholder paths in content that vars cannot resolve.
func Unresolved(content string, vars Variables) []string {
	var missing []string
	for _, p := range Placeholders(content) {
		if _, ok := vars.Lookup(p); !ok {
			missing = append(missing, p)
		}
	}
	return missing
}

func format(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// Nest expands dotted keys into nested maps so template actions can walk
// them, e.g. {"user.name": "Ana"} becomes {"user": {"name": "Ana"}}. Keys are
// applied in sorted order; a dotted key replaces a scalar sitting on one of
// its prefixes.
func (v Variables) Nest() map[string]interface{} {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]interface{}, len(v))
	for _, k := range keys {
		parts := strings.Split(k, ".")
		current := out
		for _, part := range parts[:len(parts)-1] {
			next, ok := current[part].(map[string]interface{})
			if !ok {
				next = make(map[string]interface{})
				current[part] = next
			}
			current = next
		}

		last := parts[len(parts)-1]
		if val, isMap := asMap(v[k]); isMap {
			existing, ok := current[last].(map[string]interface{})
			if !ok {
				existing = make(map[string]interface{})
				current[last] = existing
			}
			for ik, iv := range Variables(val).Nest() {
				existing[ik] = iv
			}
			continue
		}
		current[last] = v[k]
	}
	return out
}

// VariableSource supplies the variables for a render cycle.
type VariableSource interface {
	Variables() Variables
}

type staticVariables Variables

func (s staticVariables) Variables() Variables { return Variables(s) }

// StaticVariables returns a source that always yields vars.
func StaticVariables(vars Variables) VariableSource {
	return staticVariables(vars)
}

// VariableStore is a VariableSource whose contents can be swapped, for
// example when a variables file is edited.
type VariableStore struct {
	vars Variables
	mu   sync.RWMutex
}

// NewVariableStore creates a store holding vars.
func NewVariableStore(vars Variables) *VariableStore {
	return &VariableStore{vars: vars}
}

// Variables returns the current variables.
func (s *VariableStore) Variables() Variables {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vars
}

// Set replaces the variables.
func (s *VariableStore) Set(vars Variables) {
	s.mu.Lock()
	s.vars = vars
	s.mu.Unlock()
}

// LoadVariables reads a JSON or YAML variables file. The format follows the
// extension; anything other than .json is read as YAML.
func LoadVariables(path string) (Variables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read variables file: %w", err)
	}
	return ParseVariables(data, filepath.Ext(path))
}

// ParseVariables decodes variables in the format named by ext.
func ParseVariables(data []byte, ext string) (Variables, error) {
	vars := Variables{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return vars, nil
	}

	var err error
	if strings.EqualFold(ext, ".json") {
		err = json.Unmarshal(data, &vars)
	} else {
		err = yaml.Unmarshal(data, &vars)
	}
	if err != nil {
		return nil, errors.WrapValidation(err, errors.ErrCodeValidationFailed, "invalid variables document")
	}
	return vars, nil
}
