package plugins

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

// MockPlugin is a test plugin implementation
type MockPlugin struct {
	name     string
	deps     []string
	priority int
	initErr  error
	inits    int
	value    interface{}
	seenDeps map[string]interface{}
}

func (mp *MockPlugin) Name() string           { return mp.name }
func (mp *MockPlugin) Version() string        { return "0.1.0" }
func (mp *MockPlugin) Description() string    { return "Mock plugin for testing" }
func (mp *MockPlugin) Dependencies() []string { return mp.deps }
func (mp *MockPlugin) PreviewPriority() int   { return mp.priority }
func (mp *MockPlugin) Init(ctx context.Context, ic InitContext) (interface{}, error) {
	mp.inits++
	mp.seenDeps = make(map[string]interface{})
	for _, dep := range mp.deps {
		if capability, ok := ic.Dependency(dep); ok {
			mp.seenDeps[dep] = capability
		}
	}
	if mp.initErr != nil {
		return nil, mp.initErr
	}
	if mp.value != nil {
		return mp.value, nil
	}
	return mp.name + "-capability", nil
}

// MockPreviewPlugin adds every optional hook
type MockPreviewPlugin struct {
	MockPlugin
	fragment   string
	readyCalls int
	readyErr   error
}

func (mp *MockPreviewPlugin) PreviewFragment(capability interface{}) string { return mp.fragment }
func (mp *MockPreviewPlugin) Snippets() map[string]string {
	return map[string]string{mp.name: "<" + mp.name + "/>"}
}
func (mp *MockPreviewPlugin) OnReady(ctx context.Context, capability interface{}) error {
	mp.readyCalls++
	return mp.readyErr
}

func TestDescriptorForResolvesOptionalHooks(t *testing.T) {
	plain := DescriptorFor(&MockPlugin{name: "plain", deps: []string{"x"}, priority: 7})
	assert.Equal(t, "plain", plain.Name)
	assert.Equal(t, []string{"x"}, plain.Dependencies)
	assert.Equal(t, 7, plain.PreviewPriority)
	assert.NotNil(t, plain.Init)
	assert.Nil(t, plain.Preview)
	assert.Nil(t, plain.Snippets)
	assert.Nil(t, plain.OnReady)
	assert.Empty(t, plain.Hooks())

	full := DescriptorFor(&MockPreviewPlugin{MockPlugin: MockPlugin{name: "full"}, fragment: "<b>"})
	assert.NotNil(t, full.Preview)
	assert.NotNil(t, full.Snippets)
	assert.NotNil(t, full.OnReady)
	assert.Equal(t, []string{"preview", "snippets", "ready"}, full.Hooks())
	assert.Equal(t, "<b>", full.Preview(nil))
}

func TestDescriptorForCopiesDependencies(t *testing.T) {
	p := &MockPlugin{name: "p", deps: []string{"a"}}
	d := DescriptorFor(p)
	p.deps[0] = "changed"
	assert.Equal(t, []string{"a"}, d.Dependencies)
}

func TestInitContextString(t *testing.T) {
	ic := InitContext{Config: map[string]interface{}{"url": "https://cdn.example/x.js", "empty": "", "n": 3}}
	assert.Equal(t, "https://cdn.example/x.js", ic.String("url", "default"))
	assert.Equal(t, "default", ic.String("empty", "default"))
	assert.Equal(t, "default", ic.String("n", "default"))
	assert.Equal(t, "default", ic.String("missing", "default"))
}

func TestReportFailedNames(t *testing.T) {
	r := newReport(nil)
	r.Failed["b"] = assert.AnError
	r.Failed["a"] = assert.AnError
	assert.Equal(t, []string{"a", "b"}, r.FailedNames())
}
