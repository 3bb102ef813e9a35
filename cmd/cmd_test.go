package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/pagesmith/internal/logging"
	"github.com/conneroisu/pagesmith/internal/preview"
	"github.com/conneroisu/pagesmith/internal/watcher"
)

const testTree = `[
  {"typeId": "hero", "config": {"title": "Hello {{ site.name }}"}},
  {"typeId": "html", "config": {"html": "<p>{% if .site.name %}named{% end %}</p>"}}
]`

// execute runs the root command with args in a clean configuration state.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	viper.Reset()
	cfgFile = ""
	resetFlags(rootCmd)
	t.Cleanup(viper.Reset)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// resetFlags returns every flag to its default so that values do not leak
// between runs of the shared command tree.
func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	})
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// chdirTemp runs the test from an empty directory.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
	return dir
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestVersionCommand(t *testing.T) {
	chdirTemp(t)

	out, err := execute(t, "version", "--format", "json")
	require.NoError(t, err)

	var info map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.NotEmpty(t, info["version"])

	out, err = execute(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(strings.TrimSpace(out), "\n")+1)

	_, err = execute(t, "version", "--format", "xml")
	assert.Error(t, err)
}

func TestBlocksCommand(t *testing.T) {
	dir := chdirTemp(t)

	out, err := execute(t, "blocks")
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "hero")
	assert.Contains(t, out, "grid")

	catalog := writeFile(t, dir, "catalog.yml", `types:
  - id: pricing-card
    label: Pricing
    render: section
    container: true
`)
	out, err = execute(t, "blocks", "--catalog", catalog, "-o", "json")
	require.NoError(t, err)

	var infos []blockTypeInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	require.NotEmpty(t, infos)
	last := infos[len(infos)-1]
	assert.Equal(t, "pricing-card", last.ID)
	assert.Equal(t, "Pricing", last.Label)
	assert.True(t, last.Container)
}

func TestBlocksCommandRejectsBadOutput(t *testing.T) {
	chdirTemp(t)

	_, err := execute(t, "blocks", "-o", "xml")
	assert.Error(t, err)
}

func TestRenderCommand(t *testing.T) {
	dir := chdirTemp(t)
	tree := writeFile(t, dir, "page.json", testTree)
	vars := writeFile(t, dir, "vars.yml", "site:\n  name: Acme\n")

	out, err := execute(t, "render", "--tree", tree, "--vars", vars)
	require.NoError(t, err)

	assert.Contains(t, out, "<!DOCTYPE html>")
	assert.Contains(t, out, "<h1>Hello Acme</h1>")
	assert.Contains(t, out, "<p>named</p>")
}

func TestRenderCommandWritesFile(t *testing.T) {
	dir := chdirTemp(t)
	tree := writeFile(t, dir, "page.json", testTree)
	target := filepath.Join(dir, "out.html")

	_, err := execute(t, "render", "--tree", tree, "--out", target)
	require.NoError(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Hello {{ site.name }}")
}

func TestRenderCommandUsesConfigFile(t *testing.T) {
	dir := chdirTemp(t)
	writeFile(t, dir, "page.json", `{"typeId": "text", "config": {"text": "from config"}}`)
	writeFile(t, dir, ".pagesmith.yml", "preview:\n  title: Configured Title\n")

	out, err := execute(t, "render")
	require.NoError(t, err)
	assert.Contains(t, out, "<title>Configured Title</title>")
	assert.Contains(t, out, "from config")
}

func TestRenderCommandErrors(t *testing.T) {
	dir := chdirTemp(t)

	_, err := execute(t, "render", "--tree", filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := writeFile(t, dir, "bad.json", `[{"typeId": "carousel"}]`)
	_, err = execute(t, "render", "--tree", bad)
	assert.Error(t, err)
}

func TestPluginsCommand(t *testing.T) {
	chdirTemp(t)

	out, err := execute(t, "plugins", "-o", "yaml", "--snippets")
	require.NoError(t, err)

	var listing struct {
		Order   []string `yaml:"order"`
		Plugins []struct {
			Name  string `yaml:"name"`
			State string `yaml:"state"`
		} `yaml:"plugins"`
		Snippets map[string]map[string]string `yaml:"snippets"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &listing))

	states := make(map[string]string)
	for _, p := range listing.Plugins {
		states[p.Name] = p.State
	}
	assert.Equal(t, "ready", states["gotemplate"])
	assert.Equal(t, "ready", states["tailwind"])
	assert.Contains(t, listing.Order, "alpine")
	assert.Contains(t, listing.Snippets, "gotemplate")
}

func TestPluginsCommandHonoursDisabled(t *testing.T) {
	dir := chdirTemp(t)
	writeFile(t, dir, ".pagesmith.yml", "plugins:\n  disabled: [tailwind]\n")

	out, err := execute(t, "plugins")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")

	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "tailwind ") {
			assert.Contains(t, line, "disabled")
		}
	}
}

func TestFlagValidation(t *testing.T) {
	tests := []struct {
		name    string
		fn      func(string) error
		value   string
		wantErr bool
	}{
		{"port ok", validatePort, "8080", false},
		{"port zero", validatePort, "0", false},
		{"port too large", validatePort, "70000", true},
		{"port not a number", validatePort, "http", true},
		{"format table", validateOutputFormat, "table", false},
		{"format unknown", validateOutputFormat, "csv", true},
		{"file empty", validateFileExists, "", false},
		{"file missing", validateFileExists, "/definitely/not/here.json", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestServeRejectsBadPort(t *testing.T) {
	chdirTemp(t)

	_, err := execute(t, "serve", "--port", "99999")
	assert.Error(t, err)
}

type recordingSurface struct {
	mu   sync.Mutex
	docs []preview.Document
}

func (r *recordingSurface) Deliver(_ context.Context, doc preview.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs = append(r.docs, doc)
	return nil
}

func (r *recordingSurface) last() (preview.Document, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.docs) == 0 {
		return preview.Document{}, false
	}
	return r.docs[len(r.docs)-1], true
}

func TestSessionReloadsOnChanges(t *testing.T) {
	dir := chdirTemp(t)
	tree := writeFile(t, dir, "page.json", testTree)
	vars := writeFile(t, dir, "vars.yml", "site:\n  name: Acme\n")

	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("preview.variables_file", vars)

	a, err := newApp()
	require.NoError(t, err)
	defer a.close(context.Background())

	ctx := context.Background()
	_, err = a.initPlugins(ctx)
	require.NoError(t, err)

	surface := &recordingSurface{}
	pipeline := preview.NewPipeline(surface, append(a.pipelineOptions(), preview.WithDebounce(10*time.Millisecond))...)
	defer pipeline.Close()

	s := &session{app: a, pipeline: pipeline, treeFile: tree, varsFile: vars}
	require.NoError(t, s.reloadTree(ctx))
	pipeline.Flush()

	doc, ok := surface.last()
	require.True(t, ok)
	assert.Contains(t, doc.HTML, "Hello Acme")

	writeFile(t, dir, "vars.yml", "site:\n  name: Globex\n")
	require.NoError(t, s.handleChanges(ctx, []watcher.ChangeEvent{{Type: watcher.EventTypeModified, Path: vars}}))
	require.Eventually(t, func() bool {
		doc, ok := surface.last()
		return ok && strings.Contains(doc.HTML, "Hello Globex")
	}, 2*time.Second, 5*time.Millisecond)

	writeFile(t, dir, "page.json", `{"typeId": "text", "config": {"text": "rewritten for {{ site.name }}"}}`)
	require.NoError(t, s.handleChanges(ctx, []watcher.ChangeEvent{{Type: watcher.EventTypeModified, Path: tree}}))
	require.Eventually(t, func() bool {
		doc, ok := surface.last()
		return ok && strings.Contains(doc.HTML, "rewritten for Globex")
	}, 2*time.Second, 5*time.Millisecond)

	writeFile(t, dir, "vars.yml", "site: [unclosed\n")
	assert.Error(t, s.handleChanges(ctx, []watcher.ChangeEvent{{Type: watcher.EventTypeModified, Path: vars}}))
	name, ok := a.variables.Variables().Lookup("site.name")
	assert.True(t, ok)
	assert.Equal(t, "Globex", name)
}

// newTestSession wires a session over tree and vars with a short debounce.
func newTestSession(t *testing.T, tree, vars string) (*session, *recordingSurface) {
	t.Helper()

	viper.Reset()
	t.Cleanup(viper.Reset)
	if vars != "" {
		viper.Set("preview.variables_file", vars)
	}

	a, err := newApp()
	require.NoError(t, err)
	t.Cleanup(func() { a.close(context.Background()) })

	_, err = a.initPlugins(context.Background())
	require.NoError(t, err)

	surface := &recordingSurface{}
	pipeline := preview.NewPipeline(surface, append(a.pipelineOptions(), preview.WithDebounce(10*time.Millisecond))...)
	t.Cleanup(func() { pipeline.Close() })

	return &session{app: a, pipeline: pipeline, treeFile: tree, varsFile: vars}, surface
}

func TestSessionBatchWithUnchangedTree(t *testing.T) {
	dir := chdirTemp(t)
	tree := writeFile(t, dir, "page.json", testTree)
	vars := writeFile(t, dir, "vars.yml", "site:\n  name: Acme\n")
	s, surface := newTestSession(t, tree, vars)

	ctx := context.Background()
	require.NoError(t, s.reloadTree(ctx))
	s.pipeline.Flush()

	// An editor that saves both files touches the tree without changing it.
	writeFile(t, dir, "vars.yml", "site:\n  name: Globex\n")
	require.NoError(t, s.handleChanges(ctx, []watcher.ChangeEvent{
		{Type: watcher.EventTypeModified, Path: tree},
		{Type: watcher.EventTypeModified, Path: vars},
	}))
	require.Eventually(t, func() bool {
		doc, ok := surface.last()
		return ok && strings.Contains(doc.HTML, "Hello Globex")
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSessionWarnsOnUnresolvedPlaceholders(t *testing.T) {
	dir := chdirTemp(t)
	tree := writeFile(t, dir, "page.json", `{"typeId": "text", "config": {"text": "Hi {{ user.name }}"}}`)
	s, _ := newTestSession(t, tree, "")

	var buf bytes.Buffer
	s.app.logger = logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.LevelInfo,
		Format: "text",
		Output: &buf,
	})

	require.NoError(t, s.reloadTree(context.Background()))
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "Unresolved placeholders")
	assert.Contains(t, buf.String(), "user.name")
}

func TestSamePath(t *testing.T) {
	chdirTemp(t)
	cwd, err := os.Getwd()
	require.NoError(t, err)
	abs := filepath.Join(cwd, "page.json")

	assert.True(t, samePath("page.json", abs))
	assert.False(t, samePath("other.json", abs))
}
