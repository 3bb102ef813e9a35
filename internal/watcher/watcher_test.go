package watcher

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type batchRecorder struct {
	mu      sync.Mutex
	batches [][]ChangeEvent
}

func (r *batchRecorder) handle(_ context.Context, events []ChangeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, events)
	return nil
}

func (r *batchRecorder) emit(events []ChangeEvent) {
	_ = r.handle(context.Background(), events)
}

func (r *batchRecorder) all() [][]ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]ChangeEvent(nil), r.batches...)
}

func (r *batchRecorder) paths() map[string]bool {
	seen := make(map[string]bool)
	for _, batch := range r.all() {
		for _, ev := range batch {
			seen[ev.Path] = true
		}
	}
	return seen
}

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
	}{
		{EventTypeCreated, "created"},
		{EventTypeModified, "modified"},
		{EventTypeDeleted, "deleted"},
		{EventTypeRenamed, "renamed"},
		{EventType(99), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

func TestDebouncerCoalescesByPath(t *testing.T) {
	rec := &batchRecorder{}
	d := NewDebouncer(30*time.Millisecond, rec.emit)

	d.Add(ChangeEvent{Path: "b.html", Type: EventTypeCreated})
	d.Add(ChangeEvent{Path: "a.html", Type: EventTypeModified})
	d.Add(ChangeEvent{Path: "b.html", Type: EventTypeModified})
	assert.Equal(t, 2, d.Pending())

	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)

	batches := rec.all()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 2)
	assert.Equal(t, "a.html", batches[0][0].Path)
	assert.Equal(t, "b.html", batches[0][1].Path)
	assert.Equal(t, EventTypeModified, batches[0][1].Type)
	assert.Zero(t, d.Pending())
}

func TestDebouncerRestartsQuietPeriod(t *testing.T) {
	rec := &batchRecorder{}
	d := NewDebouncer(50*time.Millisecond, rec.emit)

	for i := 0; i < 5; i++ {
		d.Add(ChangeEvent{Path: "page.html"})
		time.Sleep(15 * time.Millisecond)
	}
	assert.Empty(t, rec.all())

	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestDebouncerFlushAndStop(t *testing.T) {
	rec := &batchRecorder{}
	d := NewDebouncer(time.Hour, rec.emit)

	d.Flush()
	assert.Empty(t, rec.all())

	d.Add(ChangeEvent{Path: "x"})
	d.Flush()
	require.Len(t, rec.all(), 1)

	d.Add(ChangeEvent{Path: "y"})
	d.Stop()
	d.Add(ChangeEvent{Path: "z"})
	assert.Zero(t, d.Pending())
	d.Flush()
	assert.Len(t, rec.all(), 1)
}

func TestWatchFileReportsOnlyThatFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "page.html")
	other := filepath.Join(dir, "other.html")
	require.NoError(t, os.WriteFile(target, []byte("<p>1</p>"), 0o644))

	fw, err := NewFileWatcher(30 * time.Millisecond)
	require.NoError(t, err)
	defer fw.Stop()

	rec := &batchRecorder{}
	fw.AddHandler(rec.handle)
	require.NoError(t, fw.WatchFile(target))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))

	require.NoError(t, os.WriteFile(other, []byte("ignored"), 0o644))
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(target, []byte("<p>changed</p>"), 0o644))
	}

	require.Eventually(t, func() bool { return rec.paths()[target] }, 3*time.Second, 10*time.Millisecond)
	assert.False(t, rec.paths()[other])
}

func TestAddRecursiveWithFilters(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))

	fw, err := NewFileWatcher(30 * time.Millisecond)
	require.NoError(t, err)
	defer fw.Stop()

	rec := &batchRecorder{}
	fw.AddHandler(rec.handle)
	fw.AddFilter(ExtensionFilter(".html"))
	fw.AddFilter(NoEditorTempFilter)
	require.NoError(t, fw.AddRecursive(dir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))

	nested := filepath.Join(sub, "nested.html")
	require.NoError(t, os.WriteFile(filepath.Join(sub, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "nested.html~"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(nested, []byte("x"), 0o644))

	require.Eventually(t, func() bool { return rec.paths()[nested] }, 3*time.Second, 10*time.Millisecond)
	for path := range rec.paths() {
		assert.Equal(t, ".html", filepath.Ext(path))
	}
}

func TestHandlerErrorsDoNotStopProcessing(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "page.html")
	require.NoError(t, os.WriteFile(target, []byte("a"), 0o644))

	fw, err := NewFileWatcher(20 * time.Millisecond)
	require.NoError(t, err)
	defer fw.Stop()

	rec := &batchRecorder{}
	fw.AddHandler(func(context.Context, []ChangeEvent) error { return stderrors.New("boom") })
	fw.AddHandler(rec.handle)
	require.NoError(t, fw.WatchFile(target))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))

	require.NoError(t, os.WriteFile(target, []byte("b"), 0o644))
	require.Eventually(t, func() bool { return len(rec.all()) >= 1 }, 3*time.Second, 10*time.Millisecond)
}

func TestPathValidation(t *testing.T) {
	fw, err := NewFileWatcher(10 * time.Millisecond)
	require.NoError(t, err)
	defer fw.Stop()

	assert.Error(t, fw.AddPath(""))
	assert.Error(t, fw.AddPath(filepath.Join(t.TempDir(), "missing")))
	assert.Error(t, fw.WatchFile(filepath.Join(t.TempDir(), "missing.html")))
	assert.Error(t, fw.AddRecursive(filepath.Join(t.TempDir(), "missing")))
	assert.NoError(t, fw.AddPath(t.TempDir()))
}

func TestStopIsIdempotent(t *testing.T) {
	fw, err := NewFileWatcher(10 * time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, fw.Start(context.Background()))

	assert.NoError(t, fw.Stop())
	assert.NoError(t, fw.Stop())
}

func TestFilters(t *testing.T) {
	html := ExtensionFilter(".html", ".HTM")
	assert.True(t, html("a/page.html"))
	assert.True(t, html("a/PAGE.HTM"))
	assert.False(t, html("a/page.md"))

	assert.False(t, NoEditorTempFilter("page.html~"))
	assert.False(t, NoEditorTempFilter(".page.html.swp"))
	assert.False(t, NoEditorTempFilter(".#page.html"))
	assert.False(t, NoEditorTempFilter("#page.html#"))
	assert.True(t, NoEditorTempFilter("page.html"))

	assert.False(t, NoVendorFilter("vendor/pkg/x.html"))
	assert.False(t, NoVendorFilter("site/node_modules/x.html"))
	assert.True(t, NoVendorFilter("site/vendors.html"))

	assert.False(t, NoGitFilter(".git/config"))
	assert.False(t, NoGitFilter("site/.git/HEAD"))
	assert.True(t, NoGitFilter("site/page.html"))
}
