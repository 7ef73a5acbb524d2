package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperation_String(t *testing.T) {
	assert.Equal(t, "CREATE", OpCreate.String())
	assert.Equal(t, "MODIFY", OpModify.String())
	assert.Equal(t, "DELETE", OpDelete.String())
	assert.Equal(t, "RENAME", OpRename.String())
	assert.Equal(t, "UNKNOWN", Operation(99).String())
}

func TestOptions_WithDefaults(t *testing.T) {
	// Given: options with only a debounce window
	opts := Options{DebounceWindow: 10 * time.Millisecond}.WithDefaults()

	// Then: the rest are defaulted
	assert.Equal(t, 10*time.Millisecond, opts.DebounceWindow)
	assert.Equal(t, 5*time.Second, opts.PollInterval)
	assert.Equal(t, 100, opts.EventBufferSize)
	assert.Equal(t, DefaultSuffixes, opts.Suffixes)
}

func TestOptions_Matches(t *testing.T) {
	opts := DefaultOptions()
	tests := []struct {
		path string
		want bool
	}{
		{"inv-17.txt", true},
		{"inv-17.meta.yaml", true},
		{"acme/2024/inv-17.txt", true},
		{"INV-17.TXT", false},
		{"inv-17.pdf", false},
		{"notes.yaml", false},
		{".hidden.txt", false},
		{".taxctx/state.txt", false},
		{"acme/.tmp/inv.txt", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, opts.Matches(tt.path))
		})
	}
}

func collectBatch(t *testing.T, events <-chan []FileEvent, timeout time.Duration) []FileEvent {
	t.Helper()
	select {
	case batch, ok := <-events:
		require.True(t, ok, "events channel closed")
		return batch
	case <-time.After(timeout):
		t.Fatal("timeout waiting for events")
		return nil
	}
}

func startWatcher(t *testing.T, opts Options, dir string) *HybridWatcher {
	t.Helper()
	w, err := NewHybridWatcher(opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Start(ctx, dir) }()
	t.Cleanup(func() {
		cancel()
		_ = w.Stop()
	})
	time.Sleep(200 * time.Millisecond) // let the watcher register
	return w
}

func TestHybridWatcher_ReportsInboxFilesOnly(t *testing.T) {
	// Given: a watched inbox
	dir := t.TempDir()
	w := startWatcher(t, Options{DebounceWindow: 50 * time.Millisecond}, dir)

	// When: a text file, a sidecar and an unrelated file are written
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inv.txt"), []byte("Invoice No: 17"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inv.meta.yaml"), []byte("id: inv"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inv.pdf"), []byte("%PDF"), 0o644))

	// Then: only the inbox files are reported
	batch := collectBatch(t, w.Events(), 3*time.Second)
	paths := make([]string, 0, len(batch))
	for _, e := range batch {
		paths = append(paths, e.Path)
	}
	assert.Contains(t, paths, "inv.txt")
	assert.NotContains(t, paths, "inv.pdf")
}

func TestHybridWatcher_ReportsDeletion(t *testing.T) {
	// Given: an inbox with an existing file
	dir := t.TempDir()
	path := filepath.Join(dir, "bank.txt")
	require.NoError(t, os.WriteFile(path, []byte("statement"), 0o644))
	w := startWatcher(t, Options{DebounceWindow: 50 * time.Millisecond}, dir)

	// When: the file is removed
	require.NoError(t, os.Remove(path))

	// Then: a delete is reported
	batch := collectBatch(t, w.Events(), 3*time.Second)
	require.Len(t, batch, 1)
	assert.Equal(t, "bank.txt", batch[0].Path)
	assert.Equal(t, OpDelete, batch[0].Operation)
}

func TestHybridWatcher_Polling(t *testing.T) {
	// Given: a polling watcher
	dir := t.TempDir()
	w := startWatcher(t, Options{
		DebounceWindow: 20 * time.Millisecond,
		PollInterval:   50 * time.Millisecond,
		ForcePolling:   true,
	}, dir)
	assert.Equal(t, "polling", w.WatcherType())

	// When: a file appears in a subdirectory
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "acme"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "acme", "gst.txt"), []byte("GSTR-3B"), 0o644))

	// Then: it is reported as created
	batch := collectBatch(t, w.Events(), 3*time.Second)
	require.Len(t, batch, 1)
	assert.Equal(t, filepath.Join("acme", "gst.txt"), batch[0].Path)
	assert.Equal(t, OpCreate, batch[0].Operation)
}

func TestHybridWatcher_StartInvalidPath(t *testing.T) {
	// Given: a watcher
	w, err := NewHybridWatcher(DefaultOptions())
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	// When: starting on a missing directory
	err = w.Start(context.Background(), filepath.Join(t.TempDir(), "missing"))

	// Then: it fails
	assert.Error(t, err)
}

func TestHybridWatcher_StopClosesChannelsAndIsIdempotent(t *testing.T) {
	// Given: a watcher
	w, err := NewHybridWatcher(DefaultOptions())
	require.NoError(t, err)

	// When: stopping twice
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	// Then: both channels are closed
	_, ok := <-w.Events()
	assert.False(t, ok)
	_, ok = <-w.Errors()
	assert.False(t, ok)
}

func TestHybridWatcher_ContextCancelStops(t *testing.T) {
	// Given: a running watcher
	w, err := NewHybridWatcher(DefaultOptions())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(ctx, t.TempDir()) }()
	time.Sleep(100 * time.Millisecond)

	// When: the context is cancelled
	cancel()

	// Then: Start returns the context error
	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
