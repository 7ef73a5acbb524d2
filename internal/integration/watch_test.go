package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bikash9609/ca-ai/internal/index"
	"github.com/Bikash9609/ca-ai/internal/logging"
	"github.com/Bikash9609/ca-ai/internal/watcher"
)

// startWatch runs a watcher over inbox that feeds a coordinator until the
// test ends.
func startWatch(t *testing.T, e *env, inbox string, polling bool) {
	t.Helper()
	coord, err := index.NewCoordinator(index.CoordinatorConfig{
		Root:          inbox,
		Indexer:       e.indexer,
		DefaultClient: "walk-in",
		Logger:        logging.Discard(),
	})
	require.NoError(t, err)

	w, err := watcher.NewHybridWatcher(watcher.Options{
		DebounceWindow: 100 * time.Millisecond,
		PollInterval:   100 * time.Millisecond,
		ForcePolling:   polling,
	}.WithDefaults())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Start(ctx, inbox)
	}()
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case batch, ok := <-w.Events():
				if !ok {
					return
				}
				_ = coord.HandleEvents(ctx, batch)
			}
		}
	}()
	t.Cleanup(func() {
		cancel()
		_ = w.Stop()
		<-done
	})

	// Give the watcher time to register the root.
	time.Sleep(200 * time.Millisecond)
}

func chunkCount(t *testing.T, e *env, documentID string) func() int {
	return func() int {
		chunks, err := e.store.GetDocumentChunks(context.Background(), documentID)
		if err != nil {
			return -1
		}
		return len(chunks)
	}
}

func TestWatch_InboxLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	for _, polling := range []bool{false, true} {
		name := "fsnotify"
		if polling {
			name = "polling"
		}
		t.Run(name, func(t *testing.T) {
			// Given: a watched inbox
			e := newEnv(t)
			inbox := t.TempDir()
			startWatch(t, e, inbox, polling)
			count := chunkCount(t, e, "acme-apr")

			// When: an item and its sidecar land
			writeFile(t, filepath.Join(inbox, "statement.meta.yaml"), "id: acme-apr\nclient: acme\ndoc_type: bank_statement\n")
			writeFile(t, filepath.Join(inbox, "statement.txt"), acmeStatement)

			// Then: it is indexed under the sidecar id
			require.Eventually(t, func() bool { return count() > 0 }, 5*time.Second, 50*time.Millisecond)
			doc, err := e.store.GetDocument(context.Background(), "acme-apr")
			require.NoError(t, err)
			require.NotNil(t, doc)
			assert.Equal(t, "acme", doc.ClientID)

			// When: the text file is removed
			require.NoError(t, os.Remove(filepath.Join(inbox, "statement.txt")))

			// Then: its chunks are deleted
			assert.Eventually(t, func() bool { return count() == 0 }, 5*time.Second, 50*time.Millisecond)
		})
	}
}

func TestWatch_HiddenFilesIgnored(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Given: a watched inbox
	e := newEnv(t)
	inbox := t.TempDir()
	startWatch(t, e, inbox, false)

	// When: a hidden draft and a visible item land
	writeFile(t, filepath.Join(inbox, ".draft.txt"), globexStatement)
	writeFile(t, filepath.Join(inbox, "notes.txt"), acmeStatement)

	// Then: only the visible item is indexed
	require.Eventually(t, func() bool { return chunkCount(t, e, "notes")() > 0 }, 5*time.Second, 50*time.Millisecond)
	stats, err := e.store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)
}
