// Package watcher watches a document inbox directory and emits debounced
// batches of file events for the files that make up inbox items.
//
// fsnotify is used when available, with polling as a fallback for
// filesystems where it fails (network mounts, some container volumes).
// Hidden files and directories are never reported.
package watcher

import (
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates a new file was created.
	OpCreate Operation = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file was deleted.
	OpDelete
	// OpRename indicates a file was renamed away. The new name arrives as
	// a separate create.
	OpRename
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent represents a file system event.
type FileEvent struct {
	// Path is relative to the watched root.
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// DefaultSuffixes are the inbox file suffixes: extracted text and its
// metadata sidecar.
var DefaultSuffixes = []string{".txt", ".meta.yaml", ".meta.yml"}

// Options configures the watcher behavior.
type Options struct {
	// DebounceWindow is the time to wait before emitting coalesced events.
	DebounceWindow time.Duration
	// PollInterval is the scan interval in polling mode.
	PollInterval time.Duration
	// EventBufferSize is the number of batches buffered before dropping.
	EventBufferSize int
	// Suffixes restricts reported files by name suffix. Empty uses
	// DefaultSuffixes.
	Suffixes []string
	// ForcePolling skips fsnotify.
	ForcePolling bool
	// Logger receives dropped-batch warnings. Nil uses slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  500 * time.Millisecond,
		PollInterval:    5 * time.Second,
		EventBufferSize: 100,
		Suffixes:        DefaultSuffixes,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = d.DebounceWindow
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = d.EventBufferSize
	}
	if len(o.Suffixes) == 0 {
		o.Suffixes = d.Suffixes
	}
	return o
}

// Matches reports whether a file at relPath is reported.
func (o Options) Matches(relPath string) bool {
	if hidden(relPath) {
		return false
	}
	name := filepath.Base(relPath)
	for _, s := range o.Suffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

// hidden reports whether any element of relPath starts with a dot.
func hidden(relPath string) bool {
	for _, part := range strings.Split(filepath.ToSlash(relPath), "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}
