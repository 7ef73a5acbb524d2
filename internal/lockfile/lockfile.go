// Package lockfile serializes writers across processes sharing one data
// directory.
package lockfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// Name is the lock file created inside the data directory.
const Name = ".write.lock"

// WriteLock is an exclusive advisory lock on <dir>/.write.lock.
type WriteLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// New creates a write lock for dir. Nothing is acquired yet.
func New(dir string) *WriteLock {
	path := filepath.Join(dir, Name)
	return &WriteLock{path: path, flock: flock.New(path)}
}

// Lock blocks until the lock is acquired or ctx is done, polling every
// retryDelay.
func (l *WriteLock) Lock(ctx context.Context, retryDelay time.Duration) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	if retryDelay <= 0 {
		retryDelay = 100 * time.Millisecond
	}

	ok, err := l.flock.TryLockContext(ctx, retryDelay)
	if err != nil {
		return fmt.Errorf("acquire write lock %s: %w", l.path, err)
	}
	if !ok {
		return fmt.Errorf("acquire write lock %s: not acquired", l.path)
	}
	l.locked = true
	return nil
}

// TryLock attempts the lock without blocking.
func (l *WriteLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire write lock %s: %w", l.path, err)
	}
	l.locked = ok
	return ok, nil
}

// Unlock releases the lock. Safe to call when not held.
func (l *WriteLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release write lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *WriteLock) Path() string { return l.path }
