// Package storage provides the file-backed primitives shared by every ergo
// store: advisory sidecar locks, atomic document rewrites, JSONL append and
// scan, and a single-slot consume-on-read store.
//
// Each on-disk resource (ledger, thresholds, policy table, staged proposals,
// flag slots) owns its own lock; no lock spans resources. Locks are held for
// the duration of a single read-modify-write, never across process lifetime.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// ErrLockBusy is returned by try-lock acquisition when another process holds
// the resource. Background writers treat it as "drop the write"; interactive
// callers surface it.
var ErrLockBusy = errors.New("resource lock busy")

// lockSuffix is appended to a resource path to name its sidecar lock file.
const lockSuffix = ".lock"

// Lock is a held advisory lock on one resource.
type Lock struct {
	file *os.File
}

// Release unlocks and closes the sidecar file. Safe to call once.
func (l *Lock) Release() {
	if l == nil || l.file == nil {
		return
	}
	_ = syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN) //nolint:errcheck // unlock best-effort
	_ = l.file.Close()                                   //nolint:errcheck // close best-effort
	l.file = nil
}

// AcquireLock blocks until the exclusive lock on path's sidecar is held.
func AcquireLock(path string) (*Lock, error) {
	return acquire(path, false)
}

// TryAcquireLock attempts the exclusive lock without blocking, returning
// ErrLockBusy if another process holds it.
func TryAcquireLock(path string) (*Lock, error) {
	return acquire(path, true)
}

func acquire(path string, nonblock bool) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(path+lockSuffix, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	how := syscall.LOCK_EX
	if nonblock {
		how |= syscall.LOCK_NB
	}
	if err := syscall.Flock(int(f.Fd()), how); err != nil {
		_ = f.Close() //nolint:errcheck // cleanup in error path
		if nonblock && (errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EAGAIN)) {
			return nil, ErrLockBusy
		}
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}
	return &Lock{file: f}, nil
}

// WithLock runs fn while holding the exclusive lock on path's sidecar.
func WithLock(path string, fn func() error) error {
	lock, err := AcquireLock(path)
	if err != nil {
		return err
	}
	defer lock.Release()
	return fn()
}

// TryWithLock is WithLock with non-blocking acquisition. Returns ErrLockBusy
// without running fn when the lock is contended.
func TryWithLock(path string, fn func() error) error {
	lock, err := TryAcquireLock(path)
	if err != nil {
		return err
	}
	defer lock.Release()
	return fn()
}

// syncDir fsyncs a directory so renames and creates within it are durable.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir for sync: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync dir %s: %w", dir, err)
	}
	return nil
}
