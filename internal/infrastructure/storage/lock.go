package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"ArticlePublisher/internal/domain"
	"ArticlePublisher/internal/ports"
)

// FileLock is an advisory flock(2) lock next to the state file.
// The kernel drops it when the process dies, so a crash never leaves it stale.
type FileLock struct {
	path string
}

var _ ports.Locker = (*FileLock)(nil)

// NewFileLock derives the lock path from the state file path.
func NewFileLock(statePath string) *FileLock {
	return &FileLock{path: statePath + ".lock"}
}

// Path returns the lock file location.
func (l *FileLock) Path() string {
	return l.path
}

// Acquire takes the lock without blocking and fails with
// domain.ErrLockContention when another run holds it.
func (l *FileLock) Acquire(exclusive bool) (func() error, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	fl := flock.New(l.path)
	var (
		ok  bool
		err error
	)
	if exclusive {
		ok, err = fl.TryLock()
	} else {
		ok, err = fl.TryRLock()
	}
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", l.path, err)
	}
	if !ok {
		return nil, fmt.Errorf("lock %s: %w", l.path, domain.ErrLockContention)
	}
	return fl.Unlock, nil
}
