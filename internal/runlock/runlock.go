// Package runlock guards a storage root against concurrent runs. Two runs
// writing the same buckets would interleave their captures, so commands
// take this lock before touching screenshots.
package runlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process already holds the run lock.
var ErrLocked = errors.New("another run is already in progress")

// Lock is a held run lock.
type Lock struct {
	flock *flock.Flock
	path  string
}

// Acquire takes the run lock at the given path without blocking.
// It returns ErrLocked when another process holds it.
func Acquire(path string) (*Lock, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory %s: %w", dir, err)
	}

	fl := flock.New(path)
	acquired, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock at %s: %w", path, err)
	}
	if !acquired {
		return nil, fmt.Errorf("run lock %s is held: %w", path, ErrLocked)
	}

	return &Lock{
		flock: fl,
		path:  path,
	}, nil
}

// Release drops the lock and removes the lock file.
func (l *Lock) Release() error {
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release run lock at %s: %w", l.path, err)
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file %s: %w", l.path, err)
	}
	return nil
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}
