package botrun

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrAlreadyRunning reports that another bot process holds the lock.
var ErrAlreadyRunning = errors.New("another convertbot instance is already running")

// acquireLock takes the process lock without blocking.
func acquireLock(path string) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock %s)", ErrAlreadyRunning, path)
	}
	return lock, nil
}

// Locked reports whether a bot process currently holds the lock at path.
func Locked(path string) (bool, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	other := flock.New(path)
	ok, err := other.TryLock()
	if err != nil {
		return false, err
	}
	if ok {
		_ = other.Unlock()
		return false, nil
	}
	return true, nil
}
