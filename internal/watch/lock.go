package watch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// ErrAlreadyWatched is returned when another process holds the lock for
// the same root.
var ErrAlreadyWatched = errors.New("another inkwatch instance is already watching this directory")

// LockPath returns the lock file for root. It lives in dir (the OS temp
// directory when empty) so the watched tree itself stays untouched.
func LockPath(dir, root string) string {
	if dir == "" {
		dir = os.TempDir()
	}

	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(filepath.Clean(root))))

	return filepath.Join(dir, "inkwatch-"+id.String()+".lock")
}

// InstanceLock guards a watch root against concurrent watchers.
type InstanceLock struct {
	lock *flock.Flock
}

// AcquireLock takes the lock for root without blocking.
func AcquireLock(dir, root string) (*InstanceLock, error) {
	fl := flock.New(LockPath(dir, root))

	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}

	if !ok {
		return nil, fmt.Errorf("%w: %s (lock %s)", ErrAlreadyWatched, root, fl.Path())
	}

	return &InstanceLock{lock: fl}, nil
}

// Path returns the lock file path.
func (l *InstanceLock) Path() string { return l.lock.Path() }

// Release unlocks the lock. The lock file itself stays on disk.
func (l *InstanceLock) Release() error {
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}

	return nil
}
