package pipeline

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrSourceLocked is returned when another run holds a source's lock.
var ErrSourceLocked = errors.New("in use by another run")

// Locker hands out per-source advisory file locks under a directory.
type Locker struct {
	dir string
}

// NewLocker returns a Locker that keeps lock files in dir.
func NewLocker(dir string) *Locker {
	return &Locker{dir: dir}
}

// Acquire takes the lock for source without blocking. The returned function
// releases it. A nil Locker hands out no-op locks.
func (l *Locker) Acquire(source string) (func(), error) {
	if l == nil || l.dir == "" {
		return func() {}, nil
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	abs, err := filepath.Abs(source)
	if err != nil {
		abs = source
	}
	sum := sha1.Sum([]byte(abs))
	lock := flock.New(filepath.Join(l.dir, hex.EncodeToString(sum[:])+".lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", source, err)
	}
	if !ok {
		return nil, ErrSourceLocked
	}
	return func() { _ = lock.Unlock() }, nil
}
