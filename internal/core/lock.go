package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"
)

// LockFile is created in the root directory while a build runs.
const LockFile = ".conveyor.lock"

// ErrLocked is returned when another invocation holds the build lock.
var ErrLocked = errors.New("another conveyor run holds the build lock")

// BuildLock serializes conveyor invocations on one project directory.
type BuildLock struct {
	fl *flock.Flock
}

// AcquireLock takes the advisory lock in root, waiting up to wait for it.
// A zero wait fails immediately with ErrLocked when the lock is held.
func AcquireLock(ctx context.Context, root string, wait time.Duration) (*BuildLock, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	fl := flock.New(filepath.Join(root, LockFile))

	var ok bool
	var err error
	if wait <= 0 {
		ok, err = fl.TryLock()
	} else {
		lctx, cancel := context.WithTimeout(ctx, wait)
		defer cancel()
		ok, err = fl.TryLockContext(lctx, 100*time.Millisecond)
		if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("acquire build lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	log.Debug().Str("path", fl.Path()).Msg("Acquired build lock")
	return &BuildLock{fl: fl}, nil
}

// Release unlocks. It is safe to call more than once.
func (l *BuildLock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("release build lock: %w", err)
	}
	return nil
}
