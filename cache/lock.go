package cache

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/jmgilman/go/errors"
	"github.com/jmgilman/gitwire"
)

const defaultLockRetry = 100 * time.Millisecond

// LockManager serializes access to cache slots. A slot lock is an in-process
// semaphore plus an exclusive flock on <dir>/<key>.lock, so it holds across
// concurrent goroutines and concurrent gitwire processes alike.
//
// Lock files live on the local filesystem regardless of the Manager's billy
// filesystem.
type LockManager struct {
	dir        string
	retryDelay time.Duration

	slots map[string]chan struct{}
	mu    sync.Mutex
}

// NewLockManager creates a lock manager keeping lock files in dir.
func NewLockManager(dir string) *LockManager {
	return &LockManager{
		dir:        dir,
		retryDelay: defaultLockRetry,
		slots:      make(map[string]chan struct{}),
	}
}

// Acquire blocks until the slot lock for key is held or ctx is done. The returned
// release func is idempotent.
func (l *LockManager) Acquire(ctx context.Context, key string) (func(), error) {
	slot := l.slot(key)

	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, l.lockError(ctx.Err(), key, "interrupted waiting for slot lock")
	}

	file, err := l.fileLock(key)
	if err != nil {
		<-slot
		return nil, err
	}

	ok, err := file.TryLockContext(ctx, l.retryDelay)
	if err != nil || !ok {
		<-slot
		if err == nil {
			err = ctx.Err()
		}
		return nil, l.lockError(err, key, "failed to lock slot")
	}

	return l.releaser(slot, file), nil
}

// TryAcquire takes the slot lock for key only if it is free. ok is false when
// another goroutine or process holds it.
func (l *LockManager) TryAcquire(key string) (release func(), ok bool, err error) {
	slot := l.slot(key)

	select {
	case slot <- struct{}{}:
	default:
		return nil, false, nil
	}

	file, err := l.fileLock(key)
	if err != nil {
		<-slot
		return nil, false, err
	}

	locked, err := file.TryLock()
	if err != nil {
		<-slot
		return nil, false, l.lockError(err, key, "failed to lock slot")
	}
	if !locked {
		<-slot
		return nil, false, nil
	}

	return l.releaser(slot, file), true, nil
}

// LockPath returns the lock file used for key.
func (l *LockManager) LockPath(key string) string {
	return filepath.Join(l.dir, key+".lock")
}

func (l *LockManager) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot, ok := l.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[key] = slot
	}
	return slot
}

func (l *LockManager) fileLock(key string) (*flock.Flock, error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, l.lockError(err, key, "failed to create lock directory")
	}
	return flock.New(l.LockPath(key)), nil
}

func (l *LockManager) releaser(slot chan struct{}, file *flock.Flock) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			_ = file.Unlock()
			<-slot
		})
	}
}

func (l *LockManager) lockError(err error, key, msg string) error {
	return errors.WithContextMap(errors.Wrap(err, gitwire.CodeLock, msg), map[string]interface{}{
		"key":  key,
		"path": l.LockPath(key),
	})
}
