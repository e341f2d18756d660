package cache

import (
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/jmgilman/gitwire/internal/logging"
)

// WithFilesystem sets the billy filesystem used for slots and metadata.
// Defaults to osfs.New("/"). Intended for tests with memfs.
func WithFilesystem(fs billy.Filesystem) Option {
	return func(opts *managerOptions) {
		opts.fs = fs
	}
}

// WithLogger sets the logger. Defaults to a nop logger.
func WithLogger(logger *logging.Logger) Option {
	return func(opts *managerOptions) {
		opts.logger = logger
	}
}

// WithLocks enables slot locking. Prune and Clear skip slots whose lock is held,
// and Locks returns the manager so fetchers can share it.
func WithLocks(locks *LockManager) Option {
	return func(opts *managerOptions) {
		opts.locks = locks
	}
}

// WithClock overrides time.Now for access bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(opts *managerOptions) {
		opts.now = now
	}
}

// PruneOlderThan removes slots not accessed within maxAge.
//
//	manager.Prune(ctx, PruneOlderThan(7*24*time.Hour))
func PruneOlderThan(maxAge time.Duration) PruneStrategy {
	return &pruneOlderThan{maxAge: maxAge}
}

// PruneToSize removes least recently accessed slots until the total size of the
// cache is at most maxBytes.
//
//	manager.Prune(ctx, PruneToSize(10*1024*1024*1024))
func PruneToSize(maxBytes int64) PruneStrategy {
	return &pruneToSize{maxBytes: maxBytes}
}
