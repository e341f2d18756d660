package cache

import (
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/uuid"
	"github.com/jmgilman/go/errors"
	"github.com/jmgilman/gitwire"
	"github.com/jmgilman/gitwire/internal/logging"
)

const (
	// Namespace is the directory created under the system temp dir by DefaultRoot.
	Namespace = "git-wire-cache"

	metadataFile = "metadata.json"
	metadataLock = "metadata"
)

// DefaultRoot returns <tmp>/git-wire-cache.
func DefaultRoot() string {
	return filepath.Join(os.TempDir(), Namespace)
}

// NewManager creates the cache root if needed and loads its metadata. With
// WithLocks, metadata writes are also serialized through <lock dir>/metadata.lock.
//
// By default the local filesystem is used; WithFilesystem substitutes another
// billy filesystem for tests.
//
//	manager, err := cache.NewManager("/var/cache/gitwire")
func NewManager(root string, opts ...Option) (*Manager, error) {
	options := &managerOptions{
		fs:     osfs.New("/"),
		logger: logging.NewNopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(options)
	}

	if err := options.fs.MkdirAll(root, 0o755); err != nil {
		return nil, errors.WithContext(
			errors.Wrap(err, gitwire.CodeCacheIO, "failed to create cache root"), "path", root)
	}

	storeOpts := []storeOption{withStoreClock(options.now)}
	if options.locks != nil {
		storeOpts = append(storeOpts, withStoreLock(options.locks.LockPath(metadataLock)))
	}

	store, err := OpenMetadataStore(options.fs, filepath.Join(root, metadataFile), storeOpts...)
	if err != nil {
		return nil, err
	}

	return &Manager{
		root:     root,
		fs:       options.fs,
		logger:   options.logger,
		locks:    options.locks,
		metadata: store,
		now:      options.now,
		repos:    make(map[string]*CachedRepository),
	}, nil
}

// Root returns the cache root directory.
func (m *Manager) Root() string {
	return m.root
}

// Metadata returns the store backing eviction.
func (m *Manager) Metadata() *MetadataStore {
	return m.metadata
}

// Locks returns the lock manager, or nil when locking is disabled.
func (m *Manager) Locks() *LockManager {
	return m.locks
}

// PathFor returns the slot directory for a key.
func (m *Manager) PathFor(key string) string {
	return filepath.Join(m.root, key)
}

// GetOrScheduleFetch returns the slot path for an entry, reserving the slot on
// first use in this run. It creates the slot directory but does not fetch.
func (m *Manager) GetOrScheduleFetch(e gitwire.Entry) (string, error) {
	key := KeyFor(e)

	m.mu.Lock()
	defer m.mu.Unlock()

	if repo, ok := m.repos[key]; ok {
		return repo.Path, nil
	}

	path := m.PathFor(key)
	if err := m.fs.MkdirAll(path, 0o755); err != nil {
		return "", errors.WithContextMap(
			errors.Wrap(err, gitwire.CodeCacheIO, "failed to create cache directory"),
			map[string]interface{}{"path": path, "url": e.URL})
	}

	m.repos[key] = &CachedRepository{
		Key:      key,
		URL:      e.URL,
		Revision: e.Revision,
		Path:     path,
		Commit:   e.Commit,
	}

	return path, nil
}

// PlanFetchOperations returns the entries that must be fetched, one per distinct
// cache key in first-seen order, and one Operation per input entry.
func (m *Manager) PlanFetchOperations(entries []gitwire.Entry) ([]gitwire.Entry, []Operation, error) {
	seen := make(map[string]bool, len(entries))
	var unique []gitwire.Entry
	ops := make([]Operation, 0, len(entries))

	for _, e := range entries {
		key := KeyFor(e)
		if !seen[key] {
			seen[key] = true
			unique = append(unique, e)
		}

		path, err := m.GetOrScheduleFetch(e)
		if err != nil {
			return nil, nil, err
		}

		ops = append(ops, Operation{
			ID:        uuid.NewString(),
			Key:       key,
			Entry:     e,
			CachePath: path,
		})
	}

	return unique, ops, nil
}

// Reset empties the slot directory of key so the next fetch starts from
// scratch. The caller must hold the slot lock.
func (m *Manager) Reset(key string) error {
	path := m.PathFor(key)
	if err := util.RemoveAll(m.fs, path); err != nil {
		return errors.WithContext(
			errors.Wrap(err, gitwire.CodeCacheIO, "failed to reset cache directory"), "path", path)
	}
	if err := m.fs.MkdirAll(path, 0o755); err != nil {
		return errors.WithContext(
			errors.Wrap(err, gitwire.CodeCacheIO, "failed to create cache directory"), "path", path)
	}
	return nil
}

// Lookup returns a copy of the slot recorded for key in this run.
func (m *Manager) Lookup(key string) (CachedRepository, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	repo, ok := m.repos[key]
	if !ok {
		return CachedRepository{}, false
	}
	return *repo, true
}

// MarkFetched records the commit a slot holds after a fetch or cache hit.
func (m *Manager) MarkFetched(key, commit string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if repo, ok := m.repos[key]; ok {
		repo.Commit = commit
		repo.LastPulled = m.now()
	}
}

// SetInUse flags a slot as being read or written by this run.
func (m *Manager) SetInUse(key string, inUse bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if repo, ok := m.repos[key]; ok {
		repo.InUse = inUse
	}
}

// Len returns the number of slots reserved in this run.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.repos)
}

func (m *Manager) inUse(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	repo, ok := m.repos[key]
	return ok && repo.InUse
}
