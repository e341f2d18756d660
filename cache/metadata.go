package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/gofrs/flock"
	"github.com/jmgilman/go/errors"
	"github.com/jmgilman/gitwire"
)

// Record is the durable bookkeeping for one cache slot.
type Record struct {
	RepoURL      string    `json:"repo_url"`
	Branch       string    `json:"branch"`
	CommitHash   string    `json:"commit_hash"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
	SizeBytes    int64     `json:"size_bytes"`
	CachePath    string    `json:"cache_path"`

	// Sources is the sparse set the slot was checked out with.
	Sources []string `json:"sources,omitempty"`

	// Method is the clone method the slot was checked out with. Empty for
	// records written before it was tracked.
	Method string `json:"method,omitempty"`
}

// MetadataStore persists Records as a JSON object keyed by cache key.
//
// Every mutation reloads the file, applies the change and renames a fresh temp
// file over it, so stores opened on the same path by different runs merge
// their writes. With a store lock the whole cycle runs under an exclusive
// flock.
type MetadataStore struct {
	fs       billy.Filesystem
	path     string
	now      func() time.Time
	lockPath string
	records  map[string]Record
	mu       sync.Mutex
}

type storeOption func(*MetadataStore)

func withStoreClock(now func() time.Time) storeOption {
	return func(s *MetadataStore) {
		s.now = now
	}
}

// withStoreLock serializes mutations across processes through a flock on
// path. The lock file lives on the local filesystem.
func withStoreLock(path string) storeOption {
	return func(s *MetadataStore) {
		s.lockPath = path
	}
}

// OpenMetadataStore loads the store at path, or starts an empty one if the file
// does not exist. A file that exists but cannot be parsed is an error.
func OpenMetadataStore(fs billy.Filesystem, path string, opts ...storeOption) (*MetadataStore, error) {
	store := &MetadataStore{
		fs:   fs,
		path: path,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}

	records, err := store.load()
	if err != nil {
		return nil, err
	}
	store.records = records

	return store, nil
}

// Store saves rec under key. A zero CreatedAt keeps the existing creation time,
// or uses now for a new key; a zero LastAccessed is set to now.
func (s *MetadataStore) Store(key string, rec Record) error {
	return s.update(func(records map[string]Record) (bool, error) {
		now := s.now()
		if rec.CreatedAt.IsZero() {
			if existing, ok := records[key]; ok {
				rec.CreatedAt = existing.CreatedAt
			} else {
				rec.CreatedAt = now
			}
		}
		if rec.LastAccessed.IsZero() {
			rec.LastAccessed = now
		}

		records[key] = rec
		return true, nil
	})
}

// Get returns the record for key.
func (s *MetadataStore) Get(key string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refresh()
	rec, ok := s.records[key]
	return rec, ok
}

// Touch sets the last access time of key to now.
func (s *MetadataStore) Touch(key string) error {
	return s.update(func(records map[string]Record) (bool, error) {
		rec, ok := records[key]
		if !ok {
			return false, errors.WithContext(
				errors.New(errors.CodeNotFound, "metadata not found"), "key", key)
		}

		rec.LastAccessed = s.now()
		records[key] = rec
		return true, nil
	})
}

// Remove deletes the record for key. Removing a missing key is not an error.
func (s *MetadataStore) Remove(key string) error {
	return s.update(func(records map[string]Record) (bool, error) {
		if _, ok := records[key]; !ok {
			return false, nil
		}
		delete(records, key)
		return true, nil
	})
}

// Keys returns all recorded keys in sorted order.
func (s *MetadataStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refresh()
	keys := make([]string, 0, len(s.records))
	for key := range s.records {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// List returns a copy of all records.
func (s *MetadataStore) List() map[string]Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refresh()
	out := make(map[string]Record, len(s.records))
	for key, rec := range s.records {
		out[key] = rec
	}
	return out
}

// update applies fn to the records currently on disk and writes them back when
// fn reports a change.
func (s *MetadataStore) update(fn func(records map[string]Record) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	records, err := s.load()
	if err != nil {
		return err
	}

	changed, err := fn(records)
	if err != nil {
		s.records = records
		return err
	}
	if changed {
		if err := s.save(records); err != nil {
			return err
		}
	}

	s.records = records
	return nil
}

// refresh picks up writes made through other stores. A file that cannot be
// read keeps the last known records. Callers must hold s.mu.
func (s *MetadataStore) refresh() {
	if records, err := s.load(); err == nil {
		s.records = records
	}
}

func (s *MetadataStore) lock() (func(), error) {
	if s.lockPath == "" {
		return func() {}, nil
	}

	if err := os.MkdirAll(filepath.Dir(s.lockPath), 0o755); err != nil {
		return nil, errors.WithContext(
			errors.Wrap(err, gitwire.CodeMetadata, "failed to create metadata lock directory"), "path", s.lockPath)
	}

	fl := flock.New(s.lockPath)
	if err := fl.Lock(); err != nil {
		return nil, errors.WithContext(
			errors.Wrap(err, gitwire.CodeMetadata, "failed to lock metadata file"), "path", s.lockPath)
	}
	return func() { _ = fl.Unlock() }, nil
}

// load reads the records on disk. A missing file yields an empty map.
func (s *MetadataStore) load() (map[string]Record, error) {
	records := make(map[string]Record)

	if _, err := s.fs.Stat(s.path); os.IsNotExist(err) {
		return records, nil
	}

	data, err := util.ReadFile(s.fs, s.path)
	if err != nil {
		return nil, errors.WithContext(
			errors.Wrap(err, gitwire.CodeMetadata, "failed to read metadata file"), "path", s.path)
	}

	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.WithContext(
			errors.Wrap(err, gitwire.CodeMetadata, "failed to parse metadata file"), "path", s.path)
	}
	if records == nil {
		records = make(map[string]Record)
	}

	return records, nil
}

// save writes records to a uniquely named temp file next to the store file and
// renames it over the store file.
func (s *MetadataStore) save(records map[string]Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return errors.Wrap(err, gitwire.CodeMetadata, "failed to marshal metadata")
	}

	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, gitwire.CodeMetadata, "failed to create metadata directory")
	}

	tmp, err := util.TempFile(s.fs, dir, filepath.Base(s.path)+".")
	if err != nil {
		return errors.WithContext(
			errors.Wrap(err, gitwire.CodeMetadata, "failed to create temporary metadata file"), "path", dir)
	}
	tmpPath := tmp.Name()

	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = s.fs.Remove(tmpPath)
		return errors.WithContext(
			errors.Wrap(err, gitwire.CodeMetadata, "failed to write temporary metadata file"), "path", tmpPath)
	}

	if err := s.fs.Rename(tmpPath, s.path); err != nil {
		_ = s.fs.Remove(tmpPath)
		return errors.WithContext(
			errors.Wrap(err, gitwire.CodeMetadata, "failed to rename metadata file"), "path", s.path)
	}

	return nil
}
