package cache

import (
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/jmgilman/gitwire"
	"github.com/jmgilman/gitwire/internal/logging"
)

// Manager is the cache state for one run. It maps cache keys to slots under the
// root directory and plans fetches. All methods are safe for concurrent use.
type Manager struct {
	root     string
	fs       billy.Filesystem
	logger   *logging.Logger
	locks    *LockManager
	metadata *MetadataStore
	now      func() time.Time

	repos map[string]*CachedRepository // key → slot, rebuilt every run
	mu    sync.Mutex
}

// CachedRepository describes one slot known to the current run.
type CachedRepository struct {
	Key        string
	URL        string
	Revision   string
	Path       string
	Commit     string    // resolved commit, empty until fetched
	LastPulled time.Time // zero until fetched
	InUse      bool
}

// Operation binds one entry to the cache slot it reads from.
type Operation struct {
	ID        string
	Key       string
	Entry     gitwire.Entry
	CachePath string
}

// Stats summarizes the slots recorded in the metadata store.
type Stats struct {
	Entries   []EntryStats `json:"entries" yaml:"entries"`
	TotalSize int64        `json:"total_size" yaml:"total_size"`
	Oldest    *time.Time   `json:"oldest,omitempty" yaml:"oldest,omitempty"`
	Newest    *time.Time   `json:"newest,omitempty" yaml:"newest,omitempty"`
}

// EntryStats is one slot in Stats.
type EntryStats struct {
	Key          string    `json:"key" yaml:"key"`
	URL          string    `json:"url" yaml:"url"`
	Revision     string    `json:"revision" yaml:"revision"`
	Commit       string    `json:"commit" yaml:"commit"`
	Size         int64     `json:"size" yaml:"size"`
	LastAccessed time.Time `json:"last_accessed" yaml:"last_accessed"`
}

// PruneResult reports what a prune or clear removed.
type PruneResult struct {
	Removed    []string
	Skipped    []string // slots held by another run
	BytesFreed int64
}

// Option configures a Manager.
type Option func(*managerOptions)

type managerOptions struct {
	fs     billy.Filesystem
	logger *logging.Logger
	locks  *LockManager
	now    func() time.Time
}

// PruneStrategy decides whether a recorded slot should be removed.
type PruneStrategy interface {
	ShouldPrune(record Record, now time.Time) bool
}

type pruneOlderThan struct {
	maxAge time.Duration
}

func (p *pruneOlderThan) ShouldPrune(record Record, now time.Time) bool {
	return now.Sub(record.LastAccessed) > p.maxAge
}

type pruneToSize struct {
	maxBytes int64
}

// ShouldPrune is never consulted; size pruning needs the whole cache and is
// applied separately.
func (p *pruneToSize) ShouldPrune(Record, time.Time) bool {
	return false
}
