package wire

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/jmgilman/go/errors"
	"github.com/jmgilman/gitwire"
	"github.com/jmgilman/gitwire/cache"
	"github.com/jmgilman/gitwire/fetch"
	"github.com/jmgilman/gitwire/filter"
	"github.com/jmgilman/gitwire/internal/logging"
	"github.com/jmgilman/gitwire/internal/pathsafe"
)

// Fetcher materializes an entry's revision into a directory.
type Fetcher interface {
	Fetch(ctx context.Context, e gitwire.Entry, dir string) (*fetch.Result, error)
}

// SyncReport summarizes one Sync.
type SyncReport struct {
	// Fetched counts repositories cloned from their remote.
	Fetched int

	// CacheHits counts repositories served from an existing cache slot.
	CacheHits int

	// Placed counts entries whose destination was rewritten.
	Placed int

	// Skipped counts entries left untouched because none of their sources exist.
	Skipped int
}

// Syncer places the sources of each entry into its destination, fetching every
// distinct repository at most once.
type Syncer struct {
	cache       *cache.Manager
	fetcher     Fetcher
	filter      *filter.Filter
	fs          billy.Filesystem
	concurrency int
	logger      *logging.Logger
}

// SyncOption configures a Syncer.
type SyncOption func(*Syncer)

// WithFilter sets the content filter used for placement.
func WithFilter(f *filter.Filter) SyncOption {
	return func(s *Syncer) {
		s.filter = f
	}
}

// WithConcurrency bounds the number of concurrent fetches. Defaults to
// DefaultConcurrency.
func WithConcurrency(n int) SyncOption {
	return func(s *Syncer) {
		s.concurrency = n
	}
}

// WithSyncLogger sets the logger.
func WithSyncLogger(logger *logging.Logger) SyncOption {
	return func(s *Syncer) {
		s.logger = logger
	}
}

// NewSyncer creates a Syncer reading and writing slots through manager.
func NewSyncer(manager *cache.Manager, fetcher Fetcher, opts ...SyncOption) *Syncer {
	s := &Syncer{
		cache:       manager,
		fetcher:     fetcher,
		fs:          osfs.New("/"),
		concurrency: DefaultConcurrency,
		logger:      logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.filter == nil {
		s.filter = filter.New(filter.WithLogger(s.logger))
	}
	if s.concurrency <= 0 {
		s.concurrency = DefaultConcurrency
	}
	return s
}

// Sync validates every destination against root, fetches each distinct
// repository once and then rewrites the destinations in entry order. Nothing
// is fetched or written when any entry is invalid.
func (s *Syncer) Sync(ctx context.Context, root string, entries []gitwire.Entry) (*SyncReport, error) {
	if len(entries) == 0 {
		return nil, errors.New(gitwire.CodeNothingToOperate, "There are no items to operate.")
	}

	dests := make([]string, len(entries))
	for i, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		dest, err := resolveDestination(root, e.Destination)
		if err != nil {
			return nil, err
		}
		dests[i] = dest
	}

	unique, ops, err := s.cache.PlanFetchOperations(entries)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "planned fetch operations",
		"entries", len(entries), "unique", len(unique), "avoided", len(entries)-len(unique))

	// Each slot is fetched with the sources of every entry that reads it.
	sparse := map[string][]string{}
	for _, op := range ops {
		sparse[op.Key] = appendUnique(sparse[op.Key], op.Entry.Sources...)
	}

	report := &SyncReport{}
	var mu sync.Mutex
	err = runPool(s.concurrency, len(unique), func(i int) error {
		e := unique[i]
		key := cache.KeyFor(e)
		e.Sources = sparse[key]

		hit, err := s.fetchSlot(ctx, key, e)
		if err != nil {
			return err
		}

		mu.Lock()
		defer mu.Unlock()
		if hit {
			report.CacheHits++
		} else {
			report.Fetched++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, op := range ops {
		placed, err := s.place(ctx, op, dests[i])
		if err != nil {
			return nil, err
		}
		if placed {
			report.Placed++
		} else {
			report.Skipped++
		}
	}

	s.logger.Info(ctx, "sync completed",
		"fetched", report.Fetched, "cache_hits", report.CacheHits,
		"placed", report.Placed, "skipped", report.Skipped)
	return report, nil
}

// fetchSlot fills the slot of key while holding its lock and records the result
// in the cache metadata. It reports whether the slot was already populated.
func (s *Syncer) fetchSlot(ctx context.Context, key string, e gitwire.Entry) (bool, error) {
	if locks := s.cache.Locks(); locks != nil {
		release, err := locks.Acquire(ctx, key)
		if err != nil {
			return false, err
		}
		defer release()
	}

	s.cache.SetInUse(key, true)
	defer s.cache.SetInUse(key, false)

	logger := s.logger.WithKey(key)

	path := s.cache.PathFor(key)
	res, err := s.fetcher.Fetch(ctx, e, path)
	if err != nil {
		return false, err
	}

	// A reused slot may have been checked out for a narrower set of sources.
	rec, recorded := s.cache.Metadata().Get(key)
	if res.CacheHit {
		covered, err := s.slotCovers(path, rec, recorded, e.Sources)
		if err != nil {
			return false, err
		}
		if !covered {
			logging.LogCacheMiss(ctx, s.logger, key, e.URL, "cached checkout lacks requested sources")
			if recorded {
				e.Sources = appendUnique(slices.Clone(rec.Sources), e.Sources...)
			}
			if err := s.cache.Reset(key); err != nil {
				return false, err
			}
			if res, err = s.fetcher.Fetch(ctx, e, path); err != nil {
				return false, err
			}
		}
	}

	commit := res.Commit
	if res.CacheHit {
		if recorded && commit == "" {
			commit = rec.CommitHash
		}
		logging.LogCacheHit(ctx, s.logger, key, e.URL)
		err = s.cache.RecordHit(e, key, commit)
	} else {
		logger.Debug(ctx, "repository fetched", "url", e.URL, "target", res.Revision, "commit", commit)
		err = s.cache.RecordFetch(e, key, commit)
	}
	if err != nil {
		return false, err
	}

	s.cache.MarkFetched(key, commit)
	return res.CacheHit, nil
}

// slotCovers reports whether a reused slot was checked out for every source.
// The recorded method and sparse set decide, so a source missing upstream does
// not count against the slot. Slots without a recorded method fall back to
// what exists on disk.
func (s *Syncer) slotCovers(path string, rec cache.Record, recorded bool, sources []string) (bool, error) {
	if recorded && rec.Method != "" {
		if gitwire.Method(rec.Method) == gitwire.MethodShallowNoSparse {
			return true, nil
		}
		for _, src := range sources {
			norm := filter.Normalize(src)
			if !slices.ContainsFunc(rec.Sources, func(r string) bool { return filter.Normalize(r) == norm }) {
				return false, nil
			}
		}
		return true, nil
	}

	present, err := s.filter.Present(path, sources)
	if err != nil {
		return false, err
	}
	return len(present) == len(sources), nil
}

// place rewrites the destination of one operation from its cache slot.
func (s *Syncer) place(ctx context.Context, op cache.Operation, dest string) (bool, error) {
	e := op.Entry
	if len(e.Sources) == 0 {
		s.logger.Debug(ctx, "skipping entry without sources", "operation", op.ID)
		return false, nil
	}

	present, err := s.filter.Present(op.CachePath, e.Sources)
	if err != nil {
		return false, err
	}
	if len(present) == 0 {
		s.logger.Warn(ctx, "none of the sources exist in the cached repository",
			"entry", e.Label(), "sources", e.Sources, "url", e.URL)
		return false, nil
	}

	if err := util.RemoveAll(s.fs, dest); err != nil {
		return false, placementError(err, "could not remove destination", dest)
	}
	if err := s.fs.MkdirAll(dest, 0o755); err != nil {
		return false, placementError(err, "could not create destination", dest)
	}

	report, err := s.filter.Apply(ctx, op.CachePath, dest, e.Sources)
	if err != nil {
		return false, placementError(err, "could not copy sources", dest)
	}

	s.logger.Debug(ctx, "destination placed",
		"operation", op.ID, "destination", e.Destination, "files", len(report.Copied))
	return true, nil
}

// resolveDestination joins dst onto root and rejects results outside root.
func resolveDestination(root, dst string) (string, error) {
	resolved, err := pathsafe.Within(root, filepath.Join(root, filepath.FromSlash(dst)))
	if err != nil {
		return "", errors.WrapWithContext(err, gitwire.CodeDestinationEscape,
			fmt.Sprintf("Destination path '%s' escapes the project root", dst),
			map[string]interface{}{"root": root, "path": dst})
	}
	return resolved, nil
}

func placementError(err error, msg, path string) error {
	code := errors.GetCode(err)
	if code == errors.CodeUnknown {
		code = gitwire.CodePlacement
	}
	return errors.WithContext(errors.Wrap(err, code, msg), "path", path)
}

func appendUnique(list []string, items ...string) []string {
	for _, item := range items {
		if !slices.Contains(list, item) {
			list = append(list, item)
		}
	}
	return list
}
