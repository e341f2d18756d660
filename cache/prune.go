package cache

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/go-git/go-billy/v5/util"
	"github.com/jmgilman/go/errors"
	"github.com/jmgilman/gitwire"
	"github.com/jmgilman/gitwire/internal/logging"
)

// DefaultMaxAge is used by Prune when no strategy is given.
const DefaultMaxAge = 30 * 24 * time.Hour

// Prune removes recorded slots chosen by the strategies (OR logic). Slots whose
// lock is held, or that are in use by this run, are skipped and reported.
//
// With no strategies, slots unused for DefaultMaxAge are removed.
//
//	// Remove slots unused for a week, then trim to 5GB
//	manager.Prune(ctx, PruneOlderThan(7*24*time.Hour), PruneToSize(5<<30))
func (m *Manager) Prune(ctx context.Context, strategies ...PruneStrategy) (*PruneResult, error) {
	start := m.now()
	if len(strategies) == 0 {
		strategies = []PruneStrategy{PruneOlderThan(DefaultMaxAge)}
	}

	var sizeStrategy *pruneToSize
	var others []PruneStrategy
	for _, strategy := range strategies {
		if ps, ok := strategy.(*pruneToSize); ok {
			sizeStrategy = ps
		} else {
			others = append(others, strategy)
		}
	}

	records := m.metadata.List()
	now := m.now()

	var toRemove []string
	for key, rec := range records {
		for _, strategy := range others {
			if strategy.ShouldPrune(rec, now) {
				toRemove = append(toRemove, key)
				break
			}
		}
	}

	if sizeStrategy != nil {
		toRemove = append(toRemove, m.applySizeStrategy(sizeStrategy, records, toRemove)...)
	}

	toRemove = uniqueStrings(toRemove)
	sort.Strings(toRemove)

	result, err := m.removeSlots(ctx, toRemove, "prune")
	if err != nil {
		return result, err
	}

	logging.LogCleanup(ctx, m.logger, "prune", len(result.Removed), result.BytesFreed, m.now().Sub(start))
	return result, nil
}

// Clear removes every recorded slot whose URL names the same repository as url.
// An empty url clears all recorded slots.
func (m *Manager) Clear(ctx context.Context, url string) (*PruneResult, error) {
	var keys []string
	for key, rec := range m.metadata.List() {
		if url == "" || SameRepository(rec.RepoURL, url) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	return m.removeSlots(ctx, keys, "clear")
}

// Stats reports every recorded slot with its current size on disk.
func (m *Manager) Stats() (*Stats, error) {
	stats := &Stats{}

	for _, key := range m.metadata.Keys() {
		rec, ok := m.metadata.Get(key)
		if !ok {
			continue
		}

		size, err := m.calculateDirSize(m.PathFor(key))
		if err != nil {
			size = rec.SizeBytes
		}

		stats.Entries = append(stats.Entries, EntryStats{
			Key:          key,
			URL:          rec.RepoURL,
			Revision:     rec.Branch,
			Commit:       rec.CommitHash,
			Size:         size,
			LastAccessed: rec.LastAccessed,
		})
		stats.TotalSize += size

		accessed := rec.LastAccessed
		if stats.Oldest == nil || accessed.Before(*stats.Oldest) {
			stats.Oldest = &accessed
		}
		if stats.Newest == nil || accessed.After(*stats.Newest) {
			stats.Newest = &accessed
		}
	}

	return stats, nil
}

// RecordFetch stores or refreshes the metadata record of a slot after a fetch,
// including the sources and method the slot was checked out with.
func (m *Manager) RecordFetch(e gitwire.Entry, key, commit string) error {
	path := m.PathFor(key)

	size, err := m.calculateDirSize(path)
	if err != nil {
		return errors.WithContext(
			errors.Wrap(err, gitwire.CodeCacheIO, "failed to measure cache directory"), "path", path)
	}

	return m.metadata.Store(key, Record{
		RepoURL:    e.URL,
		Branch:     e.Revision,
		CommitHash: commit,
		SizeBytes:  size,
		CachePath:  path,
		Sources:    e.Sources,
		Method:     e.Method.OrDefault().String(),
	})
}

// RecordHit refreshes the access time of a reused slot, creating its record if
// the slot predates the metadata file.
func (m *Manager) RecordHit(e gitwire.Entry, key, commit string) error {
	if _, ok := m.metadata.Get(key); !ok {
		return m.RecordFetch(e, key, commit)
	}
	return m.metadata.Touch(key)
}

func (m *Manager) removeSlots(ctx context.Context, keys []string, reason string) (*PruneResult, error) {
	result := &PruneResult{}

	for _, key := range keys {
		if m.inUse(key) {
			result.Skipped = append(result.Skipped, key)
			continue
		}

		release, ok, err := m.tryLock(key)
		if err != nil {
			return result, err
		}
		if !ok {
			m.logger.Info(ctx, "skipping cache slot in use", "key", key)
			result.Skipped = append(result.Skipped, key)
			continue
		}

		path := m.PathFor(key)
		size, _ := m.calculateDirSize(path)

		if err := util.RemoveAll(m.fs, path); err != nil {
			release()
			return result, errors.WithContext(
				errors.Wrap(err, gitwire.CodeCacheIO, "failed to remove cache directory"), "path", path)
		}

		if err := m.metadata.Remove(key); err != nil {
			release()
			return result, err
		}

		m.mu.Lock()
		delete(m.repos, key)
		m.mu.Unlock()
		release()

		logging.LogEviction(ctx, m.logger, key, size, reason)
		result.Removed = append(result.Removed, key)
		result.BytesFreed += size
	}

	return result, nil
}

func (m *Manager) tryLock(key string) (func(), bool, error) {
	if m.locks == nil {
		return func() {}, true, nil
	}
	return m.locks.TryAcquire(key)
}

// applySizeStrategy picks least recently accessed slots, not already marked,
// until the remaining total fits under the limit.
func (m *Manager) applySizeStrategy(strategy *pruneToSize, records map[string]Record, alreadyMarked []string) []string {
	type candidate struct {
		key        string
		size       int64
		lastAccess time.Time
	}

	marked := make(map[string]bool, len(alreadyMarked))
	for _, key := range alreadyMarked {
		marked[key] = true
	}

	var total int64
	var candidates []candidate
	for key, rec := range records {
		size, err := m.calculateDirSize(m.PathFor(key))
		if err != nil {
			continue
		}
		if marked[key] {
			continue
		}
		total += size
		candidates = append(candidates, candidate{key: key, size: size, lastAccess: rec.LastAccessed})
	}

	if total <= strategy.maxBytes {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].lastAccess.Equal(candidates[j].lastAccess) {
			return candidates[i].key < candidates[j].key
		}
		return candidates[i].lastAccess.Before(candidates[j].lastAccess)
	})

	var toRemove []string
	for _, c := range candidates {
		if total <= strategy.maxBytes {
			break
		}
		toRemove = append(toRemove, c.key)
		total -= c.size
	}

	return toRemove
}

// calculateDirSize sums the sizes of regular files under path.
func (m *Manager) calculateDirSize(path string) (int64, error) {
	info, err := m.fs.Lstat(path)
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return info.Size(), nil
	}

	var size int64
	err = util.Walk(m.fs, path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			size += info.Size()
		}
		return nil
	})

	return size, err
}

// uniqueStrings removes duplicates, keeping first occurrences.
func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
