// Package cache manages the on-disk clone cache shared by sync runs.
//
// Every (url, revision, pinned commit) triple maps to a cache key, and every key to
// one directory under the cache root:
//
//	<root>/
//	  <key>/          clone of the repository at that revision
//	  <key>.lock      cross-process lock held while the slot is fetched
//	  metadata.json   size, access and checkout bookkeeping
//	  metadata.lock   held while metadata.json is rewritten
//
// The Manager owns the per-run view of the cache. It hands out slot paths and plans
// the minimal set of fetches for a list of entries; it never touches the network.
// Fetching is done by package fetch while the slot's lock is held.
//
// Basic usage:
//
//	manager, err := cache.NewManager(cache.DefaultRoot(),
//	    cache.WithLocks(cache.NewLockManager(cache.DefaultRoot())))
//	unique, ops, err := manager.PlanFetchOperations(entries)
//
// Eviction works on the metadata records:
//
//	result, err := manager.Prune(ctx, cache.PruneOlderThan(30*24*time.Hour))
//	stop := manager.StartGC(time.Hour, cache.PruneToSize(10<<30))
//	defer stop()
package cache
