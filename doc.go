// Package gitwire holds the types shared by the git-wire packages: the Entry that
// describes one request to pull paths out of a remote repository, the clone Method
// used to fetch it, and the error codes every package reports failures with.
//
// The work itself is split across sub-packages:
//
//   - cache: cache keys, the per-run cache manager, slot locks, metadata and eviction
//   - fetch: cloning a repository revision into a cache slot with the git CLI
//   - filter: copying the requested paths out of a cached clone
//   - treediff: comparing two directory trees
//   - config: reading and writing .gitwire.toml
//   - wire: the sync and check orchestrators and the entry runner
//
// A typical sync looks like:
//
//	manager, _ := cache.NewManager(cache.DefaultRoot())
//	syncer := wire.NewSyncer(manager, fetch.New())
//	report, err := syncer.Sync(ctx, root, entries)
package gitwire
