// Package wire runs the sync and check flows over a list of entries.
//
// Resolver turns the .gitwire.toml entries of a project, an optional command
// line override and a name filter into the list of entries to operate on.
// Syncer fetches every distinct repository once into the cache and places the
// requested sources of each entry into its destination. Checker fetches a fresh
// copy of an entry and reports how its destination differs from it. Runner
// executes a per-entry operation such as a check, one entry at a time or all at
// once.
//
// A typical sync:
//
//	manager, _ := cache.NewManager(cache.DefaultRoot())
//	resolution, err := wire.NewResolver(config.NewLoader()).Resolve(ctx, wire.Request{WorkDir: "."})
//	if err != nil {
//	    return err
//	}
//	report, err := wire.NewSyncer(manager, fetch.New()).Sync(ctx, resolution.Root, resolution.Entries)
package wire
