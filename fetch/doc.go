// Package fetch populates cache slots with the content of a remote repository
// revision.
//
// A Fetcher drives the git command line through github.com/jmgilman/go/exec and
// lists remote refs with go-git to turn branch and tag names into the hashes
// that are fetched. Three strategies are supported:
//
//   - shallow: init, add the remote, restrict the working copy with a sparse
//     checkout, fetch at depth 1 and check out FETCH_HEAD
//   - shallow_no_sparse: the same without the sparse checkout
//   - partial: clone without checkout and check out only the requested sources
//
// A slot that already contains a .git directory is a cache hit and is returned
// without running git. A failed fetch removes the slot so the next run starts
// clean.
//
// Basic usage:
//
//	f := fetch.New(fetch.WithLogger(logger))
//	res, err := f.Fetch(ctx, entry, "/tmp/git-wire-cache/<key>")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(res.CacheHit, res.Commit)
package fetch
