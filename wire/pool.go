package wire

import (
	"github.com/jmgilman/go/errors"
	"github.com/jmgilman/gitwire"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds concurrent fetches when no limit is configured.
const DefaultConcurrency = 4

// runPool calls task for every index in [0, n) with at most limit calls in
// flight; limit <= 0 runs all of them at once. Every task runs to completion
// regardless of sibling failures and the first error returned wins.
func runPool(limit, n int, task func(i int) error) error {
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i := range n {
		g.Go(func() error {
			return guard(i, task)
		})
	}

	return g.Wait()
}

// guard runs task(i) and turns a panic into a CodeWorkerPanic error.
func guard(i int, task func(i int) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.WithContext(
				errors.Newf(gitwire.CodeWorkerPanic, "worker panicked: %v", r), "index", i)
		}
	}()
	return task(i)
}
