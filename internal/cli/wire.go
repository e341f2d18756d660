package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/jmgilman/gitwire/wire"
	"github.com/spf13/cobra"
)

func (a *App) syncCommand() *cobra.Command {
	ef := &entryFlags{}
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Copy the declared sources into the project",
		Long: `Synchronizes code as declared in .gitwire.toml, or as given by --url, --rev,
--src and --dst. Entries sharing a repository and revision are fetched once.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.resolve(cmd, ef)
			if err != nil {
				return err
			}

			manager, err := a.manager()
			if err != nil {
				return err
			}

			syncer := wire.NewSyncer(manager, a.gitFetcher(),
				wire.WithFilter(a.contentFilter()),
				wire.WithConcurrency(a.concurrency()),
				wire.WithSyncLogger(a.logger.WithOperation("sync")))

			report, err := syncer.Sync(cmd.Context(), res.Root, res.Entries)
			if err != nil {
				return err
			}

			fmt.Fprintf(a.out, ">> fetched %d, reused %d, placed %d, skipped %d\n",
				report.Fetched, report.CacheHits, report.Placed, report.Skipped)
			a.report(true)
			return nil
		},
	}
	ef.register(cmd)
	return cmd
}

func (a *App) checkCommand() *cobra.Command {
	ef := &entryFlags{}
	var diff bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify that synced content matches its origin",
		Long: `Checks that the content of each destination is identical to a fresh copy of
its sources. Differences are reported per file; --diff prints them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.resolve(cmd, ef)
			if err != nil {
				return err
			}

			// The runner and the checker print concurrently to the same stream.
			out := &lockedWriter{w: a.out}
			checker := wire.NewChecker(a.gitFetcher(),
				wire.WithCheckFilter(a.contentFilter()),
				wire.WithDiff(diff),
				wire.WithCheckLogger(a.logger.WithOperation("check")),
				wire.WithCheckOutput(out))

			runner := &wire.Runner{Mode: a.mode(), Concurrency: a.concurrency(), Output: out}
			ok, err := runner.Run(cmd.Context(), res.Entries, checker.Operation(res.Root))
			if err != nil {
				return err
			}

			a.report(ok)
			return nil
		},
	}
	ef.register(cmd)
	cmd.Flags().BoolVar(&diff, "diff", false, "Print a diff for each changed file")
	return cmd
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
