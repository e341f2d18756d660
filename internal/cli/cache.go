package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jmgilman/go/errors"
	"github.com/jmgilman/gitwire/cache"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func (a *App) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and evict cached repositories",
	}
	cmd.AddCommand(a.cacheStatsCommand(), a.cachePruneCommand(), a.cacheClearCommand())
	return cmd
}

func (a *App) cacheStatsCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "List cached repositories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			manager, err := a.manager()
			if err != nil {
				return err
			}

			stats, err := manager.Stats()
			if err != nil {
				return err
			}

			switch output {
			case "json":
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			case "yaml":
				enc := yaml.NewEncoder(a.out)
				defer enc.Close()
				return enc.Encode(stats)
			case "text", "":
				return a.printStats(manager.Root(), stats)
			default:
				return errors.Newf(errors.CodeInvalidInput, "unknown output format %q (expected text, json or yaml)", output)
			}
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text, json or yaml")
	return cmd
}

func (a *App) printStats(root string, stats *cache.Stats) error {
	fmt.Fprintf(a.out, "Cache: %s\n", root)
	fmt.Fprintf(a.out, "Entries: %d, total size: %s\n", len(stats.Entries), humanize.Bytes(uint64(stats.TotalSize)))
	if len(stats.Entries) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "URL\tREVISION\tCOMMIT\tSIZE\tLAST USED")
	for _, e := range stats.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.URL, e.Revision, shortCommit(e.Commit), humanize.Bytes(uint64(e.Size)), humanize.Time(e.LastAccessed))
	}
	return tw.Flush()
}

func shortCommit(commit string) string {
	if len(commit) > 12 {
		return commit[:12]
	}
	return commit
}

func (a *App) cachePruneCommand() *cobra.Command {
	var (
		olderThan time.Duration
		maxSize   string
		every     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove stale or excess cached repositories",
		Long: `Removes cached repositories that were not used within --older-than, then the
least recently used ones until the cache fits in --max-size (e.g. 500MB, 10GiB).
Repositories in use by another run are skipped.

With --every the command keeps running and prunes again at that interval until
it is interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var strategies []cache.PruneStrategy
			if olderThan > 0 {
				strategies = append(strategies, cache.PruneOlderThan(olderThan))
			}
			if maxSize != "" {
				limit, err := humanize.ParseBytes(maxSize)
				if err != nil {
					return errors.WithContext(
						errors.Wrap(err, errors.CodeInvalidInput, "invalid --max-size"), "value", maxSize)
				}
				strategies = append(strategies, cache.PruneToSize(int64(limit)))
			}
			if len(strategies) == 0 {
				return errors.New(errors.CodeInvalidInput, "prune requires --older-than or --max-size")
			}

			manager, err := a.manager()
			if err != nil {
				return err
			}

			result, err := manager.Prune(cmd.Context(), strategies...)
			if err != nil {
				return err
			}
			a.printPruneResult(result)

			if every <= 0 {
				return nil
			}

			fmt.Fprintf(a.out, "Pruning every %s until interrupted\n", every)
			stop := manager.StartGC(every, strategies...)
			<-cmd.Context().Done()
			stop()
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Remove repositories not used within this duration")
	cmd.Flags().StringVar(&maxSize, "max-size", "", "Shrink the cache to at most this size")
	cmd.Flags().DurationVar(&every, "every", 0, "Keep running and prune again at this interval")
	return cmd
}

func (a *App) cacheClearCommand() *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove cached repositories",
		Long:  `Removes every cached repository, or only those of --url.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			manager, err := a.manager()
			if err != nil {
				return err
			}

			result, err := manager.Clear(cmd.Context(), url)
			if err != nil {
				return err
			}
			a.printPruneResult(result)
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "Only remove repositories cloned from this URL")
	return cmd
}

func (a *App) printPruneResult(result *cache.PruneResult) {
	fmt.Fprintf(a.out, "Removed %d repositories, freed %s\n",
		len(result.Removed), humanize.Bytes(uint64(result.BytesFreed)))
	if len(result.Skipped) > 0 {
		fmt.Fprintf(a.out, "Skipped %d repositories in use\n", len(result.Skipped))
	}
}
