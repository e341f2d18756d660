package wire

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/jmgilman/go/errors"
	"github.com/jmgilman/gitwire"
	"github.com/jmgilman/gitwire/filter"
	"github.com/jmgilman/gitwire/internal/logging"
	"github.com/jmgilman/gitwire/treediff"
)

// Checker compares the destination of an entry with a fresh copy of its sources.
type Checker struct {
	fetcher Fetcher
	filter  *filter.Filter
	fs      billy.Filesystem
	diff    bool
	tempDir string
	logger  *logging.Logger
	out     *printer
}

// CheckOption configures a Checker.
type CheckOption func(*Checker)

// WithCheckFilter sets the content filter used to build the expected tree.
func WithCheckFilter(f *filter.Filter) CheckOption {
	return func(c *Checker) {
		c.filter = f
	}
}

// WithDiff prints a line diff below every changed file.
func WithDiff(enabled bool) CheckOption {
	return func(c *Checker) {
		c.diff = enabled
	}
}

// WithTempDir sets the parent of the per-check temporary directories. Defaults
// to os.TempDir().
func WithTempDir(dir string) CheckOption {
	return func(c *Checker) {
		c.tempDir = dir
	}
}

// WithCheckLogger sets the logger.
func WithCheckLogger(logger *logging.Logger) CheckOption {
	return func(c *Checker) {
		c.logger = logger
	}
}

// WithCheckOutput sets where findings are printed. Defaults to os.Stdout.
func WithCheckOutput(w io.Writer) CheckOption {
	return func(c *Checker) {
		c.out = newPrinter(w)
	}
}

// NewChecker creates a Checker that fetches through fetcher.
func NewChecker(fetcher Fetcher, opts ...CheckOption) *Checker {
	c := &Checker{
		fetcher: fetcher,
		fs:      osfs.New("/"),
		tempDir: os.TempDir(),
		logger:  logging.NewNopLogger(),
		out:     newPrinter(os.Stdout),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.filter == nil {
		c.filter = filter.New(filter.WithLogger(c.logger))
	}
	return c
}

// Check reports whether the destination of e under root holds exactly what
// filtering a fresh fetch of e produces. Differences are printed, not returned
// as errors.
func (c *Checker) Check(ctx context.Context, root string, e gitwire.Entry) (bool, error) {
	return c.check(ctx, root, e, "")
}

// Operation adapts the Checker to a Runner operation over root.
func (c *Checker) Operation(root string) Operation {
	return func(ctx context.Context, prefix string, e gitwire.Entry) (bool, error) {
		return c.check(ctx, root, e, prefix)
	}
}

func (c *Checker) check(ctx context.Context, root string, e gitwire.Entry, prefix string) (bool, error) {
	if err := e.Validate(); err != nil {
		return false, err
	}

	dest, err := resolveDestination(root, e.Destination)
	if err != nil {
		return false, err
	}

	tmp, err := util.TempDir(c.fs, c.tempDir, "gitwire-check-")
	if err != nil {
		return false, errors.WithContext(
			errors.Wrap(err, gitwire.CodeTempDir, "failed to create temporary directory"), "path", c.tempDir)
	}
	defer func() {
		if err := util.RemoveAll(c.fs, tmp); err != nil {
			c.logger.Warn(ctx, "failed to remove temporary directory", "path", tmp, "error", err)
		}
	}()

	repoDir := filepath.Join(tmp, "repo")
	expected := filepath.Join(tmp, "expected")

	if _, err := c.fetcher.Fetch(ctx, e, repoDir); err != nil {
		return false, err
	}
	if _, err := c.filter.Apply(ctx, repoDir, expected, e.Sources); err != nil {
		return false, errors.WithContext(
			errors.Wrap(err, gitwire.CodeCompareFailed, "failed to build expected tree"), "entry", e.Label())
	}

	c.out.line(nil, "  - %scompare `src` and `dst`", prefix)

	result, err := treediff.Compare(c.fs, expected, dest)
	if err != nil {
		return false, err
	}

	for _, rel := range result.Missing {
		c.out.line(problemColor, "    %s! file %s does not exist", prefix, path.Join(e.Destination, rel))
	}
	for _, rel := range result.Extra {
		c.out.line(problemColor, "    %s! file %s does not exist on original", prefix, path.Join(e.Destination, rel))
	}
	for _, rel := range result.Changed {
		c.out.line(problemColor, "    %s! file %s is not identical to original", prefix, path.Join(e.Destination, rel))
		if c.diff {
			c.printDiff(ctx, expected, dest, rel)
		}
	}

	c.logger.Debug(ctx, "check completed", "entry", e.Label(), "equal", result.Equal(),
		"missing", len(result.Missing), "extra", len(result.Extra), "changed", len(result.Changed))
	return result.Equal(), nil
}

func (c *Checker) printDiff(ctx context.Context, expected, dest, rel string) {
	diff, err := treediff.Diff(c.fs,
		filepath.Join(expected, filepath.FromSlash(rel)),
		filepath.Join(dest, filepath.FromSlash(rel)))
	if err != nil {
		c.logger.Warn(ctx, "cannot render diff", "path", rel, "error", err)
		return
	}

	for _, line := range strings.Split(strings.TrimSuffix(diff, "\n"), "\n") {
		var col *color.Color
		switch {
		case strings.HasPrefix(line, "-"):
			col = problemColor
		case strings.HasPrefix(line, "+"):
			col = addedColor
		}
		c.out.line(col, "      %s", line)
	}
}
