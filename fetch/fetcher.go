package fetch

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/jmgilman/go/errors"
	"github.com/jmgilman/go/exec"
	"github.com/jmgilman/gitwire"
	"github.com/jmgilman/gitwire/internal/logging"
)

// gitEnv is applied to every git invocation. git must never prompt; credentials
// come from a helper or agent.
var gitEnv = map[string]string{
	"GIT_TERMINAL_PROMPT": "0",
}

// Result describes the state of a slot after Fetch.
type Result struct {
	// CacheHit is true when the slot already held a checkout and git was not run.
	CacheHit bool

	// Commit is the checked out commit. Empty on a cache hit.
	Commit string

	// Revision is what was handed to git: a resolved ref hash, the pinned
	// commit, or the entry's revision unchanged.
	Revision string
}

// Fetcher clones entries into cache slots. It is safe for concurrent use as
// long as each call targets a different directory.
type Fetcher struct {
	executor exec.Executor
	refs     RefLister
	fs       billy.Filesystem
	logger   *logging.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithExecutor replaces the command executor. The executor is cloned for
// every git invocation.
func WithExecutor(executor exec.Executor) Option {
	return func(f *Fetcher) {
		f.executor = executor
	}
}

// WithRefLister replaces the remote ref lister.
func WithRefLister(refs RefLister) Option {
	return func(f *Fetcher) {
		f.refs = refs
	}
}

// WithFilesystem replaces the filesystem used to prepare and remove slots.
// It must be backed by the same disk git writes to.
func WithFilesystem(fs billy.Filesystem) Option {
	return func(f *Fetcher) {
		f.fs = fs
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// New creates a Fetcher that runs the git binary found on PATH.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		executor: exec.New(),
		refs:     NewRemoteRefLister(),
		fs:       osfs.New("/"),
		logger:   logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch makes dir hold the entry's revision.
//
// When dir/.git exists the slot is reused as is. Otherwise dir is emptied, the
// revision is resolved and the entry's method is run. Any failure after that
// point removes dir.
func (f *Fetcher) Fetch(ctx context.Context, e gitwire.Entry, dir string) (*Result, error) {
	logger := f.logger.With("url", e.URL, "revision", e.Revision, "path", dir)

	if f.isCheckout(dir) {
		logger.Debug(ctx, "reusing cached checkout")
		return &Result{CacheHit: true, Revision: e.Revision}, nil
	}

	if err := f.prepare(dir); err != nil {
		return nil, err
	}

	target, err := f.target(ctx, e)
	if err != nil {
		f.discard(ctx, dir)
		return nil, err
	}

	method := e.Method.OrDefault()
	logger.Info(ctx, "fetching repository", "method", method.String(), "target", target)

	var commitRef string
	switch method {
	case gitwire.MethodPartial:
		err = f.partial(ctx, e, dir, target)
		commitRef = target
	default:
		err = f.shallow(ctx, e, dir, target, method.Sparse())
		commitRef = "HEAD"
	}
	if err != nil {
		f.discard(ctx, dir)
		return nil, err
	}

	commit, err := f.revParse(ctx, dir, commitRef)
	if err != nil {
		f.discard(ctx, dir)
		return nil, err
	}

	logger.Debug(ctx, "fetch complete", "commit", commit)
	return &Result{Commit: commit, Revision: target}, nil
}

// target returns what git should fetch: the pinned commit, the hash of the
// best matching remote ref, or the revision unchanged.
func (f *Fetcher) target(ctx context.Context, e gitwire.Entry) (string, error) {
	if e.Commit != "" {
		return e.Commit, nil
	}

	refs, err := f.refs.ListRefs(ctx, e.URL)
	if err != nil {
		return "", err
	}

	ref, ok, err := ResolveRevision(refs, e.Revision)
	if err != nil {
		return "", err
	}
	if !ok {
		f.logger.Debug(ctx, "no matching ref, using revision as is", "revision", e.Revision)
		return e.Revision, nil
	}

	f.logger.Debug(ctx, "resolved revision", "revision", e.Revision, "ref", ref.Name, "hash", ref.Hash)
	return ref.Hash, nil
}

func (f *Fetcher) shallow(ctx context.Context, e gitwire.Entry, dir, target string, sparse bool) error {
	if _, err := f.git(ctx, dir).Run("init", "--quiet"); err != nil {
		return mapExecError(err, gitwire.CodeCloneInvocation, gitwire.CodeCloneRejected, "git init failed")
	}

	if _, err := f.git(ctx, dir).Run("remote", "add", "origin", e.URL); err != nil {
		return mapExecError(err, gitwire.CodeCloneInvocation, gitwire.CodeCloneRejected, "git remote add failed")
	}

	if sparse {
		args := append([]string{"sparse-checkout", "set", "--no-cone"}, sparsePatterns(e.Sources)...)
		if _, err := f.git(ctx, dir).Run(args...); err != nil {
			// The checkout still succeeds without it, only with more files.
			f.logger.Warn(ctx, "could not activate sparse checkout, the git client might not support it",
				"path", dir, "error", stderrOf(err))
		}
	}

	if _, err := f.git(ctx, dir).Run("fetch", "--depth", "1", "origin", target); err != nil {
		return mapExecError(err, gitwire.CodeFetchInvocation, gitwire.CodeFetchRejected, "git fetch failed")
	}

	if _, err := f.git(ctx, dir).Run("checkout", "--quiet", "FETCH_HEAD"); err != nil {
		return mapExecError(err, gitwire.CodeCheckoutInvocation, gitwire.CodeCheckoutRejected, "git checkout failed")
	}

	return nil
}

func (f *Fetcher) partial(ctx context.Context, e gitwire.Entry, dir, target string) error {
	if _, err := f.git(ctx, dir).Run("clone", "--quiet", "--no-checkout", e.URL, "."); err != nil {
		return mapExecError(err, gitwire.CodeCloneInvocation, gitwire.CodeCloneRejected, "git clone failed")
	}

	args := append([]string{"checkout", "--quiet", target, "--"}, e.Sources...)
	if _, err := f.git(ctx, dir).Run(args...); err != nil {
		return mapExecError(err, gitwire.CodeCheckoutInvocation, gitwire.CodeCheckoutRejected, "git checkout failed")
	}

	return nil
}

func (f *Fetcher) revParse(ctx context.Context, dir, ref string) (string, error) {
	res, err := f.git(ctx, dir).Run("rev-parse", "--verify", ref+"^{commit}")
	if err != nil {
		return "", mapExecError(err, gitwire.CodeCheckoutInvocation, gitwire.CodeCheckoutRejected,
			"failed to read checked out commit")
	}
	return strings.TrimSpace(res.Stdout), nil
}

// git returns a fresh git command bound to dir and ctx.
func (f *Fetcher) git(ctx context.Context, dir string) exec.Executor {
	return exec.NewWrapper(f.executor.Clone(), "git").
		WithInheritEnv().
		WithEnv(gitEnv).
		WithDir(dir).
		WithContext(ctx)
}

func (f *Fetcher) isCheckout(dir string) bool {
	_, err := f.fs.Stat(filepath.Join(dir, ".git"))
	return err == nil
}

// prepare leaves dir existing and empty.
func (f *Fetcher) prepare(dir string) error {
	if err := util.RemoveAll(f.fs, dir); err != nil && !os.IsNotExist(err) {
		return errors.WithContext(
			errors.Wrap(err, gitwire.CodeCacheIO, "failed to clear cache directory"), "path", dir)
	}
	if err := f.fs.MkdirAll(dir, 0o755); err != nil {
		return errors.WithContext(
			errors.Wrap(err, gitwire.CodeCacheIO, "failed to create cache directory"), "path", dir)
	}
	return nil
}

func (f *Fetcher) discard(ctx context.Context, dir string) {
	if err := util.RemoveAll(f.fs, dir); err != nil {
		f.logger.Warn(ctx, "failed to remove incomplete cache directory", "path", dir, "error", err)
	}
}

// sparsePatterns anchors each source at the repository root.
func sparsePatterns(sources []string) []string {
	patterns := make([]string, 0, len(sources))
	for _, src := range sources {
		patterns = append(patterns, "/"+strings.TrimLeft(filepath.ToSlash(src), "/"))
	}
	return patterns
}
