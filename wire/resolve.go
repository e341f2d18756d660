package wire

import (
	"context"
	"path/filepath"

	"github.com/jmgilman/go/errors"
	"github.com/jmgilman/gitwire"
	"github.com/jmgilman/gitwire/config"
	"github.com/jmgilman/gitwire/internal/logging"
)

const usage = `No .gitwire.toml file found and no command line entry provided.

Usage examples:

  gitwire sync --url <URL> --rev <REV> --src <SRC> --dst <DST>

  gitwire sync --url <URL> --rev <REV> --src '["lib","tools"]' --dst <DST>`

// Prompter builds an entry interactively. ok is false when the user declines.
type Prompter interface {
	Prompt(ctx context.Context) (e gitwire.Entry, ok bool, err error)
}

// Request describes where entries come from.
type Request struct {
	// WorkDir is where the search for the project root starts. Defaults to ".".
	WorkDir string

	// NameFilter keeps only configured entries with this name.
	NameFilter string

	// Override is an entry given on the command line. Its non-empty fields
	// replace those of the configured entries matched by NameFilter.
	Override *gitwire.Entry

	// Save persists the override, after merging, to .gitwire.toml.
	Save bool

	// Append adds the saved entry to the existing file instead of replacing it.
	Append bool
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	// Root is the project root destinations are relative to.
	Root string

	// Entries are the validated entries to operate on.
	Entries []gitwire.Entry

	// Saved is the entry written to .gitwire.toml, if any.
	Saved *gitwire.Entry
}

// Resolver merges the configuration file of a project with a command line
// override.
type Resolver struct {
	loader   *config.Loader
	findRoot func(workDir string) (string, error)
	prompter Prompter
	logger   *logging.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithPrompter sets the prompter used when neither a configuration file nor an
// override provides entries.
func WithPrompter(p Prompter) ResolverOption {
	return func(r *Resolver) {
		r.prompter = p
	}
}

// WithRootFinder replaces config.FindRoot.
func WithRootFinder(find func(workDir string) (string, error)) ResolverOption {
	return func(r *Resolver) {
		r.findRoot = find
	}
}

// WithResolverLogger sets the logger.
func WithResolverLogger(logger *logging.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a Resolver reading configuration through loader.
func NewResolver(loader *config.Loader, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		loader:   loader,
		findRoot: config.FindRoot,
		logger:   logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve determines the project root and the entries to operate on.
//
// With a configuration file and an override, entries named like NameFilter are
// merged with the override; when none matches, or no filter is given, the
// override is the only entry. With only a configuration file, its entries are
// filtered by name. With only an override, it is the only entry. With neither,
// the prompter is asked and its entry is written to .gitwire.toml.
//
// Destinations of configured entries are relative to the repository root.
// Without configured entries they are relative to the working directory, while
// a saved entry still goes to the repository root.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Resolution, error) {
	if req.Append && !req.Save {
		return nil, errors.New(errors.CodeInvalidInput, "append requires save")
	}

	workDir := req.WorkDir
	if workDir == "" {
		workDir = "."
	}

	cwd, err := filepath.Abs(workDir)
	if err != nil {
		return nil, errors.WithContext(
			errors.Wrap(err, gitwire.CodeRootNotFound, "failed to resolve working directory"), "path", workDir)
	}

	// root is where .gitwire.toml lives; entries without one operate on cwd.
	root, err := r.findRoot(workDir)
	var fileEntries []gitwire.Entry
	if err == nil {
		if fileEntries, err = r.loader.Load(root); err != nil {
			return nil, err
		}
	} else {
		r.logger.Debug(ctx, "no enclosing repository", "path", workDir, "error", err)
		root = cwd
	}

	override := req.Override
	if override != nil && override.IsZero() {
		override = nil
	}

	res := &Resolution{Root: root}
	switch {
	case len(fileEntries) > 0 && override != nil:
		res.Entries, res.Saved = mergeOverride(fileEntries, *override, req.NameFilter)

	case len(fileEntries) > 0:
		res.Entries = fileEntries
		if req.NameFilter != "" {
			res.Entries = filterByName(fileEntries, req.NameFilter)
			if len(res.Entries) == 0 {
				return nil, errors.WithContext(
					errors.Newf(gitwire.CodeNothingToOperate,
						"No entry with name '%s' found in %s", req.NameFilter, config.FileName),
					"name", req.NameFilter)
			}
		}

	case override != nil:
		e := *override
		res.Root = cwd
		res.Entries = []gitwire.Entry{e}
		res.Saved = &e

	default:
		e, err := r.prompt(ctx)
		if err != nil {
			return nil, err
		}
		if err := e.Validate(); err != nil {
			return nil, err
		}
		if err := r.loader.Save(root, e, false); err != nil {
			return nil, err
		}
		res.Root = cwd
		res.Entries = []gitwire.Entry{e}
		return res, nil
	}

	for _, e := range res.Entries {
		if err := e.Validate(); err != nil {
			return nil, err
		}
	}

	if req.Save && res.Saved != nil {
		if err := r.loader.Save(root, *res.Saved, req.Append); err != nil {
			return nil, err
		}
	} else {
		res.Saved = nil
	}

	r.logger.Debug(ctx, "entries resolved", "root", root, "entries", len(res.Entries))
	return res, nil
}

func (r *Resolver) prompt(ctx context.Context) (gitwire.Entry, error) {
	if r.prompter == nil {
		return gitwire.Entry{}, errors.New(gitwire.CodeNothingToOperate, usage)
	}

	e, ok, err := r.prompter.Prompt(ctx)
	if err != nil {
		return gitwire.Entry{}, err
	}
	if !ok {
		return gitwire.Entry{}, errors.New(gitwire.CodeNothingToOperate, usage)
	}
	return e, nil
}

// mergeOverride applies override to the entries named name. It returns the
// resulting entries and the entry to persist.
func mergeOverride(entries []gitwire.Entry, override gitwire.Entry, name string) ([]gitwire.Entry, *gitwire.Entry) {
	if name != "" {
		var merged []gitwire.Entry
		for _, e := range filterByName(entries, name) {
			merged = append(merged, e.Merge(override))
		}
		if len(merged) > 0 {
			saved := merged[0]
			return merged, &saved
		}
	}

	saved := override
	return []gitwire.Entry{override}, &saved
}

func filterByName(entries []gitwire.Entry, name string) []gitwire.Entry {
	var out []gitwire.Entry
	for _, e := range entries {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}
