// Package filter copies selected paths out of a checked out repository into a
// destination directory.
//
// Each filter is one of:
//
//   - a file: copied to <dest>/<basename>
//   - a directory: its tree copied to <dest>/<filter>/...
//   - a glob (contains any of *?[{): every regular file whose repository
//     relative path matches is copied to <dest>/<path>
//
// Symlinks, non-regular files and .git entries are never copied. A filter that
// matches nothing is reported in Report.Missing and logged; it is not an error.
package filter

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/jmgilman/go/errors"
	"github.com/jmgilman/gitwire/internal/logging"
)

const globMeta = "*?[{"

// Report lists what Apply did.
type Report struct {
	// Copied holds destination relative paths, slash separated and sorted.
	Copied []string

	// Missing holds the filters that matched nothing, in input order.
	Missing []string
}

// Filter copies filtered content between two directories of one filesystem.
type Filter struct {
	fs     billy.Filesystem
	logger *logging.Logger
}

// Option configures a Filter.
type Option func(*Filter)

// WithFilesystem sets the filesystem. Defaults to the local disk.
func WithFilesystem(fs billy.Filesystem) Option {
	return func(f *Filter) {
		f.fs = fs
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(f *Filter) {
		f.logger = logger
	}
}

// New creates a Filter.
func New(opts ...Option) *Filter {
	f := &Filter{
		fs:     osfs.New("/"),
		logger: logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Normalize cleans a filter into a slash separated path relative to the
// repository root. The repository root itself normalizes to "".
func Normalize(filter string) string {
	cleaned := path.Clean("/" + filepath.ToSlash(filter))
	return strings.TrimPrefix(cleaned, "/")
}

// IsGlob reports whether filter is a doublestar pattern.
func IsGlob(filter string) bool {
	return strings.ContainsAny(filter, globMeta)
}

// Apply copies every filter from srcRoot into destRoot. destRoot is created if
// needed; existing files in it are overwritten, other files are left alone.
func (f *Filter) Apply(ctx context.Context, srcRoot, destRoot string, filters []string) (*Report, error) {
	report := &Report{}
	copied := map[string]bool{}

	if err := f.fs.MkdirAll(destRoot, 0o755); err != nil {
		return nil, errors.WithContext(
			errors.Wrap(err, errors.CodeInternal, "failed to create destination"), "path", destRoot)
	}

	for _, raw := range filters {
		norm := Normalize(raw)

		var found bool
		var err error
		if IsGlob(norm) {
			found, err = f.applyGlob(srcRoot, destRoot, norm, copied)
		} else {
			found, err = f.applyPath(srcRoot, destRoot, norm, copied)
		}
		if err != nil {
			return nil, err
		}

		if !found {
			f.logger.Warn(ctx, "source path not found in repository", "filter", raw, "root", srcRoot)
			report.Missing = append(report.Missing, raw)
		}
	}

	for rel := range copied {
		report.Copied = append(report.Copied, rel)
	}
	sort.Strings(report.Copied)

	f.logger.Debug(ctx, "filter applied", "copied", len(report.Copied), "missing", len(report.Missing))
	return report, nil
}

// Present returns the filters that would copy at least one file from srcRoot,
// in input order. It copies nothing.
func (f *Filter) Present(srcRoot string, filters []string) ([]string, error) {
	var present []string
	for _, raw := range filters {
		norm := Normalize(raw)

		var found bool
		if IsGlob(norm) {
			if !doublestar.ValidatePattern(norm) {
				return nil, errors.WithContext(
					errors.New(errors.CodeInvalidInput, "invalid glob pattern"), "pattern", raw)
			}
			err := f.walkFiles(srcRoot, func(file string, _ os.FileInfo) error {
				if found {
					return nil
				}
				rel, err := filepath.Rel(srcRoot, file)
				if err != nil {
					return err
				}
				found, err = doublestar.Match(norm, filepath.ToSlash(rel))
				return err
			})
			if err != nil {
				return nil, err
			}
		} else {
			info, err := f.fs.Lstat(filepath.Join(srcRoot, filepath.FromSlash(norm)))
			found = err == nil && (info.Mode().IsRegular() || info.IsDir())
		}

		if found {
			present = append(present, raw)
		}
	}
	return present, nil
}

// applyPath copies one file or directory filter.
func (f *Filter) applyPath(srcRoot, destRoot, norm string, copied map[string]bool) (bool, error) {
	src := filepath.Join(srcRoot, filepath.FromSlash(norm))

	info, err := f.fs.Lstat(src)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.WithContext(
			errors.Wrap(err, errors.CodeInternal, "failed to inspect source"), "path", src)
	}

	switch {
	case info.Mode().IsRegular():
		rel := path.Base(norm)
		if err := f.copyFile(src, filepath.Join(destRoot, rel), info.Mode()); err != nil {
			return false, err
		}
		copied[rel] = true
		return true, nil

	case info.IsDir():
		err := f.walkFiles(src, func(file string, fi os.FileInfo) error {
			rel, err := filepath.Rel(src, file)
			if err != nil {
				return err
			}
			destRel := path.Join(norm, filepath.ToSlash(rel))
			if err := f.copyFile(file, filepath.Join(destRoot, filepath.FromSlash(destRel)), fi.Mode()); err != nil {
				return err
			}
			copied[destRel] = true
			return nil
		})
		return true, err

	default:
		return false, nil
	}
}

// applyGlob copies every regular file under srcRoot matching pattern.
func (f *Filter) applyGlob(srcRoot, destRoot, pattern string, copied map[string]bool) (bool, error) {
	if !doublestar.ValidatePattern(pattern) {
		return false, errors.WithContext(
			errors.New(errors.CodeInvalidInput, "invalid glob pattern"), "pattern", pattern)
	}

	found := false
	err := f.walkFiles(srcRoot, func(file string, fi os.FileInfo) error {
		rel, err := filepath.Rel(srcRoot, file)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		ok, err := doublestar.Match(pattern, rel)
		if err != nil || !ok {
			return err
		}

		if err := f.copyFile(file, filepath.Join(destRoot, filepath.FromSlash(rel)), fi.Mode()); err != nil {
			return err
		}
		copied[rel] = true
		found = true
		return nil
	})
	return found, err
}

// walkFiles calls fn for every regular file under root, skipping .git.
func (f *Filter) walkFiles(root string, fn func(file string, fi os.FileInfo) error) error {
	err := util.Walk(f.fs, root, func(file string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.Name() == ".git" && file != root {
			if fi.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !fi.Mode().IsRegular() {
			return nil
		}
		return fn(file, fi)
	})
	if err != nil && errors.GetCode(err) == errors.CodeUnknown {
		return errors.WithContext(
			errors.Wrap(err, errors.CodeInternal, "failed to walk source tree"), "path", root)
	}
	return err
}

func (f *Filter) copyFile(src, dst string, mode os.FileMode) error {
	if err := f.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.WithContext(
			errors.Wrap(err, errors.CodeInternal, "failed to create directory"), "path", filepath.Dir(dst))
	}

	in, err := f.fs.Open(src)
	if err != nil {
		return errors.WithContext(errors.Wrap(err, errors.CodeInternal, "failed to open source file"), "path", src)
	}
	defer func() { _ = in.Close() }()

	out, err := f.fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return errors.WithContext(errors.Wrap(err, errors.CodeInternal, "failed to create file"), "path", dst)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return errors.WithContext(errors.Wrap(err, errors.CodeInternal, "failed to copy file"), "path", dst)
	}
	if err := out.Close(); err != nil {
		return errors.WithContext(errors.Wrap(err, errors.CodeInternal, "failed to close file"), "path", dst)
	}

	if ch, ok := f.fs.(billy.Change); ok {
		if err := ch.Chmod(dst, mode.Perm()); err != nil {
			return errors.WithContext(errors.Wrap(err, errors.CodeInternal, "failed to set permissions"), "path", dst)
		}
	}

	return nil
}
