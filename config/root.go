package config

import (
	"path/filepath"

	gogit "github.com/go-git/go-git/v5"
	"github.com/jmgilman/go/errors"
	"github.com/jmgilman/gitwire"
)

// FindRoot returns the top-level working tree directory of the git repository
// enclosing workDir. Parent directories are searched until a .git entry is found.
func FindRoot(workDir string) (string, error) {
	abs, err := filepath.Abs(workDir)
	if err != nil {
		return "", errors.WithContext(
			errors.Wrap(err, gitwire.CodeRootNotFound, "failed to resolve working directory"), "path", workDir)
	}

	repo, err := gogit.PlainOpenWithOptions(abs, &gogit.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
	if err != nil {
		msg := "failed to open repository"
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			msg = "not inside a git repository"
		}
		return "", errors.WithContext(errors.Wrap(err, gitwire.CodeRootNotFound, msg), "path", abs)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return "", errors.WithContext(
			errors.Wrap(err, gitwire.CodeRootNotFound, "repository has no working tree"), "path", abs)
	}

	return wt.Filesystem.Root(), nil
}
