// Package testutil builds fixture repositories and files for tests.
//
// Fixture repositories are created with go-git on disk under t.TempDir() and
// are reachable by the git binary through their file:// URL.
package testutil

import (
	osexec "os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Test author used for every fixture commit and annotated tag.
const (
	TestAuthor = "Test User"
	TestEmail  = "test@example.com"
)

// Repo is a non-bare fixture repository with "main" as its default branch.
type Repo struct {
	// Path is the working tree directory.
	Path string

	// URL is the file:// URL of Path.
	URL string

	t    testing.TB
	repo *gogit.Repository
}

// RequireGit skips the test when the git binary is not on PATH.
func RequireGit(t testing.TB) {
	t.Helper()
	if _, err := osexec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
}

// NewRepo initializes an empty fixture repository.
func NewRepo(t testing.TB) *Repo {
	t.Helper()

	path := filepath.Join(t.TempDir(), "origin")
	repo, err := gogit.PlainInitWithOptions(path, &gogit.PlainInitOptions{
		InitOptions: gogit.InitOptions{
			DefaultBranch: plumbing.NewBranchReferenceName("main"),
		},
	})
	if err != nil {
		t.Fatalf("init fixture repository: %v", err)
	}

	return &Repo{
		Path: path,
		URL:  "file://" + filepath.ToSlash(path),
		t:    t,
		repo: repo,
	}
}

// WriteFile writes content to a path relative to the working tree.
func (r *Repo) WriteFile(path, content string) {
	r.t.Helper()

	wt, err := r.repo.Worktree()
	if err != nil {
		r.t.Fatalf("open worktree: %v", err)
	}
	if err := util.WriteFile(wt.Filesystem, path, []byte(content), 0o644); err != nil {
		r.t.Fatalf("write %s: %v", path, err)
	}
}

// Commit stages every change and commits it, returning the commit hash.
func (r *Repo) Commit(message string) string {
	r.t.Helper()

	wt, err := r.repo.Worktree()
	if err != nil {
		r.t.Fatalf("open worktree: %v", err)
	}
	if err := wt.AddWithOptions(&gogit.AddOptions{All: true}); err != nil {
		r.t.Fatalf("stage changes: %v", err)
	}

	hash, err := wt.Commit(message, &gogit.CommitOptions{
		Author:            signature(),
		AllowEmptyCommits: true,
	})
	if err != nil {
		r.t.Fatalf("commit: %v", err)
	}
	return hash.String()
}

// Tag creates a tag on hash. Annotated tags get a message and a tagger.
func (r *Repo) Tag(name, hash string, annotated bool) {
	r.t.Helper()

	var opts *gogit.CreateTagOptions
	if annotated {
		opts = &gogit.CreateTagOptions{
			Tagger:  signature(),
			Message: "release " + name,
		}
	}
	if _, err := r.repo.CreateTag(name, plumbing.NewHash(hash), opts); err != nil {
		r.t.Fatalf("create tag %s: %v", name, err)
	}
}

// Branch points a branch at hash, creating it if needed.
func (r *Repo) Branch(name, hash string) {
	r.t.Helper()

	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), plumbing.NewHash(hash))
	if err := r.repo.Storer.SetReference(ref); err != nil {
		r.t.Fatalf("create branch %s: %v", name, err)
	}
}

// WriteFiles writes each path and content pair into fs.
func WriteFiles(t testing.TB, fs billy.Filesystem, files map[string]string) {
	t.Helper()

	for path, content := range files {
		if err := util.WriteFile(fs, path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
}

// ReadFile returns the content of path in fs, failing the test if it is missing.
func ReadFile(t testing.TB, fs billy.Filesystem, path string) string {
	t.Helper()

	data, err := util.ReadFile(fs, path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func signature() *object.Signature {
	return &object.Signature{
		Name:  TestAuthor,
		Email: TestEmail,
		When:  time.Now(),
	}
}
