package fetch

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/jmgilman/go/errors"
	"github.com/jmgilman/go/exec"
	"github.com/jmgilman/gitwire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	args []string
	dir  string
	env  map[string]string
}

// recorder is shared by a fakeExecutor and all of its clones.
type recorder struct {
	mu      sync.Mutex
	calls   []call
	respond func(args []string) (*exec.Result, error)
}

func (r *recorder) commands() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([][]string, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c.args)
	}
	return out
}

type fakeExecutor struct {
	rec *recorder
	dir string
	env map[string]string
}

func newFakeExecutor(respond func(args []string) (*exec.Result, error)) *fakeExecutor {
	return &fakeExecutor{rec: &recorder{respond: respond}, env: map[string]string{}}
}

func (f *fakeExecutor) WithEnv(env map[string]string) exec.Executor {
	for k, v := range env {
		f.env[k] = v
	}
	return f
}

func (f *fakeExecutor) WithDir(dir string) exec.Executor { f.dir = dir; return f }
func (f *fakeExecutor) WithContext(context.Context) exec.Executor { return f }
func (f *fakeExecutor) WithDisableColors() exec.Executor { return f }
func (f *fakeExecutor) WithTimeout(string) exec.Executor { return f }
func (f *fakeExecutor) WithInheritEnv() exec.Executor { return f }
func (f *fakeExecutor) WithStdout(io.Writer) exec.Executor { return f }
func (f *fakeExecutor) WithStderr(io.Writer) exec.Executor { return f }
func (f *fakeExecutor) WithPassthrough() exec.Executor { return f }
func (f *fakeExecutor) Clone() exec.Executor { return &fakeExecutor{rec: f.rec, env: map[string]string{}} }

func (f *fakeExecutor) Run(args ...string) (*exec.Result, error) {
	env := make(map[string]string, len(f.env))
	for k, v := range f.env {
		env[k] = v
	}

	f.rec.mu.Lock()
	f.rec.calls = append(f.rec.calls, call{args: args, dir: f.dir, env: env})
	respond := f.rec.respond
	f.rec.mu.Unlock()

	if respond == nil {
		return &exec.Result{}, nil
	}
	return respond(args)
}

type fakeRefs struct {
	refs  []Ref
	err   error
	calls int
}

func (f *fakeRefs) ListRefs(context.Context, string) ([]Ref, error) {
	f.calls++
	return f.refs, f.err
}

// succeed answers rev-parse with commit and everything else with success.
func succeed(commit string) func(args []string) (*exec.Result, error) {
	return func(args []string) (*exec.Result, error) {
		if len(args) > 1 && args[1] == "rev-parse" {
			return &exec.Result{Stdout: commit + "\n"}, nil
		}
		return &exec.Result{}, nil
	}
}

// failOn fails the first invocation whose subcommand is sub.
func failOn(sub string, exitCode int, stderr string) func(args []string) (*exec.Result, error) {
	return func(args []string) (*exec.Result, error) {
		if len(args) > 1 && args[1] == sub {
			return &exec.Result{ExitCode: exitCode, Stderr: stderr}, &exec.ExecError{
				Command:  args,
				ExitCode: exitCode,
				Stderr:   stderr,
				Err:      fmt.Errorf("exit status %d", exitCode),
			}
		}
		return succeed("c0ffee")(args)
	}
}

func testEntry(method gitwire.Method) gitwire.Entry {
	return gitwire.Entry{
		Name:        "docs",
		URL:         "https://example.com/repo.git",
		Revision:    "main",
		Sources:     []string{"docs", "README.md"},
		Destination: "vendor/docs",
		Method:      method,
	}
}

func mainRefs() *fakeRefs {
	return &fakeRefs{refs: []Ref{
		{Name: "refs/heads/main", Hash: "aaa"},
		{Name: "refs/heads/other-main", Hash: "bbb"},
	}}
}

func TestFetch_Strategies(t *testing.T) {
	tests := []struct {
		name   string
		method gitwire.Method
		want   [][]string
	}{
		{
			name:   "shallow",
			method: gitwire.MethodShallow,
			want: [][]string{
				{"git", "init", "--quiet"},
				{"git", "remote", "add", "origin", "https://example.com/repo.git"},
				{"git", "sparse-checkout", "set", "--no-cone", "/docs", "/README.md"},
				{"git", "fetch", "--depth", "1", "origin", "aaa"},
				{"git", "checkout", "--quiet", "FETCH_HEAD"},
				{"git", "rev-parse", "--verify", "HEAD^{commit}"},
			},
		},
		{
			name:   "empty method is shallow",
			method: "",
			want: [][]string{
				{"git", "init", "--quiet"},
				{"git", "remote", "add", "origin", "https://example.com/repo.git"},
				{"git", "sparse-checkout", "set", "--no-cone", "/docs", "/README.md"},
				{"git", "fetch", "--depth", "1", "origin", "aaa"},
				{"git", "checkout", "--quiet", "FETCH_HEAD"},
				{"git", "rev-parse", "--verify", "HEAD^{commit}"},
			},
		},
		{
			name:   "shallow without sparse",
			method: gitwire.MethodShallowNoSparse,
			want: [][]string{
				{"git", "init", "--quiet"},
				{"git", "remote", "add", "origin", "https://example.com/repo.git"},
				{"git", "fetch", "--depth", "1", "origin", "aaa"},
				{"git", "checkout", "--quiet", "FETCH_HEAD"},
				{"git", "rev-parse", "--verify", "HEAD^{commit}"},
			},
		},
		{
			name:   "partial",
			method: gitwire.MethodPartial,
			want: [][]string{
				{"git", "clone", "--quiet", "--no-checkout", "https://example.com/repo.git", "."},
				{"git", "checkout", "--quiet", "aaa", "--", "docs", "README.md"},
				{"git", "rev-parse", "--verify", "aaa^{commit}"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			executor := newFakeExecutor(succeed("c0ffee"))
			f := New(WithExecutor(executor), WithRefLister(mainRefs()), WithFilesystem(memfs.New()))

			res, err := f.Fetch(context.Background(), testEntry(tt.method), "/cache/slot")
			require.NoError(t, err)

			assert.False(t, res.CacheHit)
			assert.Equal(t, "c0ffee", res.Commit)
			assert.Equal(t, "aaa", res.Revision)
			assert.Equal(t, tt.want, executor.rec.commands())

			for _, c := range executor.rec.calls {
				assert.Equal(t, "/cache/slot", c.dir)
				assert.Equal(t, "0", c.env["GIT_TERMINAL_PROMPT"])
			}
		})
	}
}

func TestFetch_CacheHit(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, fs.MkdirAll("/cache/slot/.git", 0o755))

	executor := newFakeExecutor(nil)
	refs := mainRefs()
	f := New(WithExecutor(executor), WithRefLister(refs), WithFilesystem(fs))

	res, err := f.Fetch(context.Background(), testEntry(gitwire.MethodShallow), "/cache/slot")
	require.NoError(t, err)

	assert.True(t, res.CacheHit)
	assert.Empty(t, executor.rec.commands())
	assert.Zero(t, refs.calls)
}

func TestFetch_ReservedEmptySlotIsMiss(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, fs.MkdirAll("/cache/slot", 0o755))

	executor := newFakeExecutor(succeed("c0ffee"))
	f := New(WithExecutor(executor), WithRefLister(mainRefs()), WithFilesystem(fs))

	res, err := f.Fetch(context.Background(), testEntry(gitwire.MethodShallow), "/cache/slot")
	require.NoError(t, err)
	assert.False(t, res.CacheHit)
	assert.NotEmpty(t, executor.rec.commands())
}

func TestFetch_PinnedCommitSkipsResolution(t *testing.T) {
	executor := newFakeExecutor(succeed("deadbeef"))
	refs := mainRefs()
	f := New(WithExecutor(executor), WithRefLister(refs), WithFilesystem(memfs.New()))

	e := testEntry(gitwire.MethodShallowNoSparse)
	e.Commit = "deadbeef"

	res, err := f.Fetch(context.Background(), e, "/cache/slot")
	require.NoError(t, err)

	assert.Zero(t, refs.calls)
	assert.Equal(t, "deadbeef", res.Revision)
	assert.Contains(t, executor.rec.commands(), []string{"git", "fetch", "--depth", "1", "origin", "deadbeef"})
}

func TestFetch_UnmatchedRevisionUsedAsIs(t *testing.T) {
	executor := newFakeExecutor(succeed("c0ffee"))
	f := New(WithExecutor(executor), WithRefLister(&fakeRefs{}), WithFilesystem(memfs.New()))

	e := testEntry(gitwire.MethodShallowNoSparse)
	e.Revision = "1a2b3c"

	res, err := f.Fetch(context.Background(), e, "/cache/slot")
	require.NoError(t, err)
	assert.Equal(t, "1a2b3c", res.Revision)
	assert.Contains(t, executor.rec.commands(), []string{"git", "fetch", "--depth", "1", "origin", "1a2b3c"})
}

func TestFetch_SparseFailureIsSoft(t *testing.T) {
	executor := newFakeExecutor(failOn("sparse-checkout", 129, "unknown subcommand"))
	f := New(WithExecutor(executor), WithRefLister(mainRefs()), WithFilesystem(memfs.New()))

	res, err := f.Fetch(context.Background(), testEntry(gitwire.MethodShallow), "/cache/slot")
	require.NoError(t, err)
	assert.Equal(t, "c0ffee", res.Commit)
}

func TestFetch_Failures(t *testing.T) {
	tests := []struct {
		name    string
		method  gitwire.Method
		respond func(args []string) (*exec.Result, error)
		want    errors.ErrorCode
	}{
		{
			name:    "init not startable",
			method:  gitwire.MethodShallow,
			respond: failOn("init", -1, ""),
			want:    gitwire.CodeCloneInvocation,
		},
		{
			name:    "fetch rejected",
			method:  gitwire.MethodShallow,
			respond: failOn("fetch", 128, "fatal: couldn't find remote ref main"),
			want:    gitwire.CodeFetchRejected,
		},
		{
			name:    "checkout rejected",
			method:  gitwire.MethodShallowNoSparse,
			respond: failOn("checkout", 1, "error: pathspec"),
			want:    gitwire.CodeCheckoutRejected,
		},
		{
			name:    "clone rejected",
			method:  gitwire.MethodPartial,
			respond: failOn("clone", 128, "fatal: repository not found"),
			want:    gitwire.CodeCloneRejected,
		},
		{
			name:    "partial checkout rejected",
			method:  gitwire.MethodPartial,
			respond: failOn("checkout", 1, "error: pathspec 'docs' did not match"),
			want:    gitwire.CodeCheckoutRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := memfs.New()
			f := New(WithExecutor(newFakeExecutor(tt.respond)), WithRefLister(mainRefs()), WithFilesystem(fs))

			_, err := f.Fetch(context.Background(), testEntry(tt.method), "/cache/slot")
			require.Error(t, err)
			assert.Equal(t, tt.want, errors.GetCode(err))

			_, statErr := fs.Stat("/cache/slot")
			assert.Error(t, statErr, "failed slot must be removed")
		})
	}
}

func TestFetch_RefListFailure(t *testing.T) {
	fs := memfs.New()
	refs := &fakeRefs{err: errors.New(gitwire.CodeRefList, "failed to list remote refs")}
	executor := newFakeExecutor(nil)
	f := New(WithExecutor(executor), WithRefLister(refs), WithFilesystem(fs))

	_, err := f.Fetch(context.Background(), testEntry(gitwire.MethodShallow), "/cache/slot")
	require.Error(t, err)
	assert.Equal(t, gitwire.CodeRefList, errors.GetCode(err))
	assert.Empty(t, executor.rec.commands())

	_, statErr := fs.Stat("/cache/slot")
	assert.Error(t, statErr)
}

func TestMapExecError(t *testing.T) {
	t.Run("rejected carries command and stderr", func(t *testing.T) {
		err := mapExecError(&exec.ExecError{
			Command:  []string{"git", "fetch", "origin", "main"},
			ExitCode: 128,
			Stderr:   "fatal: bad ref\n",
			Err:      fmt.Errorf("exit status 128"),
		}, gitwire.CodeFetchInvocation, gitwire.CodeFetchRejected, "git fetch failed")

		assert.Equal(t, gitwire.CodeFetchRejected, errors.GetCode(err))

		var pe errors.PlatformError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, "git fetch origin main", pe.Context()["command"])
		assert.Equal(t, "fatal: bad ref", pe.Context()["stderr"])
		assert.Equal(t, 128, pe.Context()["exit_code"])
	})

	t.Run("not started is invocation", func(t *testing.T) {
		err := mapExecError(&exec.ExecError{
			Command:  []string{"git", "init"},
			ExitCode: -1,
			Err:      fmt.Errorf("executable file not found in $PATH"),
		}, gitwire.CodeCloneInvocation, gitwire.CodeCloneRejected, "git init failed")

		assert.Equal(t, gitwire.CodeCloneInvocation, errors.GetCode(err))
	})

	t.Run("foreign error is invocation", func(t *testing.T) {
		err := mapExecError(context.Canceled, gitwire.CodeCloneInvocation, gitwire.CodeCloneRejected, "git clone failed")
		assert.Equal(t, gitwire.CodeCloneInvocation, errors.GetCode(err))
		assert.True(t, errors.Is(err, context.Canceled))
	})
}

func TestSparsePatterns(t *testing.T) {
	got := sparsePatterns([]string{"docs", "/README.md", "a/b/*.go"})
	assert.Equal(t, []string{"/docs", "/README.md", "/a/b/*.go"}, got)
	assert.True(t, strings.HasPrefix(got[0], "/"))
}
