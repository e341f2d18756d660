package pathsafe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_Validate(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{name: "simple relative", path: "src", wantErr: false},
		{name: "nested relative", path: "src/pkg/util", wantErr: false},
		{name: "leading slash", path: "/src/main.go", wantErr: false},
		{name: "trailing slash", path: "docs/", wantErr: false},
		{name: "double slash", path: "docs//api", wantErr: false},
		{name: "hidden file allowed", path: ".github/workflows", wantErr: false},
		{name: "glob", path: "docs/**/*.md", wantErr: false},
		{name: "empty", path: "", wantErr: true},
		{name: "whitespace", path: "   ", wantErr: true},
		{name: "only slashes", path: "//", wantErr: true},
		{name: "current dir", path: "./src", wantErr: true},
		{name: "bare current dir", path: ".", wantErr: true},
		{name: "parent dir", path: "../src", wantErr: true},
		{name: "parent dir in middle", path: "src/../../etc", wantErr: true},
		{name: "backslash parent", path: "src\\..\\etc", wantErr: true},
		{name: "git dir", path: ".git/config", wantErr: true},
		{name: "git dir nested", path: "vendor/.git", wantErr: true},
		{name: "git dir upper case", path: "vendor/.GIT", wantErr: true},
		{name: "git-like name allowed", path: ".gitignore", wantErr: false},
		{name: "encoded traversal", path: "..%2fetc", wantErr: true},
		{name: "nul byte", path: "src\x00", wantErr: true},
		{name: "newline", path: "src\nfoo", wantErr: true},
	}

	v := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWithin(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "vendor"), 0o755))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "escape")))

	t.Run("existing child", func(t *testing.T) {
		got, err := Within(root, filepath.Join(root, "vendor"))
		require.NoError(t, err)

		want, err := filepath.EvalSymlinks(filepath.Join(root, "vendor"))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("missing child", func(t *testing.T) {
		_, err := Within(root, filepath.Join(root, "vendor", "new", "dir"))
		assert.NoError(t, err)
	})

	t.Run("root itself", func(t *testing.T) {
		_, err := Within(root, root)
		assert.Error(t, err)
	})

	t.Run("lexical escape", func(t *testing.T) {
		_, err := Within(root, filepath.Join(root, "..", "elsewhere"))
		assert.Error(t, err)
	})

	t.Run("symlink escape", func(t *testing.T) {
		_, err := Within(root, filepath.Join(root, "escape", "dst"))
		assert.Error(t, err)
	})
}

func TestCanonical_MissingTail(t *testing.T) {
	root := t.TempDir()

	got, err := Canonical(filepath.Join(root, "a", "b"))
	require.NoError(t, err)

	resolvedRoot, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(resolvedRoot, "a", "b"), got)
}
