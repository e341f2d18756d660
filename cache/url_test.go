package cache

import "testing"

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "https://github.com/my/repo.git", want: "github.com/my/repo"},
		{in: "https://github.com/my/repo", want: "github.com/my/repo"},
		{in: "https://GitHub.com/my/repo/", want: "github.com/my/repo"},
		{in: "http://gitlab.com/org/project", want: "gitlab.com/org/project"},
		{in: "git@github.com:my/repo.git", want: "github.com/my/repo"},
		{in: "ssh://git@github.com:22/my/repo.git", want: "github.com/my/repo"},
		{in: "file:///srv/git/repo.git", want: "/srv/git/repo"},
		{in: "/srv/git/repo", want: "/srv/git/repo"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := normalizeURL(tt.in); got != tt.want {
				t.Errorf("normalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSameRepository(t *testing.T) {
	if !SameRepository("git@github.com:my/repo", "https://github.com/my/repo.git") {
		t.Errorf("SameRepository() = false for ssh and https forms")
	}
	if SameRepository("https://github.com/my/repo", "https://github.com/my/other") {
		t.Errorf("SameRepository() = true for different repositories")
	}
}
