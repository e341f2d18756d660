package cache

import (
	"net/url"
	"strings"
)

// normalizeURL reduces the common spellings of a repository address to host/path
// so they compare equal:
//
//   - https://github.com/my/repo.git → github.com/my/repo
//   - git@github.com:my/repo         → github.com/my/repo
//   - ssh://git@github.com/my/repo   → github.com/my/repo
//   - file:///srv/git/repo.git       → /srv/git/repo
func normalizeURL(rawURL string) string {
	rawURL = strings.TrimSuffix(strings.TrimSuffix(strings.TrimSpace(rawURL), "/"), ".git")

	// scp-like syntax: user@host:path
	if !strings.Contains(rawURL, "://") && strings.Contains(rawURL, "@") && strings.Contains(rawURL, ":") {
		_, hostPath, _ := strings.Cut(rawURL, "@")
		return strings.TrimSuffix(strings.Replace(hostPath, ":", "/", 1), "/")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	switch parsed.Scheme {
	case "http", "https", "ssh", "git":
		return strings.ToLower(parsed.Hostname()) + strings.TrimSuffix(parsed.Path, "/")
	case "file":
		return strings.TrimSuffix(parsed.Path, "/")
	default:
		return rawURL
	}
}

// SameRepository reports whether two addresses name the same repository.
func SameRepository(a, b string) bool {
	return normalizeURL(a) == normalizeURL(b)
}
