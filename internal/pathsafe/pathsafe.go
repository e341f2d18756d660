// Package pathsafe validates paths read from configuration before they are used to
// read from a clone or write into the working tree.
package pathsafe

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Validator checks slash-separated relative paths.
//
// A leading slash is tolerated and means "relative to the root"; empty components
// are ignored. Any component equal to ".", ".." or one of Forbidden is rejected.
type Validator struct {
	// Forbidden lists component names rejected in addition to "." and "..".
	// Comparison is case-insensitive.
	Forbidden []string
}

// New returns a Validator that also rejects the git metadata directory.
func New() *Validator {
	return &Validator{Forbidden: []string{".git"}}
}

// Validate returns nil if p is safe to join onto a root directory.
func (v *Validator) Validate(p string) error {
	if strings.TrimSpace(p) == "" {
		return fmt.Errorf("empty path")
	}

	if hasEncodedTraversal(p) {
		return fmt.Errorf("encoded path traversal detected: %s", p)
	}

	for _, r := range p {
		if r < 32 || r == 127 {
			return fmt.Errorf("control character detected in path: %q (U+%04X)", p, r)
		}
	}

	named := 0
	for _, part := range components(p) {
		if part == "." || part == ".." {
			return fmt.Errorf("path component %q not allowed: %s", part, p)
		}
		for _, f := range v.Forbidden {
			if strings.EqualFold(part, f) {
				return fmt.Errorf("path component %q not allowed: %s", part, p)
			}
		}
		named++
	}

	if named == 0 {
		return fmt.Errorf("path has no components: %s", p)
	}

	return nil
}

// components splits on both separators so Windows-style input is checked too.
func components(p string) []string {
	return strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' })
}

func hasEncodedTraversal(p string) bool {
	lower := strings.ToLower(p)
	for _, variant := range []string{
		"..%2f", "..%5c",
		"%2e%2e%2f", "%2e%2e%5c",
		"%2e%2e/", "%2e%2e\\",
		"..%c0%af", "..%c1%9c",
	} {
		if strings.Contains(lower, variant) {
			return true
		}
	}
	return false
}

// Within resolves target and reports an error unless it lies strictly inside
// root. Both paths are made absolute and symlinks are resolved on the longest
// existing prefix, so a target that does not exist yet can still be checked.
// It returns the resolved target.
func Within(root, target string) (string, error) {
	resolvedRoot, err := Canonical(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve root %s: %w", root, err)
	}

	resolvedTarget, err := Canonical(target)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path %s: %w", target, err)
	}

	rel, err := filepath.Rel(resolvedRoot, resolvedTarget)
	if err != nil {
		return "", fmt.Errorf("path %s escapes root %s", target, root)
	}

	if rel == "." {
		return "", fmt.Errorf("path %s is the root itself", target)
	}

	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("path %s escapes root %s", target, root)
	}

	return resolvedTarget, nil
}

// Canonical returns the absolute form of p with symlinks resolved on every
// existing ancestor. Components that do not exist yet are appended unchanged.
func Canonical(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}

	var missing []string
	current := abs
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			return filepath.Join(append([]string{resolved}, missing...)...), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}

		parent := filepath.Dir(current)
		if parent == current {
			return abs, nil
		}
		missing = append([]string{filepath.Base(current)}, missing...)
		current = parent
	}
}
