package cache

import (
	"testing"

	"github.com/jmgilman/gitwire"
)

func TestGenerateKey_Deterministic(t *testing.T) {
	commit := "0123456789abcdef0123456789abcdef01234567"

	a := GenerateKey("https://example.com/r.git", "main", &commit)
	b := GenerateKey("https://example.com/r.git", "main", &commit)
	if a != b {
		t.Fatalf("GenerateKey() not deterministic: %s != %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("GenerateKey() length = %d, want 64", len(a))
	}
}

func TestGenerateKey_FieldsMatter(t *testing.T) {
	empty := ""
	commit := "abc"
	other := "abd"

	keys := map[string]string{
		"base":            GenerateKey("https://example.com/r.git", "main", nil),
		"other url":       GenerateKey("https://example.com/s.git", "main", nil),
		"other revision":  GenerateKey("https://example.com/r.git", "dev", nil),
		"empty commit":    GenerateKey("https://example.com/r.git", "main", &empty),
		"commit":          GenerateKey("https://example.com/r.git", "main", &commit),
		"other commit":    GenerateKey("https://example.com/r.git", "main", &other),
		"shifted fields":  GenerateKey("https://example.com/r.gitm", "ain", nil),
		"swapped content": GenerateKey("main", "https://example.com/r.git", nil),
	}

	seen := make(map[string]string)
	for name, key := range keys {
		if prev, ok := seen[key]; ok {
			t.Errorf("GenerateKey() collision between %q and %q", prev, name)
		}
		seen[key] = name
	}
}

func TestKeyFor_IgnoresNonIdentityFields(t *testing.T) {
	a := gitwire.Entry{
		Name:        "a",
		URL:         "https://example.com/r.git",
		Revision:    "main",
		Sources:     []string{"docs"},
		Destination: "vendor/a",
		Method:      gitwire.MethodPartial,
	}
	b := gitwire.Entry{
		Name:        "b",
		URL:         "https://example.com/r.git",
		Revision:    "main",
		Sources:     []string{"src"},
		Destination: "vendor/b",
	}

	if KeyFor(a) != KeyFor(b) {
		t.Errorf("KeyFor() differs for entries sharing url and revision")
	}

	b.Commit = "abc"
	if KeyFor(a) == KeyFor(b) {
		t.Errorf("KeyFor() ignores pinned commit")
	}
}
