package gitwire

import (
	"strings"

	"github.com/jmgilman/go/errors"
	"github.com/jmgilman/gitwire/internal/pathsafe"
)

// Method selects how a repository is cloned into its cache slot.
type Method string

const (
	// MethodShallow fetches a depth-1 snapshot of the revision and restricts the
	// working copy to the requested sources with a sparse checkout when possible.
	MethodShallow Method = "shallow"

	// MethodShallowNoSparse fetches a depth-1 snapshot and checks out the whole tree.
	MethodShallowNoSparse Method = "shallow_no_sparse"

	// MethodPartial clones the full history without a checkout and then checks out
	// only the requested sources.
	MethodPartial Method = "partial"
)

// ParseMethod converts a configuration or flag value into a Method.
// The empty string yields MethodShallow.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.TrimSpace(s)); m {
	case "":
		return MethodShallow, nil
	case MethodShallow, MethodShallowNoSparse, MethodPartial:
		return m, nil
	default:
		return "", errors.Newf(errors.CodeInvalidInput,
			"unknown method %q (expected shallow, shallow_no_sparse or partial)", s)
	}
}

// OrDefault returns m, or MethodShallow when m is empty.
func (m Method) OrDefault() Method {
	if m == "" {
		return MethodShallow
	}
	return m
}

// Sparse reports whether the method attempts a sparse checkout.
func (m Method) Sparse() bool {
	return m.OrDefault() == MethodShallow
}

func (m Method) String() string {
	return string(m.OrDefault())
}

// Entry is one request to copy paths out of a remote repository revision into the
// local working tree.
type Entry struct {
	// Name identifies the entry for filtering. Optional, unique within a file.
	Name string

	// Description is free text shown in progress output. Optional.
	Description string

	// URL is the remote repository address.
	URL string

	// Revision is a branch, tag or commit.
	Revision string

	// Commit pins the entry to an exact commit. Optional; when set it is part of
	// the cache key and is checked out instead of resolving Revision.
	Commit string

	// Sources are the files, directories or glob patterns to extract, relative to
	// the repository root.
	Sources []string

	// Destination is the directory, relative to the project root, that receives
	// the extracted content.
	Destination string

	// Method is the clone strategy. Empty means MethodShallow.
	Method Method
}

// Validate checks required fields, the method and path soundness. It performs no I/O.
func (e Entry) Validate() error {
	switch {
	case strings.TrimSpace(e.URL) == "":
		return e.invalid("url is required")
	case strings.TrimSpace(e.Revision) == "":
		return e.invalid("rev is required")
	case len(e.Sources) == 0:
		return e.invalid("src must contain at least one path")
	case strings.TrimSpace(e.Destination) == "":
		return e.invalid("dst is required")
	}

	if _, err := ParseMethod(string(e.Method)); err != nil {
		return errors.WithContext(err, "entry", e.Name)
	}

	v := pathsafe.New()
	for _, src := range e.Sources {
		if err := v.Validate(src); err != nil {
			return errors.WrapWithContext(err, CodePathUnsound, "unsound source path", map[string]interface{}{
				"entry": e.Name,
				"path":  src,
			})
		}
	}
	if err := v.Validate(e.Destination); err != nil {
		return errors.WrapWithContext(err, CodePathUnsound, "unsound destination path", map[string]interface{}{
			"entry": e.Name,
			"path":  e.Destination,
		})
	}

	return nil
}

func (e Entry) invalid(msg string) error {
	return errors.WithContext(errors.New(errors.CodeInvalidInput, msg), "entry", e.Name)
}

// Merge returns a copy of e where every non-empty field of override replaces the
// corresponding field of e.
func (e Entry) Merge(override Entry) Entry {
	out := e
	out.Sources = append([]string(nil), e.Sources...)

	if override.Name != "" {
		out.Name = override.Name
	}
	if override.Description != "" {
		out.Description = override.Description
	}
	if override.URL != "" {
		out.URL = override.URL
	}
	if override.Revision != "" {
		out.Revision = override.Revision
	}
	if override.Commit != "" {
		out.Commit = override.Commit
	}
	if len(override.Sources) > 0 {
		out.Sources = append([]string(nil), override.Sources...)
	}
	if override.Destination != "" {
		out.Destination = override.Destination
	}
	if override.Method != "" {
		out.Method = override.Method
	}

	return out
}

// IsZero reports whether no field is set.
func (e Entry) IsZero() bool {
	return e.Name == "" && e.Description == "" && e.URL == "" && e.Revision == "" &&
		e.Commit == "" && len(e.Sources) == 0 && e.Destination == "" && e.Method == ""
}

// Label renders the entry for progress output.
func (e Entry) Label() string {
	switch {
	case e.Name != "" && e.Description != "":
		return e.Name + ": " + e.Description
	case e.Name != "":
		return e.Name
	case e.Description != "":
		return e.Description
	default:
		return e.URL + "@" + e.Revision
	}
}
