package fetch

import (
	"context"
	"regexp"
	"sort"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/jmgilman/go/errors"
	"github.com/jmgilman/gitwire"
)

const peeledSuffix = "^{}"

// Ref is one advertised remote reference. Peeled tag entries carry a "^{}"
// suffix on Name and the hash of the tagged commit.
type Ref struct {
	Name string
	Hash string
}

// Peeled reports whether the ref is the peeled form of an annotated tag.
func (r Ref) Peeled() bool {
	return strings.HasSuffix(r.Name, peeledSuffix)
}

// RefLister lists the branches and tags advertised by a remote.
type RefLister interface {
	ListRefs(ctx context.Context, url string) ([]Ref, error)
}

// RemoteRefLister lists refs over the git protocol with go-git, without a
// local repository.
type RemoteRefLister struct{}

// NewRemoteRefLister creates a RemoteRefLister.
func NewRemoteRefLister() *RemoteRefLister {
	return &RemoteRefLister{}
}

// ListRefs returns refs/heads/* and refs/tags/* sorted by name, peeled tags
// included. An empty remote yields no refs.
func (l *RemoteRefLister) ListRefs(ctx context.Context, url string) ([]Ref, error) {
	remote := gogit.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: "origin",
		URLs: []string{url},
	})

	advertised, err := remote.ListContext(ctx, &gogit.ListOptions{
		PeelingOption: gogit.AppendPeeled,
	})
	if err != nil {
		if errors.Is(err, transport.ErrEmptyRemoteRepository) {
			return nil, nil
		}
		return nil, errors.WrapWithContext(err, gitwire.CodeRefList, "failed to list remote refs",
			map[string]interface{}{"url": url})
	}

	refs := make([]Ref, 0, len(advertised))
	for _, ref := range advertised {
		if ref.Type() != plumbing.HashReference {
			continue
		}
		name := ref.Name().String()
		if !strings.HasPrefix(name, "refs/heads/") && !strings.HasPrefix(name, "refs/tags/") {
			continue
		}
		refs = append(refs, Ref{Name: name, Hash: ref.Hash().String()})
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}

// ResolveRevision picks the ref that names revision.
//
// A ref matches when its name, ignoring a peeled suffix, ends with revision.
// Among matches a non-peeled ref beats a peeled one, then a match starting on
// a "/" boundary beats an arbitrary suffix, then earlier refs beat later ones.
// ok is false when nothing matches; the revision is then a commit hash or an
// abbreviation of one.
func ResolveRevision(refs []Ref, revision string) (Ref, bool, error) {
	pattern, err := regexp.Compile(`^(.*)` + regexp.QuoteMeta(revision) + `(\^\{\})?$`)
	if err != nil {
		return Ref{}, false, errors.WrapWithContext(err, gitwire.CodeRefPattern,
			"failed to build ref pattern", map[string]interface{}{"revision": revision})
	}

	best := -1
	bestRank := 0
	for i, ref := range refs {
		m := pattern.FindStringSubmatch(ref.Name)
		if m == nil {
			continue
		}

		rank := 0
		if m[2] != "" {
			rank += 2
		}
		if prefix := m[1]; prefix != "" && !strings.HasSuffix(prefix, "/") {
			rank++
		}

		if best < 0 || rank < bestRank {
			best, bestRank = i, rank
		}
	}

	if best < 0 {
		return Ref{}, false, nil
	}
	return refs[best], true, nil
}
