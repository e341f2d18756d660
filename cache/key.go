package cache

import (
	"bytes"
	_ "crypto/sha256" // registers sha256 for go-digest
	"encoding/binary"

	"github.com/jmgilman/gitwire"
	"github.com/opencontainers/go-digest"
)

// GenerateKey derives the cache key for a repository revision. A nil commit is
// distinct from every non-nil value, including a pointer to the empty string.
//
// Fields are length-prefixed before hashing so no two different triples share
// an encoding.
func GenerateKey(url, revision string, commit *string) string {
	var buf bytes.Buffer
	writeField(&buf, url)
	writeField(&buf, revision)
	if commit == nil {
		buf.WriteByte(0)
	} else {
		buf.WriteByte(1)
		writeField(&buf, *commit)
	}

	return digest.SHA256.FromBytes(buf.Bytes()).Encoded()
}

// KeyFor returns the cache key of an entry. An empty Commit means no pinned commit.
func KeyFor(e gitwire.Entry) string {
	var commit *string
	if e.Commit != "" {
		commit = &e.Commit
	}
	return GenerateKey(e.URL, e.Revision, commit)
}

func writeField(buf *bytes.Buffer, s string) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(s)))
	buf.Write(n[:])
	buf.WriteString(s)
}
