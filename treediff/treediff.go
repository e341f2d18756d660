// Package treediff compares two directory trees file by file.
//
// Compare walks both trees and classifies every relative file path as missing
// (only in the expected tree), extra (only in the actual tree) or changed
// (present in both with different content or type). .git entries are ignored
// in both trees. Diff renders a line diff of one changed file.
package treediff

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/jmgilman/go/errors"
	"github.com/jmgilman/gitwire"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Result lists differing paths, slash separated and sorted.
type Result struct {
	// Missing are files of the expected tree absent from the actual tree.
	Missing []string

	// Extra are files of the actual tree absent from the expected tree.
	Extra []string

	// Changed are files present in both trees that differ.
	Changed []string
}

// Equal reports whether the trees hold the same files with the same content.
func (r *Result) Equal() bool {
	return len(r.Missing) == 0 && len(r.Extra) == 0 && len(r.Changed) == 0
}

// Compare compares the tree at actual against the tree at expected. A missing
// root is treated as an empty tree.
func Compare(fs billy.Filesystem, expected, actual string) (*Result, error) {
	want, err := listFiles(fs, expected)
	if err != nil {
		return nil, err
	}
	got, err := listFiles(fs, actual)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	for rel, wantInfo := range want {
		gotInfo, ok := got[rel]
		if !ok {
			result.Missing = append(result.Missing, rel)
			continue
		}

		same, err := sameFile(fs,
			filepath.Join(expected, filepath.FromSlash(rel)), wantInfo,
			filepath.Join(actual, filepath.FromSlash(rel)), gotInfo)
		if err != nil {
			return nil, err
		}
		if !same {
			result.Changed = append(result.Changed, rel)
		}
	}
	for rel := range got {
		if _, ok := want[rel]; !ok {
			result.Extra = append(result.Extra, rel)
		}
	}

	sort.Strings(result.Missing)
	sort.Strings(result.Extra)
	sort.Strings(result.Changed)
	return result, nil
}

// Diff renders the line differences between two files. Removed lines are
// prefixed with "-", added lines with "+" and context lines with " ".
// Binary content yields a single summary line.
func Diff(fs billy.Filesystem, expectedFile, actualFile string) (string, error) {
	want, err := util.ReadFile(fs, expectedFile)
	if err != nil {
		return "", compareError(err, expectedFile)
	}
	got, err := util.ReadFile(fs, actualFile)
	if err != nil {
		return "", compareError(err, actualFile)
	}

	if isBinary(want) || isBinary(got) {
		return "Binary files differ\n", nil
	}

	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(string(want), string(got))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var out strings.Builder
	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		}

		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			out.WriteString(prefix)
			out.WriteString(line)
			if !strings.HasSuffix(line, "\n") {
				out.WriteString("\n\\ No newline at end of file\n")
			}
		}
	}

	return out.String(), nil
}

// listFiles maps slash separated relative paths to the Lstat info of every
// non-directory entry under root.
func listFiles(fs billy.Filesystem, root string) (map[string]os.FileInfo, error) {
	files := map[string]os.FileInfo{}

	if _, err := fs.Lstat(root); err != nil {
		if os.IsNotExist(err) {
			return files, nil
		}
		return nil, compareError(err, root)
	}

	err := util.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Name() == ".git" && path != root {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = info
		return nil
	})
	if err != nil {
		return nil, compareError(err, root)
	}

	return files, nil
}

func sameFile(fs billy.Filesystem, wantPath string, wantInfo os.FileInfo, gotPath string, gotInfo os.FileInfo) (bool, error) {
	if wantInfo.Mode().Type() != gotInfo.Mode().Type() {
		return false, nil
	}
	if !wantInfo.Mode().IsRegular() {
		// Only regular files are placed; other entries compare by type.
		return true, nil
	}
	if wantInfo.Size() != gotInfo.Size() {
		return false, nil
	}

	want, err := util.ReadFile(fs, wantPath)
	if err != nil {
		return false, compareError(err, wantPath)
	}
	got, err := util.ReadFile(fs, gotPath)
	if err != nil {
		return false, compareError(err, gotPath)
	}
	return bytes.Equal(want, got), nil
}

func isBinary(data []byte) bool {
	return bytes.IndexByte(data, 0) >= 0
}

func compareError(err error, path string) error {
	return errors.WithContext(errors.Wrap(err, gitwire.CodeCompareFailed, "failed to compare trees"), "path", path)
}
